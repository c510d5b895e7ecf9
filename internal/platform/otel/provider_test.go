package otel_test

import (
	"context"
	"testing"

	"github.com/louisbranch/storyloom/internal/platform/otel"
)

func TestSetupNoopWhenEndpointEmpty(t *testing.T) {
	t.Setenv("STORYLOOM_OTEL_ENDPOINT", "")
	t.Setenv("STORYLOOM_OTEL_ENABLED", "")

	shutdown, err := otel.Setup(context.Background(), "storyloom-test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}
}

func TestSetupNoopWhenExplicitlyDisabled(t *testing.T) {
	t.Setenv("STORYLOOM_OTEL_ENDPOINT", "http://localhost:4318")
	t.Setenv("STORYLOOM_OTEL_ENABLED", "false")

	shutdown, err := otel.Setup(context.Background(), "storyloom-test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}
}

func TestSetupCreatesProviderWhenEndpointSet(t *testing.T) {
	// Non-routable address: nothing is exported during the test.
	t.Setenv("STORYLOOM_OTEL_ENDPOINT", "http://192.0.2.1:4318")
	t.Setenv("STORYLOOM_OTEL_ENABLED", "")

	shutdown, err := otel.Setup(context.Background(), "storyloom-test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("STORYLOOM_OTEL_ENABLED", "")
	t.Setenv("STORYLOOM_OTEL_SAMPLE_RATIO", "")
	t.Setenv("STORYLOOM_VERSION", "")

	cfg, err := otel.LoadConfig()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if !cfg.Enabled || cfg.SampleRatio != 1 || cfg.ServiceVersion != "dev" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestSetupRejectsBadSampleRatio(t *testing.T) {
	cfg := otel.Config{Enabled: true, Endpoint: "http://192.0.2.1:4318", SampleRatio: 1.5}
	if _, err := otel.SetupWithConfig(context.Background(), "storyloom-test", cfg); err == nil {
		t.Fatal("expected error for sample ratio above 1")
	}
}

func TestSetupRejectsMalformedEnv(t *testing.T) {
	t.Setenv("STORYLOOM_OTEL_SAMPLE_RATIO", "often")

	if _, err := otel.Setup(context.Background(), "storyloom-test"); err == nil {
		t.Fatal("expected error for malformed sample ratio")
	}
}

package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestErrorIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("compact: %w", New(CodeChatNothingToCompact, "no visible messages"))
	if !stderrors.Is(err, New(CodeChatNothingToCompact, "")) {
		t.Fatal("expected code match through wrap chain")
	}
	if stderrors.Is(err, New(CodeNotFound, "")) {
		t.Fatal("expected mismatch for a different code")
	}
}

func TestWrapKeepsCause(t *testing.T) {
	cause := stderrors.New("database is locked")
	err := Wrap(CodeStoreUnavailable, "append event", cause)
	if !stderrors.Is(err, cause) {
		t.Fatal("expected wrapped cause to be reachable")
	}
	if got := CodeOf(fmt.Errorf("outer: %w", err)); got != CodeStoreUnavailable {
		t.Fatalf("code = %s, want %s", got, CodeStoreUnavailable)
	}
}

func TestCodeOfPlainError(t *testing.T) {
	if got := CodeOf(stderrors.New("plain")); got != CodeUnknown {
		t.Fatalf("code = %s, want %s", got, CodeUnknown)
	}
}

func TestCodeClass(t *testing.T) {
	tests := []struct {
		code Code
		want Class
	}{
		{CodeChatIDRequired, ClassInvalidArgument},
		{CodeChatInvalidRole, ClassInvalidArgument},
		{CodeChatNothingToCompact, ClassFailedPrecondition},
		{CodeChatNothingToDelete, ClassFailedPrecondition},
		{CodeNotFound, ClassNotFound},
		{CodeStoreUnavailable, ClassUnavailable},
		{CodeUnknown, ClassInternal},
	}
	for _, tt := range tests {
		if got := tt.code.Class(); got != tt.want {
			t.Fatalf("%s class = %s, want %s", tt.code, got, tt.want)
		}
	}
}

func TestErrorRendersSortedMetadata(t *testing.T) {
	err := WithMetadata(CodeNotFound, "message not found", map[string]string{"id": "m1", "chat": "c1"})
	if got := err.Error(); got != "message not found (chat=c1, id=m1)" {
		t.Fatalf("error = %q", got)
	}
}

func TestErrorFallsBackToCause(t *testing.T) {
	err := &Error{Code: CodeStoreUnavailable, Cause: stderrors.New("disk full")}
	if got := err.Error(); got != "disk full" {
		t.Fatalf("error = %q, want cause text", got)
	}
}

func TestWithMetadataCopiesMap(t *testing.T) {
	metadata := map[string]string{"id": "m1"}
	err := WithMetadata(CodeNotFound, "message not found", metadata)
	metadata["id"] = "m2"
	if got := MetadataOf(fmt.Errorf("outer: %w", err))["id"]; got != "m1" {
		t.Fatalf("metadata id = %q, want m1", got)
	}
	if MetadataOf(stderrors.New("plain")) != nil {
		t.Fatal("expected nil metadata for plain error")
	}
}

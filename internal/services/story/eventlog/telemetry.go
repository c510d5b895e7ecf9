package eventlog

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationScope = "github.com/louisbranch/storyloom/internal/services/story/eventlog"

type instruments struct {
	tracer  trace.Tracer
	applied metric.Int64Counter
	skipped metric.Int64Counter
	failed  metric.Int64Counter
}

// newInstruments binds to the global providers. Instrument creation errors
// fall back to no-op counters so telemetry never blocks the log.
func newInstruments() instruments {
	meter := otel.Meter(instrumentationScope)
	return instruments{
		tracer:  otel.Tracer(instrumentationScope),
		applied: counter(meter, "storyloom.eventlog.applied", "Events applied to projections."),
		skipped: counter(meter, "storyloom.eventlog.skipped", "Stored events skipped during replay."),
		failed:  counter(meter, "storyloom.eventlog.append_failed", "Appends rejected by validation or the store."),
	}
}

func counter(meter metric.Meter, name, description string) metric.Int64Counter {
	c, err := meter.Int64Counter(name, metric.WithDescription(description), metric.WithUnit("{event}"))
	if err != nil {
		c, _ = noop.NewMeterProvider().Meter(instrumentationScope).Int64Counter(name)
	}
	return c
}

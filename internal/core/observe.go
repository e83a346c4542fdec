package core

import (
	"context"
	"time"
)

// ObservationHooks captures optional start/complete callbacks a caller can
// attach to any long-running operation (a webhook delivery attempt, a
// settlement poll) without the component depending on a concrete tracer.
type ObservationHooks struct {
	OnStart    func(ctx context.Context, meta map[string]string)
	OnComplete func(ctx context.Context, meta map[string]string, err error, duration time.Duration)
}

// NoopObservationHooks is the safe default.
var NoopObservationHooks = ObservationHooks{}

// StartObservation triggers OnStart and returns a completion callback for
// OnComplete, pre-bound to the start time.
func StartObservation(ctx context.Context, hooks ObservationHooks, meta map[string]string) func(error) {
	if hooks.OnStart != nil {
		hooks.OnStart(ctx, meta)
	}
	start := time.Now()
	return func(err error) {
		if hooks.OnComplete != nil {
			hooks.OnComplete(ctx, meta, err, time.Since(start))
		}
	}
}

// Tracer emits spans for operations that cross a component boundary
// (storage calls, webhook deliveries). NoopTracer is the default and the
// only implementation in this module; internal/metrics instruments through
// ObservationHooks instead.
type Tracer interface {
	StartSpan(ctx context.Context, name string, attrs map[string]string) (context.Context, func(error))
}

type noopTracer struct{}

func (noopTracer) StartSpan(ctx context.Context, _ string, _ map[string]string) (context.Context, func(error)) {
	return ctx, func(error) {}
}

// NoopTracer discards all spans.
var NoopTracer Tracer = noopTracer{}

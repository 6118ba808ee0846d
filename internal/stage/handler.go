package stage

import (
	"context"

	"sieve/internal/queue"
)

// Handler describes the contract the workflow manager needs from each stage.
// Execute receives the claimed item by value and returns the updated item;
// the manager persists the returned value.
type Handler interface {
	Execute(context.Context, queue.Item) (queue.Item, error)
	HealthCheck(context.Context) Health
}

// ProgressFunc lets a stage publish progress for the item it is processing.
type ProgressFunc func(stage, message string, percent float64)

type progressKey struct{}

// WithProgress attaches a progress reporter to ctx.
func WithProgress(ctx context.Context, fn ProgressFunc) context.Context {
	if fn == nil {
		return ctx
	}
	return context.WithValue(ctx, progressKey{}, fn)
}

// ReportProgress publishes progress through the reporter attached to ctx, if any.
func ReportProgress(ctx context.Context, stage, message string, percent float64) {
	if ctx == nil {
		return
	}
	if fn, ok := ctx.Value(progressKey{}).(ProgressFunc); ok {
		fn(stage, message, percent)
	}
}

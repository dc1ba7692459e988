package port

import "context"

// Instrumentation records application-level metrics.
type Instrumentation interface {
	RecordFetchDuration(ctx context.Context, kind FetchKind, ms float64)
	IncrementFetchCount(ctx context.Context, kind FetchKind)
	IncrementFetchErrors(ctx context.Context, kind FetchKind)
	IncrementFetchDiscarded(ctx context.Context)
	RecordChartDuration(ctx context.Context, ms float64)
	RecordToolDuration(ctx context.Context, tool string, failed bool, ms float64)
}

// NoopInstrumentation discards all metrics.
type NoopInstrumentation struct{}

func (NoopInstrumentation) RecordFetchDuration(context.Context, FetchKind, float64)   {}
func (NoopInstrumentation) IncrementFetchCount(context.Context, FetchKind)            {}
func (NoopInstrumentation) IncrementFetchErrors(context.Context, FetchKind)           {}
func (NoopInstrumentation) IncrementFetchDiscarded(context.Context)                   {}
func (NoopInstrumentation) RecordChartDuration(context.Context, float64)              {}
func (NoopInstrumentation) RecordToolDuration(context.Context, string, bool, float64) {}

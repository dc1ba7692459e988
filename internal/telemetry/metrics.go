package telemetry

import (
	"context"

	"github.com/guillermoBallester/tabula/internal/core/port"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/guillermoBallester/tabula"

// Instruments holds pre-created OTel metric instruments. It implements
// port.Instrumentation.
type Instruments struct {
	FetchCount     metric.Int64Counter
	FetchDuration  metric.Float64Histogram
	FetchErrors    metric.Int64Counter
	FetchDiscarded metric.Int64Counter
	ChartDuration  metric.Float64Histogram
	ToolDuration   metric.Float64Histogram
}

var _ port.Instrumentation = (*Instruments)(nil)

// NewInstruments creates metric instruments from the global MeterProvider.
func NewInstruments() *Instruments {
	return NewInstrumentsFromMeter(otel.Meter(meterName))
}

// NoopInstruments returns instruments that record nothing.
func NoopInstruments() *Instruments {
	return NewInstrumentsFromMeter(noop.NewMeterProvider().Meter(meterName))
}

// NewInstrumentsFromMeter creates the instruments on meter.
func NewInstrumentsFromMeter(meter metric.Meter) *Instruments {
	// The SDK hands back working noop instruments alongside any error.
	fetchCount, _ := meter.Int64Counter("tabula.fetch.count",
		metric.WithDescription("Total number of successful collaborator fetches"),
	)
	fetchDuration, _ := meter.Float64Histogram("tabula.fetch.duration",
		metric.WithDescription("Collaborator fetch duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	fetchErrors, _ := meter.Int64Counter("tabula.fetch.errors",
		metric.WithDescription("Total number of failed collaborator fetches"),
	)
	fetchDiscarded, _ := meter.Int64Counter("tabula.fetch.discarded",
		metric.WithDescription("View responses dropped because a newer request superseded them"),
	)
	chartDuration, _ := meter.Float64Histogram("tabula.chart.duration",
		metric.WithDescription("Chart generation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	toolDuration, _ := meter.Float64Histogram("tabula.tool.duration",
		metric.WithDescription("MCP tool call duration in milliseconds"),
		metric.WithUnit("ms"),
	)

	return &Instruments{
		FetchCount:     fetchCount,
		FetchDuration:  fetchDuration,
		FetchErrors:    fetchErrors,
		FetchDiscarded: fetchDiscarded,
		ChartDuration:  chartDuration,
		ToolDuration:   toolDuration,
	}
}

func kindAttr(kind port.FetchKind) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("fetch.kind", string(kind)))
}

func (i *Instruments) RecordFetchDuration(ctx context.Context, kind port.FetchKind, ms float64) {
	i.FetchDuration.Record(ctx, ms, kindAttr(kind))
}

func (i *Instruments) IncrementFetchCount(ctx context.Context, kind port.FetchKind) {
	i.FetchCount.Add(ctx, 1, kindAttr(kind))
}

func (i *Instruments) IncrementFetchErrors(ctx context.Context, kind port.FetchKind) {
	i.FetchErrors.Add(ctx, 1, kindAttr(kind))
}

func (i *Instruments) IncrementFetchDiscarded(ctx context.Context) {
	i.FetchDiscarded.Add(ctx, 1)
}

func (i *Instruments) RecordChartDuration(ctx context.Context, ms float64) {
	i.ChartDuration.Record(ctx, ms)
}

func (i *Instruments) RecordToolDuration(ctx context.Context, tool string, failed bool, ms float64) {
	i.ToolDuration.Record(ctx, ms, metric.WithAttributes(
		attribute.String("mcp.tool", tool),
		attribute.Bool("error", failed),
	))
}

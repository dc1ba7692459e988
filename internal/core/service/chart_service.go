package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/guillermoBallester/tabula/internal/core/domain"
	"github.com/guillermoBallester/tabula/internal/core/port"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/singleflight"
)

// DatasetSelection reports which dataset is currently selected.
type DatasetSelection interface {
	DatasetID() string
}

// ChartService turns the full row set of the selected dataset into an
// aggregated series with a value axis.
type ChartService struct {
	source    port.DatasetSource
	selection DatasetSelection
	renderer  port.ChartRenderer
	nullLabel string
	notifier  port.Notifier
	auditor   port.FetchAuditor
	logger    *slog.Logger
	tracer    trace.Tracer
	inst      port.Instrumentation

	group singleflight.Group

	mu        sync.Mutex
	chartType domain.ChartType
	category  string
	value     string
	rows      map[string][]domain.Row // dataset id → full row set
	last      *domain.ChartSpec

	// generation is bumped by every configuration change and every
	// Generate; only the Generate holding the current value may publish.
	generation uint64
	// epoch is bumped whenever the row cache is dropped; a fetch started
	// under an older epoch does not repopulate it.
	epoch uint64
}

func NewChartService(source port.DatasetSource, selection DatasetSelection, renderer port.ChartRenderer, nullLabel string, notifier port.Notifier, auditor port.FetchAuditor, logger *slog.Logger, tracer trace.Tracer, inst port.Instrumentation) *ChartService {
	if nullLabel == "" {
		nullLabel = domain.DefaultNullLabel
	}
	if notifier == nil {
		notifier = port.NoopNotifier{}
	}
	if auditor == nil {
		auditor = port.NoopAuditor{}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("noop")
	}
	if inst == nil {
		inst = port.NoopInstrumentation{}
	}
	return &ChartService{
		source:    source,
		selection: selection,
		renderer:  renderer,
		nullLabel: nullLabel,
		notifier:  notifier,
		auditor:   auditor,
		logger:    logger,
		tracer:    tracer,
		inst:      inst,
		chartType: domain.ChartBar,
		rows:      make(map[string][]domain.Row),
	}
}

// SetChartType selects bar, line or pie.
func (s *ChartService) SetChartType(t string) error {
	ct, err := domain.ParseChartType(t)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chartType = ct
	s.generation++
	return nil
}

// StageAxes records the category and value columns for the next Generate.
// Either may be empty to clear it.
func (s *ChartService) StageAxes(category, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.category = category
	s.value = value
	s.generation++
}

// Config returns the chart type and staged axes.
func (s *ChartService) Config() (domain.ChartType, string, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chartType, s.category, s.value
}

// Last returns the most recently generated chart, or nil.
func (s *ChartService) Last() *domain.ChartSpec {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Invalidate drops the cached rows of datasetID together with the staged
// axes and the last chart, which refer to that dataset's columns.
func (s *ChartService) Invalidate(datasetID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, datasetID)
	s.category, s.value = "", ""
	s.last = nil
	s.generation++
	s.epoch++
}

// Reset drops every cached row set.
func (s *ChartService) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.rows)
	s.category, s.value = "", ""
	s.last = nil
	s.generation++
	s.epoch++
}

// Generate aggregates the staged value column by the staged category
// column over the full row set of the selected dataset. On failure the
// previously generated chart stays in place. A Generate overtaken by a
// configuration change, a dataset switch or a later Generate publishes
// nothing and returns a nil spec and a nil error.
func (s *ChartService) Generate(ctx context.Context) (*domain.ChartSpec, error) {
	s.mu.Lock()
	chartType, category, value := s.chartType, s.category, s.value
	s.generation++
	generation := s.generation
	s.mu.Unlock()

	if category == "" || value == "" {
		return nil, domain.ErrAxesNotSelected
	}
	datasetID := s.selection.DatasetID()
	if datasetID == "" {
		return nil, domain.ErrNoDataset
	}

	ctx, span := s.tracer.Start(ctx, "ChartService.Generate",
		trace.WithAttributes(
			attribute.String("dataset.id", datasetID),
			attribute.String("chart.type", string(chartType)),
			attribute.String("chart.category_column", category),
			attribute.String("chart.value_column", value),
		),
	)
	defer span.End()

	start := time.Now()
	rows, err := s.fullRows(ctx, datasetID)
	if err != nil && s.superseded(generation) {
		s.discard(ctx, span, datasetID)
		return nil, nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.WarnContext(ctx, "chart generation failed",
			slog.String("dataset.id", datasetID),
			slog.String("error", err.Error()),
		)
		if ctx.Err() == nil {
			s.notifier.Error(ctx, MsgChartFailed, err)
		}
		return nil, fmt.Errorf("%w: full rows of %s: %w", domain.ErrFetchFailed, datasetID, err)
	}

	series := domain.Aggregate(rows, category, value, domain.AggregateOptions{NullLabel: s.nullLabel})
	spec := &domain.ChartSpec{
		DatasetID:      datasetID,
		Type:           chartType,
		CategoryColumn: category,
		ValueColumn:    value,
		Series:         series,
		Axis:           domain.ComputeTicks(series.Values()),
		Rows:           len(rows),
		Grouping:       domain.ClassifyGrouping(len(series), len(rows)),
	}
	s.inst.RecordChartDuration(ctx, float64(time.Since(start).Milliseconds()))
	span.SetAttributes(
		attribute.Int("chart.categories", len(series)),
		attribute.String("chart.grouping", string(spec.Grouping)),
	)

	s.mu.Lock()
	superseded := generation != s.generation
	if !superseded {
		s.last = spec
	}
	s.mu.Unlock()
	if superseded {
		s.discard(ctx, span, datasetID)
		return nil, nil
	}
	return spec, nil
}

func (s *ChartService) superseded(generation uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return generation != s.generation
}

func (s *ChartService) discard(ctx context.Context, span trace.Span, datasetID string) {
	span.SetAttributes(attribute.Bool("chart.discarded", true))
	s.logger.DebugContext(ctx, "discarded superseded chart",
		slog.String("dataset.id", datasetID),
	)
}

// Render draws the last generated chart.
func (s *ChartService) Render(w io.Writer, format port.ImageFormat) error {
	spec := s.Last()
	if spec == nil {
		return domain.ErrNoChart
	}
	if err := s.renderer.Render(w, *spec, format); err != nil {
		return fmt.Errorf("rendering %s chart: %w", spec.Type, err)
	}
	return nil
}

// fullRows returns the unpaginated rows of datasetID, fetching them at most
// once. Concurrent callers share a single in-flight fetch, which outlives
// any one caller's cancellation; a cancelled caller stops waiting.
func (s *ChartService) fullRows(ctx context.Context, datasetID string) ([]domain.Row, error) {
	s.mu.Lock()
	rows, ok := s.rows[datasetID]
	s.mu.Unlock()
	if ok {
		return rows, nil
	}

	shared := context.WithoutCancel(ctx)
	ch := s.group.DoChan(datasetID, func() (any, error) {
		return s.fetchFull(shared, datasetID)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]domain.Row), nil
	}
}

func (s *ChartService) fetchFull(ctx context.Context, datasetID string) ([]domain.Row, error) {
	s.mu.Lock()
	epoch := s.epoch
	s.mu.Unlock()

	requestID := uuid.NewString()
	start := time.Now()
	page, err := s.source.View(ctx, datasetID, domain.ViewParams{})
	durationMS := time.Since(start).Milliseconds()
	s.inst.RecordFetchDuration(ctx, port.FetchFull, float64(durationMS))

	entry := port.AuditEntry{
		RequestID:  requestID,
		Kind:       port.FetchFull,
		DatasetID:  datasetID,
		DurationMS: durationMS,
		Err:        err,
	}
	if err != nil {
		s.auditor.Record(ctx, entry)
		s.inst.IncrementFetchErrors(ctx, port.FetchFull)
		return nil, err
	}
	entry.Rows = len(page.Rows)
	s.auditor.Record(ctx, entry)
	s.inst.IncrementFetchCount(ctx, port.FetchFull)

	rows := page.Rows
	if rows == nil {
		rows = []domain.Row{}
	}
	s.mu.Lock()
	if epoch == s.epoch {
		s.rows[datasetID] = rows
	}
	s.mu.Unlock()
	return rows, nil
}

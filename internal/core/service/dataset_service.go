package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/guillermoBallester/tabula/internal/core/port"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// DatasetService lists the available datasets and opens the first one.
type DatasetService struct {
	source   port.DatasetSource
	view     *ViewController
	notifier port.Notifier
	auditor  port.FetchAuditor
	logger   *slog.Logger
	tracer   trace.Tracer
	inst     port.Instrumentation
}

func NewDatasetService(source port.DatasetSource, view *ViewController, notifier port.Notifier, auditor port.FetchAuditor, logger *slog.Logger, tracer trace.Tracer, inst port.Instrumentation) *DatasetService {
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
	return &DatasetService{
		source:   source,
		view:     view,
		notifier: notifier,
		auditor:  auditor,
		logger:   logger,
		tracer:   tracer,
		inst:     inst,
	}
}

// List returns every dataset the collaborator offers.
func (s *DatasetService) List(ctx context.Context) ([]port.Dataset, error) {
	ctx, span := s.tracer.Start(ctx, "DatasetService.List")
	defer span.End()

	start := time.Now()
	datasets, err := s.source.ListDatasets(ctx)
	durationMS := time.Since(start).Milliseconds()
	s.inst.RecordFetchDuration(ctx, port.FetchList, float64(durationMS))

	s.auditor.Record(ctx, port.AuditEntry{
		RequestID:  uuid.NewString(),
		Kind:       port.FetchList,
		Rows:       len(datasets),
		DurationMS: durationMS,
		Err:        err,
	})

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.inst.IncrementFetchErrors(ctx, port.FetchList)
		s.logger.WarnContext(ctx, "dataset listing failed", slog.String("error", err.Error()))
		s.notifier.Error(ctx, MsgDatasetsFailed, err)
		return nil, fmt.Errorf("listing datasets: %w", err)
	}

	s.inst.IncrementFetchCount(ctx, port.FetchList)
	span.SetAttributes(attribute.Int("datasets.count", len(datasets)))
	if datasets == nil {
		datasets = []port.Dataset{}
	}
	return datasets, nil
}

// Open lists the datasets and, when none is selected yet, selects the
// first one. It returns the listing and the dataset that ended up selected,
// which is nil if the listing is empty.
func (s *DatasetService) Open(ctx context.Context) ([]port.Dataset, *port.Dataset, error) {
	datasets, err := s.List(ctx)
	if err != nil {
		return nil, nil, err
	}

	if current := s.view.DatasetID(); current != "" {
		for i := range datasets {
			if datasets[i].ID == current {
				return datasets, &datasets[i], nil
			}
		}
		return datasets, &port.Dataset{ID: current}, nil
	}
	if len(datasets) == 0 {
		return datasets, nil, nil
	}

	first := &datasets[0]
	if err := s.view.SelectDataset(ctx, first.ID); err != nil {
		return datasets, first, err
	}
	return datasets, first, nil
}

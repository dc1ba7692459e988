package service

import (
	"context"
	"fmt"
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
)

// Notification texts shown when a fetch fails.
const (
	MsgDatasetsFailed = "Failed to load datasets"
	MsgDataFailed     = "Failed to load data"
	MsgChartFailed    = "Chart generation failed."
)

// Table is the last successfully loaded page of the selected dataset. A
// Table is never mutated after it is published.
type Table struct {
	DatasetID   string                    `json:"dataset_id"`
	RequestID   string                    `json:"request_id"`
	State       domain.ViewState          `json:"state"`
	Rows        []domain.Row              `json:"data"`
	Columns     []domain.ClassifiedColumn `json:"columns"`
	Numeric     []string                  `json:"numeric_columns"`
	Categorical []string                  `json:"categorical_columns"`
	Total       int                       `json:"total"`
	TotalPages  int                       `json:"total_pages"`
	FetchedAt   time.Time                 `json:"fetched_at"`
}

type stagedSort struct {
	column string
	order  domain.SortOrder
}

// ViewController owns the view state of the selected dataset and keeps the
// visible table consistent with the most recently issued request. Responses
// to requests that were superseded before they completed are discarded.
type ViewController struct {
	source   port.DatasetSource
	pageSize int
	notifier port.Notifier
	auditor  port.FetchAuditor
	logger   *slog.Logger
	tracer   trace.Tracer
	inst     port.Instrumentation

	mu         sync.Mutex
	datasetID  string
	state      domain.ViewState
	staged     stagedSort
	totalPages int
	table      *Table
	issued     uint64 // sequence number of the latest issued request
	settled    uint64 // sequence number of the latest request that resolved
	onSwitch   []func(datasetID string)
}

func NewViewController(source port.DatasetSource, pageSize int, notifier port.Notifier, auditor port.FetchAuditor, logger *slog.Logger, tracer trace.Tracer, inst port.Instrumentation) *ViewController {
	if pageSize <= 0 {
		pageSize = domain.DefaultPageSize
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
	return &ViewController{
		source:     source,
		pageSize:   pageSize,
		notifier:   notifier,
		auditor:    auditor,
		logger:     logger,
		tracer:     tracer,
		inst:       inst,
		state:      domain.DefaultViewState(pageSize),
		totalPages: 1,
	}
}

// OnDatasetSwitch registers fn to run whenever a dataset is selected.
func (c *ViewController) OnDatasetSwitch(fn func(datasetID string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onSwitch = append(c.onSwitch, fn)
}

// DatasetID returns the selected dataset, or "" if none is selected.
func (c *ViewController) DatasetID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.datasetID
}

// State returns a copy of the current view state.
func (c *ViewController) State() domain.ViewState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Clone()
}

// TotalPages returns the page count of the last successful fetch, or 1
// before any fetch has completed.
func (c *ViewController) TotalPages() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalPages
}

// Current returns the visible table, or nil if nothing has loaded yet. After
// a dataset switch it may still belong to the previous dataset.
func (c *ViewController) Current() *Table {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.table
}

// Loading reports whether the latest issued request is still in flight.
func (c *ViewController) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settled != c.issued
}

// StagedSort returns the staged sort column and order.
func (c *ViewController) StagedSort() (string, domain.SortOrder) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.staged.column, c.staged.order
}

// SelectDataset switches to datasetID, resets the view state and fetches
// the first page. The previous dataset's table stays visible until that
// page arrives; its DatasetID tells the two apart.
func (c *ViewController) SelectDataset(ctx context.Context, datasetID string) error {
	if datasetID == "" {
		return domain.ErrNoDataset
	}

	c.mu.Lock()
	c.datasetID = datasetID
	c.state = domain.DefaultViewState(c.pageSize)
	c.staged = stagedSort{order: domain.SortAsc}
	c.totalPages = 1
	hooks := append([]func(string){}, c.onSwitch...)
	seq, state := c.issueLocked()
	c.mu.Unlock()

	for _, fn := range hooks {
		fn(datasetID)
	}
	return c.fetch(ctx, datasetID, state, seq)
}

// SetPage moves to page n. Pages outside [1, TotalPages] leave the state
// untouched and issue no request.
func (c *ViewController) SetPage(ctx context.Context, n int) error {
	c.mu.Lock()
	if c.datasetID == "" {
		c.mu.Unlock()
		return domain.ErrNoDataset
	}
	if n < 1 || n > c.totalPages {
		pages := c.totalPages
		c.mu.Unlock()
		return fmt.Errorf("%w: %d not in [1, %d]", domain.ErrPageOutOfRange, n, pages)
	}
	c.state.Page = n
	id := c.datasetID
	seq, state := c.issueLocked()
	c.mu.Unlock()

	return c.fetch(ctx, id, state, seq)
}

// NextPage advances one page.
func (c *ViewController) NextPage(ctx context.Context) error {
	return c.SetPage(ctx, c.State().Page+1)
}

// PrevPage goes back one page.
func (c *ViewController) PrevPage(ctx context.Context) error {
	return c.SetPage(ctx, c.State().Page-1)
}

// SetSearch applies a free-text search and returns to the first page.
func (c *ViewController) SetSearch(ctx context.Context, term string) error {
	return c.mutate(ctx, func(s *domain.ViewState) {
		s.Search = term
		s.Page = 1
	})
}

// StageSort records a pending sort choice without fetching.
func (c *ViewController) StageSort(column string, order domain.SortOrder) error {
	order, err := domain.ParseSortOrder(string(order))
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.staged = stagedSort{column: column, order: order}
	return nil
}

// ConfirmSort applies column and order as the active sort. The page is kept.
func (c *ViewController) ConfirmSort(ctx context.Context, column string, order domain.SortOrder) error {
	if column == "" {
		return domain.ErrSortNotStaged
	}
	order, err := domain.ParseSortOrder(string(order))
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.staged = stagedSort{column: column, order: order}
	c.mu.Unlock()

	return c.mutate(ctx, func(s *domain.ViewState) {
		s.SortColumn = column
		s.SortOrder = order
	})
}

// ApplyStagedSort confirms the staged sort.
func (c *ViewController) ApplyStagedSort(ctx context.Context) error {
	column, order := c.StagedSort()
	return c.ConfirmSort(ctx, column, order)
}

// SetFilter restricts column to rows whose cell equals value exactly. An
// empty value removes the filter. The page returns to 1.
func (c *ViewController) SetFilter(ctx context.Context, column, value string) error {
	return c.mutate(ctx, func(s *domain.ViewState) {
		if value == "" {
			delete(s.Filters, column)
		} else {
			if s.Filters == nil {
				s.Filters = make(map[string]string)
			}
			s.Filters[column] = value
		}
		s.Page = 1
	})
}

// ClearFilters removes every column filter and returns to the first page.
func (c *ViewController) ClearFilters(ctx context.Context) error {
	return c.mutate(ctx, func(s *domain.ViewState) {
		s.Filters = nil
		s.Page = 1
	})
}

// Refresh re-issues the request for the current state.
func (c *ViewController) Refresh(ctx context.Context) error {
	return c.mutate(ctx, func(*domain.ViewState) {})
}

func (c *ViewController) mutate(ctx context.Context, fn func(*domain.ViewState)) error {
	c.mu.Lock()
	if c.datasetID == "" {
		c.mu.Unlock()
		return domain.ErrNoDataset
	}
	fn(&c.state)
	id := c.datasetID
	seq, state := c.issueLocked()
	c.mu.Unlock()

	return c.fetch(ctx, id, state, seq)
}

// issueLocked allocates the next request sequence number. c.mu must be held.
func (c *ViewController) issueLocked() (uint64, domain.ViewState) {
	c.issued++
	return c.issued, c.state.Clone()
}

// fetch issues one view request and publishes its result if no later
// request was issued in the meantime. A superseded response is dropped and
// yields a nil error.
func (c *ViewController) fetch(ctx context.Context, datasetID string, state domain.ViewState, seq uint64) error {
	requestID := uuid.NewString()
	ctx, span := c.tracer.Start(ctx, "ViewController.fetch",
		trace.WithAttributes(
			attribute.String("dataset.id", datasetID),
			attribute.String("request.id", requestID),
			attribute.Int("view.page", state.Page),
			attribute.String("view.search", state.Search),
			attribute.String("view.sort_column", state.SortColumn),
		),
	)
	defer span.End()

	start := time.Now()
	page, err := c.source.View(ctx, datasetID, state.Params())
	durationMS := time.Since(start).Milliseconds()
	c.inst.RecordFetchDuration(ctx, port.FetchView, float64(durationMS))

	c.mu.Lock()
	superseded := seq != c.issued
	if !superseded {
		c.settled = seq
	}
	if err == nil && !superseded {
		c.table = newTable(datasetID, requestID, state, page, c.pageSize)
		c.totalPages = c.table.TotalPages
	}
	c.mu.Unlock()

	entry := port.AuditEntry{
		RequestID:  requestID,
		Kind:       port.FetchView,
		DatasetID:  datasetID,
		Page:       state.Page,
		DurationMS: durationMS,
		Discarded:  superseded,
		Err:        err,
	}
	if page != nil {
		entry.Rows = len(page.Rows)
	}
	c.auditor.Record(ctx, entry)
	span.SetAttributes(attribute.Bool("view.discarded", superseded))

	if superseded {
		c.inst.IncrementFetchDiscarded(ctx)
		c.logger.DebugContext(ctx, "discarded superseded view response",
			slog.String("dataset.id", datasetID),
			slog.String("request.id", requestID),
			slog.Int("view.page", state.Page),
		)
		return nil
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.inst.IncrementFetchErrors(ctx, port.FetchView)
		c.logger.WarnContext(ctx, "view fetch failed",
			slog.String("dataset.id", datasetID),
			slog.String("request.id", requestID),
			slog.Int("view.page", state.Page),
			slog.String("error", err.Error()),
		)
		c.notifier.Error(ctx, MsgDataFailed, err)
		return fmt.Errorf("%w: view %s: %w", domain.ErrFetchFailed, datasetID, err)
	}

	c.inst.IncrementFetchCount(ctx, port.FetchView)
	span.SetAttributes(attribute.Int("view.rows", len(page.Rows)), attribute.Int("view.total", page.Total))
	return nil
}

func newTable(datasetID, requestID string, state domain.ViewState, page *port.ViewPage, pageSize int) *Table {
	cols := domain.ClassifyColumns(page.Columns)
	numeric, categorical := domain.SplitByKind(cols)
	rows := page.Rows
	if rows == nil {
		rows = []domain.Row{}
	}
	return &Table{
		DatasetID:   datasetID,
		RequestID:   requestID,
		State:       state,
		Rows:        rows,
		Columns:     cols,
		Numeric:     numeric,
		Categorical: categorical,
		Total:       page.Total,
		TotalPages:  domain.TotalPages(page.Total, pageSize),
		FetchedAt:   time.Now().UTC(),
	}
}

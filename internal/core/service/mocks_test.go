package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/guillermoBallester/tabula/internal/core/domain"
	"github.com/guillermoBallester/tabula/internal/core/port"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var errBackend = errors.New("backend unavailable")

// --- mock DatasetSource ---

type viewCall struct {
	datasetID string
	params    domain.ViewParams
}

type mockSource struct {
	mu       sync.Mutex
	datasets []port.Dataset
	listErr  error
	viewFn   func(ctx context.Context, datasetID string, params domain.ViewParams) (*port.ViewPage, error)
	calls    []viewCall
	lists    int
}

func (m *mockSource) ListDatasets(context.Context) ([]port.Dataset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lists++
	return m.datasets, m.listErr
}

func (m *mockSource) View(ctx context.Context, datasetID string, params domain.ViewParams) (*port.ViewPage, error) {
	m.mu.Lock()
	m.calls = append(m.calls, viewCall{datasetID: datasetID, params: params})
	fn := m.viewFn
	m.mu.Unlock()
	if fn == nil {
		return &port.ViewPage{}, nil
	}
	return fn(ctx, datasetID, params)
}

func (m *mockSource) viewCalls() []viewCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]viewCall(nil), m.calls...)
}

func (m *mockSource) setViewFn(fn func(context.Context, string, domain.ViewParams) (*port.ViewPage, error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.viewFn = fn
}

// pagedView serves total rows, each tagged with its page number.
func pagedView(total int) func(context.Context, string, domain.ViewParams) (*port.ViewPage, error) {
	return func(_ context.Context, _ string, p domain.ViewParams) (*port.ViewPage, error) {
		return &port.ViewPage{
			Rows: []domain.Row{{"page": domain.Number(float64(p.Page))}},
			Columns: []domain.Column{
				{Name: "page", SampleValues: []string{"1", "2", "3"}},
				{Name: "city", SampleValues: []string{"Paris", "Lyon"}},
			},
			Total: total,
		}, nil
	}
}

// --- recording Notifier ---

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *recordingNotifier) Error(_ context.Context, message string, _ error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, message)
}

func (n *recordingNotifier) all() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.messages...)
}

// --- recording FetchAuditor ---

type recordingAuditor struct {
	mu      sync.Mutex
	entries []port.AuditEntry
}

func (a *recordingAuditor) Record(_ context.Context, e port.AuditEntry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, e)
}

func (a *recordingAuditor) Close() error { return nil }

func (a *recordingAuditor) all() []port.AuditEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]port.AuditEntry(nil), a.entries...)
}

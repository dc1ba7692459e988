package audit

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"

	"github.com/guillermoBallester/tabula/internal/core/port"
)

// fileEntry is one NDJSON line of the fetch audit log.
type fileEntry struct {
	Timestamp  string         `json:"ts"`
	RequestID  string         `json:"request_id"`
	Kind       port.FetchKind `json:"kind"`
	Dataset    string         `json:"dataset,omitempty"`
	Page       int            `json:"page,omitempty"`
	Rows       int            `json:"rows"`
	DurationMS int64          `json:"duration_ms"`
	Discarded  bool           `json:"discarded"`
	Error      *string        `json:"error"`
}

// FileAuditor appends fetch audit entries as NDJSON.
type FileAuditor struct {
	mu  sync.Mutex
	w   io.WriteCloser
	enc *json.Encoder
	now func() time.Time
}

// NewFileAuditor opens (or creates) the file at path for append-only writing.
func NewFileAuditor(path string) (*FileAuditor, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return newAuditor(f), nil
}

func newAuditor(w io.WriteCloser) *FileAuditor {
	return &FileAuditor{
		w:   w,
		enc: json.NewEncoder(w),
		now: time.Now,
	}
}

func (a *FileAuditor) Record(_ context.Context, entry port.AuditEntry) {
	fe := fileEntry{
		Timestamp:  a.now().UTC().Format(time.RFC3339Nano),
		RequestID:  entry.RequestID,
		Kind:       entry.Kind,
		Dataset:    entry.DatasetID,
		Page:       entry.Page,
		Rows:       entry.Rows,
		DurationMS: entry.DurationMS,
		Discarded:  entry.Discarded,
	}
	if entry.Err != nil {
		s := entry.Err.Error()
		fe.Error = &s
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	_ = a.enc.Encode(fe) // audit I/O never fails a fetch
}

func (a *FileAuditor) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.w.Close()
}

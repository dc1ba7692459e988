package port

import "context"

// FetchKind labels which collaborator call an audit entry describes.
type FetchKind string

const (
	FetchList FetchKind = "list"
	FetchView FetchKind = "view"
	FetchFull FetchKind = "full"
)

// AuditEntry represents a single collaborator fetch.
type AuditEntry struct {
	RequestID  string
	Kind       FetchKind
	DatasetID  string
	Page       int
	Rows       int
	DurationMS int64
	Discarded  bool
	Err        error
}

// FetchAuditor records fetch audit events.
type FetchAuditor interface {
	Record(ctx context.Context, entry AuditEntry)
	Close() error
}

// NoopAuditor discards all audit entries.
type NoopAuditor struct{}

func (NoopAuditor) Record(context.Context, AuditEntry) {}
func (NoopAuditor) Close() error                       { return nil }

package port

import "context"

// Notifier surfaces transient, non-blocking messages to the user.
type Notifier interface {
	Error(ctx context.Context, message string, err error)
}

// NoopNotifier drops every notification.
type NoopNotifier struct{}

func (NoopNotifier) Error(context.Context, string, error) {}

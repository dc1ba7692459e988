package mcp

import (
	"context"
	"log/slog"

	"github.com/guillermoBallester/tabula/internal/core/port"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const methodNotificationMessage = "notifications/message"

// Notifier delivers transient user notifications as MCP log messages to
// every connected client.
type Notifier struct {
	server *server.MCPServer
	logger *slog.Logger
}

var _ port.Notifier = (*Notifier)(nil)

func NewNotifier(s *server.MCPServer, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Notifier{server: s, logger: logger}
}

func (n *Notifier) Error(ctx context.Context, message string, err error) {
	data := map[string]any{"message": message}
	attrs := []slog.Attr{slog.String("notification", message)}
	if err != nil {
		data["error"] = err.Error()
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	n.logger.LogAttrs(ctx, slog.LevelDebug, "user notification", attrs...)

	n.server.SendNotificationToAllClients(methodNotificationMessage, map[string]any{
		"level":  string(mcp.LoggingLevelError),
		"logger": serverName,
		"data":   data,
	})
}

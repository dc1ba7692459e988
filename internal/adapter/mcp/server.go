package mcp

import (
	"log/slog"

	"github.com/guillermoBallester/tabula/internal/core/port"
	"github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/otel/trace"
)

// NewServer creates an MCPServer with logging and tracing hooks. Tools are
// added with RegisterTools once the services exist.
func NewServer(version string, logger *slog.Logger, tracer trace.Tracer, inst port.Instrumentation) *server.MCPServer {
	return server.NewMCPServer(
		serverName,
		version,
		server.WithToolCapabilities(true),
		server.WithLogging(),
		server.WithHooks(ToolCallHooks(logger, tracer, inst)),
	)
}

package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/guillermoBallester/tabula/internal/core/port"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// inflight is the bookkeeping for one tools/call between its before and
// after hooks.
type inflight struct {
	tool  string
	start time.Time
	span  trace.Span
}

// callTracker pairs the before, after and error hooks of a tool call by
// request id.
type callTracker struct {
	logger *slog.Logger
	tracer trace.Tracer
	inst   port.Instrumentation
	calls  sync.Map // request id -> *inflight
}

// ToolCallHooks returns hooks that give every tool call a span, a log line
// and a duration sample tagged with the tool name and outcome.
func ToolCallHooks(logger *slog.Logger, tracer trace.Tracer, inst port.Instrumentation) *server.Hooks {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("")
	}
	if inst == nil {
		inst = port.NoopInstrumentation{}
	}
	t := &callTracker{logger: logger, tracer: tracer, inst: inst}

	hooks := &server.Hooks{}
	hooks.AddBeforeCallTool(t.begin)
	hooks.AddAfterCallTool(func(ctx context.Context, id any, req *mcp.CallToolRequest, result any) {
		var failure error
		if r, ok := result.(*mcp.CallToolResult); ok && r.IsError {
			failure = fmt.Errorf("tool %s: %s", req.Params.Name, resultText(r))
		}
		t.finish(ctx, id, slog.LevelWarn, failure)
	})
	hooks.AddOnError(func(ctx context.Context, id any, method mcp.MCPMethod, message any, err error) {
		if method != mcp.MethodToolsCall {
			return
		}
		t.finish(ctx, id, slog.LevelError, err)
	})
	return hooks
}

func (t *callTracker) begin(ctx context.Context, id any, req *mcp.CallToolRequest) {
	_, span := t.tracer.Start(ctx, "mcp.tool."+req.Params.Name,
		trace.WithAttributes(attribute.String("mcp.tool", req.Params.Name)),
	)
	t.calls.Store(id, &inflight{tool: req.Params.Name, start: time.Now(), span: span})
}

// finish closes the call registered under id. Failures are logged at
// failLevel; a call that never passed begin is ignored.
func (t *callTracker) finish(ctx context.Context, id any, failLevel slog.Level, failure error) {
	v, ok := t.calls.LoadAndDelete(id)
	if !ok {
		return
	}
	call := v.(*inflight)
	elapsed := time.Since(call.start)
	failed := failure != nil

	attrs := []slog.Attr{
		slog.String("rpc.method", string(mcp.MethodToolsCall)),
		slog.String("mcp.tool", call.tool),
		slog.Duration("duration", elapsed),
	}
	level := slog.LevelInfo
	if failed {
		level = failLevel
		attrs = append(attrs, slog.String("error", failure.Error()))
	}
	t.logger.LogAttrs(ctx, level, "tool call", attrs...)

	t.inst.RecordToolDuration(ctx, call.tool, failed, float64(elapsed.Milliseconds()))

	call.span.SetAttributes(attribute.Bool("mcp.tool.error", failed))
	if failed {
		call.span.RecordError(failure)
		call.span.SetStatus(codes.Error, failure.Error())
	}
	call.span.End()
}

func resultText(r *mcp.CallToolResult) string {
	for _, c := range r.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return "error result"
}

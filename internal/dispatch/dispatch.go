// Package dispatch is the boundary between the call protocol and the tool
// handlers. Every call goes through Handle, which checks the envelope and the
// arguments, runs the handler and turns any failure into a structured result.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/flynn-ai/corrode/internal/errors"
	"github.com/flynn-ai/corrode/internal/logging"
	"github.com/flynn-ai/corrode/internal/metrics"
	"github.com/flynn-ai/corrode/internal/tools"
	"github.com/flynn-ai/corrode/internal/tools/executor"
	"github.com/flynn-ai/corrode/internal/transcript"
	"github.com/flynn-ai/corrode/pkg/protocol"
)

// unknownTool is the metrics label for calls naming no registered tool.
const unknownTool = "unknown"

// Recorder persists finished calls.
type Recorder interface {
	Record(ctx context.Context, e transcript.Entry) error
}

// Options configures a Dispatcher.
type Options struct {
	// CallTimeout bounds a single handler run. Zero means no bound beyond the
	// caller's context.
	CallTimeout time.Duration

	Metrics    *metrics.Metrics
	Transcript Recorder
}

// Dispatcher routes tool calls to the registry.
type Dispatcher struct {
	registry   *tools.Registry
	timeout    time.Duration
	metrics    *metrics.Metrics
	transcript Recorder
	logger     *slog.Logger
}

// New creates a dispatcher over registry.
func New(registry *tools.Registry, opts Options, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Dispatcher{
		registry:   registry,
		timeout:    opts.CallTimeout,
		metrics:    opts.Metrics,
		transcript: opts.Transcript,
		logger:     logger,
	}
}

// Registry returns the registry calls are dispatched to.
func (d *Dispatcher) Registry() *tools.Registry {
	return d.registry
}

// Handle runs one call. It never returns nil and never panics.
func (d *Dispatcher) Handle(ctx context.Context, call protocol.ToolCall) *protocol.ToolResult {
	callID := uuid.NewString()
	start := time.Now()
	done := d.metrics.TrackCall(d.metricLabel(call.Name))

	args, result := d.handle(ctx, call)

	duration := time.Since(start)
	code := ""
	outcome := metrics.OutcomeOK
	if result.IsError {
		code = result.Error.Code
		outcome = code
	}
	done(outcome)

	level := slog.LevelInfo
	if result.IsError {
		level = slog.LevelWarn
	}
	d.logger.Log(ctx, level, "tool call",
		"call_id", callID,
		"tool", call.Name,
		"duration", duration,
		"is_error", result.IsError,
		"code", code,
	)

	d.record(ctx, callID, call.Name, args, result, duration)
	return result
}

func (d *Dispatcher) handle(ctx context.Context, call protocol.ToolCall) (map[string]any, *protocol.ToolResult) {
	if strings.TrimSpace(call.Name) == "" {
		return nil, errorResult(apperrors.User(apperrors.CodeProtocolError, "tool name is required"))
	}
	args, err := call.DecodeArguments()
	if err != nil {
		return nil, errorResult(apperrors.Wrap(err, apperrors.CodeProtocolError, "malformed tool call", apperrors.CategoryUser))
	}

	tool, schema, ok := d.registry.Lookup(call.Name)
	if !ok {
		return args, errorResult(apperrors.NewBuilder(apperrors.CodeToolNotFound, "tool not found: "+call.Name).
			User().
			WithContext("tool", call.Name).
			WithSuggestion("List the available tools and retry with one of their names").
			Build())
	}

	if problems := schema.Check(args); len(problems) > 0 {
		return args, errorResult(apperrors.InvalidArguments(problems))
	}

	res, err := d.invoke(ctx, tool, args)
	if err != nil {
		return args, errorResult(err)
	}
	return args, successResult(res)
}

// invoke runs the handler under the call timeout, converting panics and
// unsuccessful results into errors.
func (d *Dispatcher) invoke(ctx context.Context, tool executor.Tool, args map[string]any) (res *executor.Result, err error) {
	callCtx := ctx
	if d.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("tool panicked", "tool", tool.Name(), "panic", r, "stack", string(debug.Stack()))
			res = nil
			err = apperrors.NewBuilder(apperrors.CodeToolPanic, fmt.Sprintf("tool %s panicked: %v", tool.Name(), r)).
				System().
				WithContext("tool", tool.Name()).
				Build()
		}
	}()

	res, err = tool.Execute(callCtx, args)
	if err == nil && res != nil && !res.Success {
		err = res.Err
		if err == nil {
			err = apperrors.New(apperrors.CodeToolExecutionFailed, "tool reported failure without an error", apperrors.CategorySystem)
		}
	}
	if err != nil {
		return nil, d.timeoutError(ctx, callCtx, tool.Name(), err)
	}
	if res == nil {
		return nil, apperrors.New(apperrors.CodeToolExecutionFailed, "tool returned no result", apperrors.CategorySystem)
	}
	return res, nil
}

// timeoutError replaces an uncoded failure caused by the call deadline with
// TOOL_TIMEOUT. Coded errors (a shell timeout, say) are kept as they are.
func (d *Dispatcher) timeoutError(parent, callCtx context.Context, name string, err error) error {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(callCtx.Err(), context.DeadlineExceeded) && parent.Err() == nil {
		return apperrors.NewBuilder(apperrors.CodeToolTimeout, fmt.Sprintf("tool %s exceeded the %s call timeout", name, d.timeout)).
			Temporary().
			Wrap(err).
			WithContext("timeout_ms", d.timeout.Milliseconds()).
			Build()
	}
	return err
}

func (d *Dispatcher) metricLabel(name string) string {
	if _, _, ok := d.registry.Lookup(name); ok {
		return name
	}
	return unknownTool
}

func (d *Dispatcher) record(ctx context.Context, callID, name string, args map[string]any, result *protocol.ToolResult, duration time.Duration) {
	if d.transcript == nil {
		return
	}

	argsJSON, err := protocol.Marshal(args)
	if err != nil {
		argsJSON = []byte("null")
	}
	resultJSON, err := protocol.Marshal(result)
	if err != nil {
		d.logger.Warn("encoding transcript result", "call_id", callID, "error", err)
		return
	}

	entry := transcript.Entry{
		ID:        callID,
		Tool:      name,
		Arguments: strings.TrimSpace(string(argsJSON)),
		Result:    strings.TrimSpace(string(resultJSON)),
		IsError:   result.IsError,
		Duration:  duration,
		CreatedAt: time.Now(),
	}
	if result.Error != nil {
		entry.Code = result.Error.Code
	}

	// The call has already finished; recording it should not fail because
	// the client went away.
	if err := d.transcript.Record(context.WithoutCancel(ctx), entry); err != nil {
		d.logger.Warn("recording transcript", "call_id", callID, "error", err)
	}
}

func successResult(res *executor.Result) *protocol.ToolResult {
	out := &protocol.ToolResult{Content: []protocol.ContentBlock{}}
	if res.Text != "" {
		out.Content = append(out.Content, protocol.ContentBlock{Type: protocol.ContentText, Text: res.Text})
	}
	if res.Data != nil {
		out.Content = append(out.Content, protocol.ContentBlock{Type: protocol.ContentJSON, Data: res.Data})
	}
	return out
}

func errorResult(err error) *protocol.ToolResult {
	return protocol.ErrorResult(Detail(err))
}

// Detail converts err into its wire form. Plain errors are reported as
// non-retryable system failures.
func Detail(err error) *protocol.ErrorDetail {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		return &protocol.ErrorDetail{
			Code:     apperrors.CodeToolExecutionFailed,
			Category: apperrors.CategorySystem.String(),
			Message:  err.Error(),
		}
	}

	detail := &protocol.ErrorDetail{
		Code:         apperrors.GetCode(err),
		Category:     apperrors.GetCategory(err).String(),
		Message:      strings.TrimPrefix(err.Error(), "["+appErr.Code+"] "),
		Retryable:    apperrors.IsRetryable(err),
		RetryAfterMs: apperrors.GetRetryAfter(err).Milliseconds(),
		Suggestions:  apperrors.GetSuggestions(err),
	}

	if errCtx := apperrors.GetContext(err); len(errCtx) > 0 {
		ctx := maps.Clone(errCtx)
		if fields, ok := ctx["fields"].([]string); ok {
			detail.Fields = fields
			delete(ctx, "fields")
		}
		if len(ctx) > 0 {
			detail.Context = ctx
		}
	}
	return detail
}

package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ZhengWei0000/Shopping-Assistant/internal/domain"
	"github.com/ZhengWei0000/Shopping-Assistant/internal/tools"
)

// Toolset is the static set of tools the machine may dispatch.
type Toolset interface {
	Lookup(name string) (tools.Tool, bool)
	ConfirmationRequired() []string
}

// ErrorMessage formats a tool failure for the decision step.
func ErrorMessage(err error) string {
	desc := strings.TrimRight(strings.TrimSpace(err.Error()), ".")
	return fmt.Sprintf("Error: %s. Please fix your mistakes.", desc)
}

// DenialMessage formats a user's refusal of a pending tool call.
func DenialMessage(reason string) string {
	return fmt.Sprintf("API call denied by user. Reasoning: '%s'. Continue assisting, accounting for the user's input.", reason)
}

// SkippedMessage answers a tool call that was not executed because only
// the first call of a message runs.
func SkippedMessage(name string) string {
	return fmt.Sprintf("Skipped: only the first tool call of a response is executed. Request %s again if it is still needed.", name)
}

// Dispatcher executes tool invocations and turns every outcome into
// exactly one tool message.
type Dispatcher struct {
	tools   Toolset
	timeout time.Duration
	logger  *slog.Logger
	tracer  trace.Tracer
}

// NewDispatcher creates a Dispatcher. A zero timeout leaves tools bounded
// only by the caller's context.
func NewDispatcher(ts Toolset, timeout time.Duration, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{tools: ts, timeout: timeout, logger: logger, tracer: defaultTracer()}
}

type toolOutcome struct {
	payload any
	err     error
}

// Dispatch runs inv as userID. Failures, panics, unknown names and
// timeouts are reported in the returned message, never as an error.
func (d *Dispatcher) Dispatch(ctx context.Context, sessionID, userID string, inv domain.ToolInvocation) domain.Message {
	ctx, span := d.tracer.Start(ctx, "assistant.dispatch", trace.WithAttributes(
		attribute.String("session_id", sessionID),
		attribute.String("tool", inv.Name),
	))
	defer span.End()

	payload, err := d.run(ctx, sessionID, userID, inv)
	if err == nil {
		var content []byte
		content, err = json.Marshal(payload)
		if err == nil {
			return domain.NewToolMessage(inv.ID, string(content), false)
		}
		err = fmt.Errorf("encode result of %s: %w", inv.Name, err)
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, "tool failed")
	d.logger.Warn("tool invocation failed",
		"session_id", sessionID,
		"tool", inv.Name,
		"invocation_id", inv.ID,
		"error", err)
	return domain.NewToolMessage(inv.ID, ErrorMessage(err), true)
}

func (d *Dispatcher) run(ctx context.Context, sessionID, userID string, inv domain.ToolInvocation) (any, error) {
	tool, ok := d.tools.Lookup(inv.Name)
	if !ok {
		return nil, fmt.Errorf("%s is not a valid tool, try one of the available tools", inv.Name)
	}

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	call := tools.Call{SessionID: sessionID, UserID: userID, Args: tools.Args(inv.Args)}
	if call.Args == nil {
		call.Args = tools.Args{}
	}

	done := make(chan toolOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- toolOutcome{err: fmt.Errorf("tool %s panicked: %v", inv.Name, r)}
			}
		}()
		payload, err := tool.Run(ctx, call)
		done <- toolOutcome{payload: payload, err: err}
	}()

	select {
	case out := <-done:
		return out.payload, out.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("tool %s timed out", inv.Name)
		}
		return nil, fmt.Errorf("tool %s cancelled: %w", inv.Name, ctx.Err())
	}
}

package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ZhengWei0000/Shopping-Assistant/internal/domain"
)

// CorrectiveInstruction is appended to the working copy of the conversation
// when the decision step returns an unusable result.
const CorrectiveInstruction = "Please provide a detailed response."

// DecisionRequest is the input to one decision step invocation.
type DecisionRequest struct {
	SessionID string
	Messages  []domain.Message
	Identity  string
}

// DecisionStep produces the next assistant message for a conversation.
type DecisionStep interface {
	Decide(ctx context.Context, req DecisionRequest) (domain.Message, error)
}

// DecisionStepFunc adapts a function to DecisionStep.
type DecisionStepFunc func(ctx context.Context, req DecisionRequest) (domain.Message, error)

// Decide calls f.
func (f DecisionStepFunc) Decide(ctx context.Context, req DecisionRequest) (domain.Message, error) {
	return f(ctx, req)
}

// Usable reports whether msg can be routed: it requests a tool or carries
// non-blank text.
func Usable(msg domain.Message) bool {
	if msg.HasToolCalls() {
		return true
	}
	return strings.TrimSpace(msg.Text()) != ""
}

// Decider wraps a DecisionStep with bounded re-prompting.
type Decider struct {
	step        DecisionStep
	maxAttempts int
	timeout     time.Duration
	logger      *slog.Logger
	tracer      trace.Tracer
}

// NewDecider creates a Decider. maxAttempts of zero means no cap; a zero
// timeout leaves each call bounded only by the caller's context.
func NewDecider(step DecisionStep, maxAttempts int, timeout time.Duration, logger *slog.Logger) *Decider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Decider{
		step:        step,
		maxAttempts: maxAttempts,
		timeout:     timeout,
		logger:      logger,
		tracer:      defaultTracer(),
	}
}

// Decide returns the first usable assistant message. The caller's slice is
// never modified; corrective instructions only live in a local copy.
func (d *Decider) Decide(ctx context.Context, req DecisionRequest) (domain.Message, error) {
	ctx, span := d.tracer.Start(ctx, "assistant.decide",
		trace.WithAttributes(attribute.String("session_id", req.SessionID)))
	defer span.End()

	working := make([]domain.Message, len(req.Messages), len(req.Messages)+1)
	copy(working, req.Messages)

	for attempt := 1; ; attempt++ {
		if d.maxAttempts > 0 && attempt > d.maxAttempts {
			span.SetStatus(codes.Error, "retry cap reached")
			return domain.Message{}, fmt.Errorf("%w after %d attempts", ErrDecisionUnproductive, d.maxAttempts)
		}
		if err := ctx.Err(); err != nil {
			return domain.Message{}, err
		}

		msg, err := d.invoke(ctx, DecisionRequest{
			SessionID: req.SessionID,
			Messages:  working,
			Identity:  req.Identity,
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "decision step failed")
			return domain.Message{}, fmt.Errorf("decision step: %w", err)
		}

		if Usable(msg) {
			span.SetAttributes(attribute.Int("attempts", attempt), attribute.Int("tool_calls", len(msg.ToolCalls)))
			return normalize(msg), nil
		}

		d.logger.Warn("decision step returned unusable response, re-prompting",
			"session_id", req.SessionID,
			"attempt", attempt)
		working = append(working, domain.NewUserMessage(CorrectiveInstruction))
	}
}

func (d *Decider) invoke(ctx context.Context, req DecisionRequest) (domain.Message, error) {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	return d.step.Decide(ctx, req)
}

// normalize stamps the fields the rest of the machine relies on.
func normalize(msg domain.Message) domain.Message {
	msg.Role = domain.RoleAssistant
	msg.ToolCallID = ""
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	if len(msg.ToolCalls) > 0 {
		calls := make([]domain.ToolInvocation, len(msg.ToolCalls))
		copy(calls, msg.ToolCalls)
		for i := range calls {
			if calls[i].ID == "" {
				calls[i].ID = "call_" + uuid.NewString()
			}
		}
		msg.ToolCalls = calls
	}
	return msg
}

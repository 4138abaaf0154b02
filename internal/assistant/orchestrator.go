// Package assistant implements the resumable conversation state machine:
// decide, optionally wait for confirmation, act, decide again.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ZhengWei0000/Shopping-Assistant/internal/domain"
	"github.com/ZhengWei0000/Shopping-Assistant/internal/store"
)

const tracerName = "github.com/ZhengWei0000/Shopping-Assistant/internal/assistant"

func defaultTracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// Phase is a state of the machine. Only PhaseIdle and PhaseSuspended are
// ever persisted; the others exist while a turn is running.
type Phase string

const (
	PhaseIdle             Phase = "idle"
	PhaseAwaitingDecision Phase = "awaiting_decision"
	PhaseDispatching      Phase = "dispatching"
	PhaseSuspended        Phase = "suspended_for_confirmation"
)

// Config bounds the machine.
type Config struct {
	DecisionMaxAttempts int
	DecisionTimeout     time.Duration
	ToolTimeout         time.Duration
	MaxToolRounds       int
	FailClosed          bool
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		DecisionMaxAttempts: 5,
		DecisionTimeout:     60 * time.Second,
		ToolTimeout:         15 * time.Second,
		MaxToolRounds:       25,
	}
}

// Recorder observes messages once the turn that produced them is committed.
type Recorder interface {
	Record(ctx context.Context, sessionID, userID string, msgs []domain.Message)
}

// Result is what a caller gets back at the end of a turn.
type Result struct {
	SessionID string                 `json:"session_id"`
	State     domain.SessionState    `json:"state"`
	Reply     *domain.Message        `json:"reply,omitempty"`
	Pending   *domain.ToolInvocation `json:"pending,omitempty"`
	Appended  []domain.Message       `json:"appended,omitempty"`
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithRecorder registers a transcript recorder.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithTracer overrides the global tracer.
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) {
		if t != nil {
			o.tracer = t
		}
	}
}

// Orchestrator sequences Decider, Router and Dispatcher for many
// independent sessions.
type Orchestrator struct {
	store      store.CheckpointStore
	decider    *Decider
	router     *Router
	dispatcher *Dispatcher
	locks      *sessionLocks
	cfg        Config
	logger     *slog.Logger
	tracer     trace.Tracer
	recorder   Recorder
}

// New creates an Orchestrator. The confirmation set is read from toolset
// once and fixed for the orchestrator's lifetime.
func New(step DecisionStep, toolset Toolset, st store.CheckpointStore, cfg Config, opts ...Option) (*Orchestrator, error) {
	if step == nil {
		return nil, errors.New("decision step is required")
	}
	if toolset == nil {
		return nil, errors.New("toolset is required")
	}
	if st == nil {
		return nil, errors.New("checkpoint store is required")
	}
	if cfg.DecisionMaxAttempts < 0 || cfg.MaxToolRounds < 0 {
		return nil, errors.New("attempt and round limits must not be negative")
	}

	o := &Orchestrator{
		store:  st,
		locks:  newSessionLocks(),
		cfg:    cfg,
		logger: slog.Default(),
		tracer: defaultTracer(),
	}
	for _, opt := range opts {
		opt(o)
	}

	known := func(name string) bool {
		_, ok := toolset.Lookup(name)
		return ok
	}
	o.decider = NewDecider(step, cfg.DecisionMaxAttempts, cfg.DecisionTimeout, o.logger)
	o.decider.tracer = o.tracer
	o.router = NewRouter(toolset.ConfirmationRequired(), known, cfg.FailClosed)
	o.dispatcher = NewDispatcher(toolset, cfg.ToolTimeout, o.logger)
	o.dispatcher.tracer = o.tracer
	return o, nil
}

// Advance appends the user's text and runs the machine until the turn ends
// idle or suspended. An empty identity falls back to the checkpoint's user.
func (o *Orchestrator) Advance(ctx context.Context, sessionID, identity, text string) (res *Result, err error) {
	ctx, span := o.tracer.Start(ctx, "assistant.Advance", trace.WithAttributes(attribute.String("session_id", sessionID)))
	defer func() { endSpan(span, err) }()

	if sessionID == "" {
		return nil, ErrInvalidIdentity
	}
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyMessage
	}

	release, ok := o.locks.TryLock(sessionID)
	if !ok {
		return nil, ErrSessionBusy
	}
	defer release()

	base, err := o.load(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		base = domain.NewCheckpoint(sessionID, identity)
	} else if err != nil {
		return nil, err
	}

	if identity == "" {
		identity = base.UserID
	}
	if identity == "" {
		return nil, ErrInvalidIdentity
	}
	if base.UserID != "" && identity != base.UserID {
		o.logger.Warn("identity does not own session", "session_id", sessionID, "user_id", identity)
		return nil, fmt.Errorf("%w: session belongs to another user", ErrInvalidIdentity)
	}
	if base.IsSuspended() {
		return nil, ErrConfirmationPending
	}

	work := base.Clone()
	if work.UserID == "" {
		work.UserID = identity
	}
	work.Messages = append(work.Messages, domain.NewUserMessage(text))
	o.transition(sessionID, PhaseIdle, PhaseAwaitingDecision)

	res, err = o.run(ctx, work, identity)
	if err != nil {
		return nil, err
	}
	return o.commit(ctx, base, work, res)
}

// Resume answers the pending confirmation. When confirmed, exactly the
// pending invocation runs; otherwise the explanation is handed to the
// decision step as the tool's result.
func (o *Orchestrator) Resume(ctx context.Context, sessionID string, confirmed bool, explanation string) (res *Result, err error) {
	ctx, span := o.tracer.Start(ctx, "assistant.Resume", trace.WithAttributes(
		attribute.String("session_id", sessionID),
		attribute.Bool("confirmed", confirmed),
	))
	defer func() { endSpan(span, err) }()

	if sessionID == "" {
		return nil, ErrInvalidIdentity
	}

	release, ok := o.locks.TryLock(sessionID)
	if !ok {
		return nil, ErrSessionBusy
	}
	defer release()

	base, err := o.load(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNoPendingConfirmation
	} else if err != nil {
		return nil, err
	}
	if !base.IsSuspended() {
		return nil, ErrNoPendingConfirmation
	}
	identity := base.UserID
	if identity == "" {
		return nil, ErrInvalidIdentity
	}

	work := base.Clone()
	inv := *work.Pending
	work.ClearPending()

	var answer domain.Message
	if confirmed {
		o.transition(sessionID, PhaseSuspended, PhaseDispatching)
		answer = o.dispatcher.Dispatch(ctx, sessionID, identity, inv)
	} else {
		o.logger.Info("pending tool call denied", "session_id", sessionID, "tool", inv.Name)
		answer = domain.NewToolMessage(inv.ID, DenialMessage(explanation), false)
	}
	work.Messages = append(work.Messages, answer)
	if last, ok := work.LastAssistant(); ok {
		work.Messages = appendSkipped(work.Messages, last)
	}
	o.transition(sessionID, PhaseDispatching, PhaseAwaitingDecision)

	res, err = o.run(ctx, work, identity)
	if err != nil {
		return nil, err
	}
	return o.commit(ctx, base, work, res)
}

// Snapshot returns the current checkpoint. An unknown session is reported
// as a fresh idle checkpoint.
func (o *Orchestrator) Snapshot(ctx context.Context, sessionID string) (*domain.Checkpoint, error) {
	if sessionID == "" {
		return nil, ErrInvalidIdentity
	}
	cp, err := o.load(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.NewCheckpoint(sessionID, ""), nil
	}
	return cp, err
}

// Reset discards the session's conversation.
func (o *Orchestrator) Reset(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrInvalidIdentity
	}
	release, ok := o.locks.TryLock(sessionID)
	if !ok {
		return ErrSessionBusy
	}
	defer release()

	if err := o.store.Delete(ctx, sessionID); err != nil {
		return storeError("delete checkpoint", err)
	}
	o.logger.Info("session reset", "session_id", sessionID)
	return nil
}

// run loops decide, route and dispatch on work until the turn ends.
func (o *Orchestrator) run(ctx context.Context, work *domain.Checkpoint, identity string) (*Result, error) {
	rounds := 0
	for {
		msg, err := o.decider.Decide(ctx, DecisionRequest{
			SessionID: work.SessionID,
			Messages:  work.Messages,
			Identity:  identity,
		})
		if err != nil {
			o.logger.Error("decision step failed", "session_id", work.SessionID, "error", err)
			return nil, err
		}
		work.Messages = append(work.Messages, msg)
		reply := msg

		decision := o.router.Route(msg)
		switch decision.Route {
		case RouteTerminate:
			work.ClearPending()
			o.transition(work.SessionID, PhaseAwaitingDecision, PhaseIdle)
			return &Result{SessionID: work.SessionID, State: domain.StateIdle, Reply: &reply}, nil

		case RouteSuspend:
			work.Suspend(decision.Invocation)
			o.transition(work.SessionID, PhaseAwaitingDecision, PhaseSuspended)
			pending := decision.Invocation
			return &Result{SessionID: work.SessionID, State: domain.StateSuspended, Reply: &reply, Pending: &pending}, nil

		case RouteDispatch:
			rounds++
			if o.cfg.MaxToolRounds > 0 && rounds > o.cfg.MaxToolRounds {
				o.logger.Error("tool round limit reached", "session_id", work.SessionID, "rounds", o.cfg.MaxToolRounds)
				return nil, fmt.Errorf("%w (limit %d)", ErrTooManyToolRounds, o.cfg.MaxToolRounds)
			}
			o.transition(work.SessionID, PhaseAwaitingDecision, PhaseDispatching)
			work.Messages = append(work.Messages, o.dispatcher.Dispatch(ctx, work.SessionID, identity, decision.Invocation))
			work.Messages = appendSkipped(work.Messages, msg)
			o.transition(work.SessionID, PhaseDispatching, PhaseAwaitingDecision)
		}
	}
}

// commit persists work in one write and reports the messages it added.
func (o *Orchestrator) commit(ctx context.Context, base, work *domain.Checkpoint, res *Result) (*Result, error) {
	if err := o.store.Save(ctx, work); err != nil {
		o.logger.Error("checkpoint commit failed", "session_id", work.SessionID, "error", err)
		return nil, storeError("save checkpoint", err)
	}

	appended := work.Messages[len(base.Messages):]
	res.Appended = appended
	if o.recorder != nil {
		o.recorder.Record(ctx, work.SessionID, work.UserID, appended)
	}
	return res, nil
}

func (o *Orchestrator) load(ctx context.Context, sessionID string) (*domain.Checkpoint, error) {
	cp, err := o.store.Load(ctx, sessionID)
	if err == nil {
		return cp, nil
	}
	if errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	o.logger.Error("checkpoint load failed", "session_id", sessionID, "error", err)
	return nil, storeError("load checkpoint", err)
}

func (o *Orchestrator) transition(sessionID string, from, to Phase) {
	o.logger.Debug("state transition", "session_id", sessionID, "from", from, "to", to)
}

// appendSkipped answers every call after the first in msg.
func appendSkipped(history []domain.Message, msg domain.Message) []domain.Message {
	for _, extra := range msg.ToolCalls[min(1, len(msg.ToolCalls)):] {
		history = append(history, domain.NewToolMessage(extra.ID, SkippedMessage(extra.Name), true))
	}
	return history
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

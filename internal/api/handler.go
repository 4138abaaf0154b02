// Package api provides HTTP handlers for the assistant API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/containerd/errdefs"

	"github.com/ZhengWei0000/Shopping-Assistant/internal/assistant"
	"github.com/ZhengWei0000/Shopping-Assistant/internal/domain"
)

// Engine is the orchestrator surface the transport layer drives.
type Engine interface {
	Advance(ctx context.Context, sessionID, identity, text string) (*assistant.Result, error)
	Resume(ctx context.Context, sessionID string, confirmed bool, explanation string) (*assistant.Result, error)
	Snapshot(ctx context.Context, sessionID string) (*domain.Checkpoint, error)
	Reset(ctx context.Context, sessionID string) error
}

// CartReader returns a user's cart.
type CartReader interface {
	Checkout(ctx context.Context, userID string) (*domain.Cart, error)
}

// Handler provides common handler utilities.
type Handler struct {
	engine  Engine
	cart    CartReader
	limiter *RateLimiter
	sockets *SocketRegistry
	isDev   bool
}

// NewHandler creates a new Handler with common dependencies. A nil limiter
// disables throttling.
func NewHandler(engine Engine, cart CartReader, limiter *RateLimiter, isDev bool) *Handler {
	return &Handler{
		engine:  engine,
		cart:    cart,
		limiter: limiter,
		sockets: NewSocketRegistry(),
		isDev:   isDev,
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// ErrorFrom writes err with the status its error class maps to.
func ErrorFrom(w http.ResponseWriter, err error) {
	status := StatusFromError(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	JSON(w, status, map[string]string{"error": msg, "code": ErrorCode(err)})
}

// StatusFromError maps an error class to an HTTP status.
func StatusFromError(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errdefs.IsInvalidArgument(err):
		return http.StatusBadRequest
	case errdefs.IsNotFound(err):
		return http.StatusNotFound
	case errdefs.IsConflict(err), errdefs.IsFailedPrecondition(err):
		return http.StatusConflict
	case errdefs.IsResourceExhausted(err):
		return http.StatusTooManyRequests
	case errdefs.IsUnavailable(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ErrorCode returns a stable machine-readable code for the known sentinels.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, assistant.ErrConfirmationPending):
		return "confirmation_pending"
	case errors.Is(err, assistant.ErrNoPendingConfirmation):
		return "no_pending_confirmation"
	case errors.Is(err, assistant.ErrSessionBusy):
		return "session_busy"
	case errors.Is(err, assistant.ErrEmptyMessage):
		return "empty_message"
	case errors.Is(err, assistant.ErrInvalidIdentity):
		return "invalid_identity"
	case errors.Is(err, assistant.ErrDecisionUnproductive):
		return "decision_unproductive"
	case errors.Is(err, assistant.ErrTooManyToolRounds):
		return "too_many_tool_rounds"
	case errors.Is(err, assistant.ErrStoreUnavailable):
		return "store_unavailable"
	case errdefs.IsConflict(err):
		return "conflict"
	default:
		return "internal"
	}
}

package assistant

import (
	"errors"
	"fmt"

	"github.com/containerd/errdefs"

	"github.com/ZhengWei0000/Shopping-Assistant/internal/store"
)

var (
	// ErrDecisionUnproductive means the decision step kept returning unusable
	// results until the retry cap was reached.
	ErrDecisionUnproductive = fmt.Errorf("decision step produced no usable response: %w", errdefs.ErrUnavailable)

	// ErrInvalidIdentity means the session id is empty or no user identity
	// could be resolved for the turn.
	ErrInvalidIdentity = fmt.Errorf("invalid session identity: %w", errdefs.ErrInvalidArgument)

	// ErrEmptyMessage means Advance was called without user text.
	ErrEmptyMessage = fmt.Errorf("message must not be empty: %w", errdefs.ErrInvalidArgument)

	// ErrNoPendingConfirmation means Resume was called while nothing awaits approval.
	ErrNoPendingConfirmation = fmt.Errorf("no pending confirmation: %w", errdefs.ErrFailedPrecondition)

	// ErrConfirmationPending means new user text arrived while a tool call
	// still awaits approval.
	ErrConfirmationPending = fmt.Errorf("a tool call is awaiting confirmation: %w", errdefs.ErrFailedPrecondition)

	// ErrSessionBusy means another turn for the same session is in progress.
	ErrSessionBusy = fmt.Errorf("session is busy: %w", errdefs.ErrConflict)

	// ErrStoreUnavailable wraps checkpoint store failures other than
	// not-found and version conflicts.
	ErrStoreUnavailable = fmt.Errorf("checkpoint store unavailable: %w", errdefs.ErrUnavailable)

	// ErrTooManyToolRounds means one turn dispatched more tools than allowed.
	ErrTooManyToolRounds = fmt.Errorf("too many tool rounds in one turn: %w", errdefs.ErrResourceExhausted)
)

func storeError(op string, err error) error {
	if errors.Is(err, store.ErrConflict) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}

package domain

import (
	"time"
)

// SessionState is the persisted resting state of a conversation.
type SessionState string

const (
	// StateIdle means the last turn ended and the session accepts user input.
	StateIdle SessionState = "idle"
	// StateSuspended means a tool invocation is waiting for confirmation.
	StateSuspended SessionState = "suspended"
)

// Checkpoint is the durable snapshot of one session.
type Checkpoint struct {
	SessionID string          `json:"session_id"`
	UserID    string          `json:"user_id"`
	State     SessionState    `json:"state"`
	Messages  []Message       `json:"messages"`
	Pending   *ToolInvocation `json:"pending,omitempty"`
	Version   int64           `json:"version"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// NewCheckpoint returns an idle checkpoint with empty history.
func NewCheckpoint(sessionID, userID string) *Checkpoint {
	now := time.Now().UTC()
	return &Checkpoint{
		SessionID: sessionID,
		UserID:    userID,
		State:     StateIdle,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsSuspended reports whether an invocation is awaiting confirmation.
func (c *Checkpoint) IsSuspended() bool {
	return c.State == StateSuspended && c.Pending != nil
}

// LastAssistant returns the most recent assistant message, if any.
func (c *Checkpoint) LastAssistant() (Message, bool) {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].Role == RoleAssistant {
			return c.Messages[i], true
		}
	}
	return Message{}, false
}

// Clone returns a copy whose message slice and pending marker can be
// modified without affecting c.
func (c *Checkpoint) Clone() *Checkpoint {
	if c == nil {
		return nil
	}
	out := *c
	out.Messages = make([]Message, len(c.Messages))
	copy(out.Messages, c.Messages)
	if c.Pending != nil {
		p := *c.Pending
		out.Pending = &p
	}
	return &out
}

// Suspend records inv as the outstanding invocation.
func (c *Checkpoint) Suspend(inv ToolInvocation) {
	c.State = StateSuspended
	c.Pending = &inv
}

// ClearPending returns the session to idle.
func (c *Checkpoint) ClearPending() {
	c.State = StateIdle
	c.Pending = nil
}

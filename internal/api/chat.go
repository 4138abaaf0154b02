package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ZhengWei0000/Shopping-Assistant/internal/assistant"
	"github.com/ZhengWei0000/Shopping-Assistant/internal/domain"
	"github.com/ZhengWei0000/Shopping-Assistant/internal/identity"
)

const maxChatBody = 64 << 10

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Message string `json:"message"`
}

// ConfirmRequest is the body of POST /api/chat/confirm.
type ConfirmRequest struct {
	Approved    bool   `json:"approved"`
	Explanation string `json:"explanation,omitempty"`
}

// ChatResponse is returned by the chat and confirm endpoints.
type ChatResponse struct {
	SessionID string                 `json:"session_id"`
	State     domain.SessionState    `json:"state"`
	Reply     string                 `json:"reply,omitempty"`
	Pending   *domain.ToolInvocation `json:"pending,omitempty"`
	Prompt    string                 `json:"prompt,omitempty"`
	Messages  []domain.Message       `json:"messages,omitempty"`
}

// SessionResponse is returned by GET /api/session.
type SessionResponse struct {
	SessionID string                 `json:"session_id"`
	State     domain.SessionState    `json:"state"`
	Pending   *domain.ToolInvocation `json:"pending,omitempty"`
	Messages  []domain.Message       `json:"messages"`
	Version   int64                  `json:"version"`
}

// ConfirmationPrompt is shown to the user while a tool call awaits approval.
func ConfirmationPrompt(inv *domain.ToolInvocation) string {
	if inv == nil {
		return ""
	}
	return "Are you sure you want to run " + inv.Name + "? Type 'y' to continue; otherwise, explain your requested changes."
}

// NewChatResponse converts an orchestrator result.
func NewChatResponse(res *assistant.Result) ChatResponse {
	out := ChatResponse{
		SessionID: res.SessionID,
		State:     res.State,
		Pending:   res.Pending,
		Prompt:    ConfirmationPrompt(res.Pending),
		Messages:  res.Appended,
	}
	if res.Reply != nil {
		out.Reply = res.Reply.Text()
	}
	return out
}

// ChatHandler handles conversation endpoints.
type ChatHandler struct {
	*Handler
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(base *Handler) *ChatHandler {
	return &ChatHandler{Handler: base}
}

// RegisterRoutes registers chat routes.
func (h *ChatHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/chat", h.Chat)
		r.Post("/chat/confirm", h.Confirm)
		r.Get("/session", h.GetSession)
		r.Delete("/session", h.DeleteSession)
		r.Get("/cart", h.GetCart)
	})
}

func (h *ChatHandler) keys(r *http.Request) (userID, checkpointKey string) {
	userID = identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	return userID, identity.CheckpointKey(userID, sessionID)
}

func (h *ChatHandler) allow(w http.ResponseWriter, userID string) bool {
	if h.limiter == nil || h.limiter.Allow(userID) {
		return true
	}
	slog.Warn("Rate limit exceeded", "user_id", userID)
	Error(w, http.StatusTooManyRequests, "rate limit exceeded")
	return false
}

// Chat appends the user's message and runs the turn.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	userID, key := h.keys(r)
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if !h.allow(w, userID) {
		return
	}

	var req ChatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChatBody)).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := h.engine.Advance(r.Context(), key, userID, strings.TrimSpace(req.Message))
	if err != nil {
		slog.Warn("Chat turn failed", "session_id", key, "error", err)
		ErrorFrom(w, err)
		return
	}
	JSON(w, http.StatusOK, NewChatResponse(res))
}

// Confirm answers a pending tool confirmation.
func (h *ChatHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	userID, key := h.keys(r)
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if !h.allow(w, userID) {
		return
	}

	var req ConfirmRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChatBody)).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := h.engine.Resume(r.Context(), key, req.Approved, req.Explanation)
	if err != nil {
		slog.Warn("Confirmation failed", "session_id", key, "error", err)
		ErrorFrom(w, err)
		return
	}
	JSON(w, http.StatusOK, NewChatResponse(res))
}

// GetSession returns the session's checkpoint.
func (h *ChatHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	_, key := h.keys(r)
	cp, err := h.engine.Snapshot(r.Context(), key)
	if err != nil {
		ErrorFrom(w, err)
		return
	}
	messages := cp.Messages
	if messages == nil {
		messages = []domain.Message{}
	}
	JSON(w, http.StatusOK, SessionResponse{
		SessionID: cp.SessionID,
		State:     cp.State,
		Pending:   cp.Pending,
		Messages:  messages,
		Version:   cp.Version,
	})
}

// DeleteSession clears the conversation and tells the tab's open socket.
func (h *ChatHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	userID, key := h.keys(r)
	if err := h.engine.Reset(r.Context(), key); err != nil {
		ErrorFrom(w, err)
		return
	}
	h.sockets.Notify(r.Context(), userID, identity.SessionIDFromContext(r.Context()), wsReply{Type: "reset"})
	w.WriteHeader(http.StatusNoContent)
}

// GetCart returns the caller's cart.
func (h *ChatHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	userID, _ := h.keys(r)
	if h.cart == nil {
		Error(w, http.StatusNotImplemented, "cart unavailable")
		return
	}
	cart, err := h.cart.Checkout(r.Context(), userID)
	if err != nil {
		ErrorFrom(w, err)
		return
	}
	JSON(w, http.StatusOK, cart)
}

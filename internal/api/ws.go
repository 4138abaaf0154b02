package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/ZhengWei0000/Shopping-Assistant/internal/identity"
)

// wsMessage is a client frame on /ws/chat.
type wsMessage struct {
	Type        string `json:"type"`
	Content     string `json:"content,omitempty"`
	Approved    bool   `json:"approved,omitempty"`
	Explanation string `json:"explanation,omitempty"`
}

// wsReply is a server frame on /ws/chat.
type wsReply struct {
	Type  string        `json:"type"`
	Chat  *ChatResponse `json:"result,omitempty"`
	Error string        `json:"error,omitempty"`
	Code  string        `json:"code,omitempty"`
}

// WebSocketHandler drives conversation turns over a WebSocket.
type WebSocketHandler struct {
	*Handler
	allowedOrigin string
}

// NewWebSocketHandler creates a new WebSocket chat handler.
func NewWebSocketHandler(base *Handler, allowedOrigin string) *WebSocketHandler {
	return &WebSocketHandler{Handler: base, allowedOrigin: allowedOrigin}
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	key := identity.CheckpointKey(userID, sessionID)
	slog.Info("WebSocket connection request", "user_id", userID, "session_id", sessionID, "ip", identity.IPFromRequest(r))

	if userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "user_id", userID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "user_id", userID)
		}
	}()

	h.sockets.Register(userID, sessionID, ws)
	defer h.sockets.Unregister(userID, sessionID, ws)

	h.loop(r.Context(), ws, userID, key)
	slog.Info("Chat socket ended", "user_id", userID, "session_id", sessionID)
}

func (h *WebSocketHandler) loop(ctx context.Context, ws *websocket.Conn, userID, key string) {
	for {
		var msg wsMessage
		if err := wsjson.Read(ctx, ws, &msg); err != nil {
			if websocket.CloseStatus(err) != -1 || ctx.Err() != nil {
				slog.Debug("WebSocket closed by client", "user_id", userID)
			} else {
				slog.Warn("WebSocket read error", "error", err, "user_id", userID)
			}
			return
		}

		if h.limiter != nil && !h.limiter.Allow(userID) {
			if err := wsjson.Write(ctx, ws, wsReply{Type: "error", Error: "rate limit exceeded", Code: "rate_limited"}); err != nil {
				return
			}
			continue
		}

		reply := h.handle(ctx, msg, userID, key)
		if err := wsjson.Write(ctx, ws, reply); err != nil {
			slog.Debug("WebSocket write error", "error", err, "user_id", userID)
			return
		}
	}
}

func (h *WebSocketHandler) handle(ctx context.Context, msg wsMessage, userID, key string) wsReply {
	switch msg.Type {
	case "message":
		res, err := h.engine.Advance(ctx, key, userID, strings.TrimSpace(msg.Content))
		if err != nil {
			return errorReply(err)
		}
		out := NewChatResponse(res)
		return wsReply{Type: "result", Chat: &out}
	case "confirm":
		res, err := h.engine.Resume(ctx, key, msg.Approved, msg.Explanation)
		if err != nil {
			return errorReply(err)
		}
		out := NewChatResponse(res)
		return wsReply{Type: "result", Chat: &out}
	case "reset":
		if err := h.engine.Reset(ctx, key); err != nil {
			return errorReply(err)
		}
		return wsReply{Type: "reset"}
	default:
		return wsReply{Type: "error", Error: "unknown message type " + msg.Type, Code: "bad_request"}
	}
}

func errorReply(err error) wsReply {
	return wsReply{Type: "error", Error: err.Error(), Code: ErrorCode(err)}
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

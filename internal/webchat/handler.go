package webchat

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/functiomed/voice-agent/internal/conversation"
	"github.com/functiomed/voice-agent/pkg/logging"
	"golang.org/x/net/websocket"
)

// Engine processes conversation turns.
type Engine interface {
	StartSession(ctx context.Context, sessionID string) conversation.Reply
	HandleTurn(ctx context.Context, sessionID, text string) (conversation.Reply, error)
}

// TranscriptStore reads persisted chat history for replay.
type TranscriptStore interface {
	List(ctx context.Context, sessionID string, limit int64) ([]conversation.TranscriptMessage, error)
}

// Handler terminates the widget's data channel: a WebSocket for live chat
// plus plain HTTP endpoints for clients that cannot hold a socket open.
type Handler struct {
	engine     Engine
	transcript TranscriptStore
	logger     *logging.Logger
}

// NewHandler creates a webchat handler.
func NewHandler(engine Engine, transcript TranscriptStore, logger *logging.Logger) *Handler {
	if engine == nil {
		panic("webchat: engine cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{engine: engine, transcript: transcript, logger: logger}
}

func generateSessionID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return uuid.New().String()
	}
	return hex.EncodeToString(b)
}

// HandleWebSocket upgrades to WebSocket and serves the conversation loop.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.Handler(func(conn *websocket.Conn) {
		h.serveWS(conn, r)
	}).ServeHTTP(w, r)
}

func (h *Handler) serveWS(conn *websocket.Conn, r *http.Request) {
	sessionID := r.URL.Query().Get("session")
	resumed := sessionID != ""
	if sessionID == "" {
		sessionID = generateSessionID()
	}

	_ = websocket.JSON.Send(conn, OutboundMessage{Type: TypeSession, SessionID: sessionID})

	// A resumed session gets its recent transcript replayed so the widget
	// can re-render the conversation after a reconnect.
	if resumed && h.transcript != nil {
		if msgs, err := h.transcript.List(r.Context(), sessionID, 50); err == nil && len(msgs) > 0 {
			_ = websocket.JSON.Send(conn, OutboundMessage{Type: TypeHistory, Messages: toHistory(msgs)})
		}
	}

	welcome := h.engine.StartSession(r.Context(), sessionID)
	_ = websocket.JSON.Send(conn, EncodeAgentResponse(welcome))

	h.logger.Info("webchat connection opened", "session_id", sessionID, "resumed", resumed)

	for {
		var raw []byte
		if err := websocket.Message.Receive(conn, &raw); err != nil {
			h.logger.Debug("webchat connection closed", "session_id", sessionID, "error", err)
			return
		}

		msg, err := DecodeUserMessage(raw)
		if err != nil {
			// Pings get a pong; everything else malformed is dropped.
			var in InboundMessage
			if json.Unmarshal(raw, &in) == nil && in.Type == TypePing {
				_ = websocket.JSON.Send(conn, OutboundMessage{Type: TypePong})
			}
			continue
		}

		reply, err := h.engine.HandleTurn(r.Context(), sessionID, msg.Text)
		if err != nil {
			h.logger.Error("webchat turn failed", "error", err, "session_id", sessionID)
			_ = websocket.JSON.Send(conn, OutboundMessage{
				Type: TypeError,
				Text: "Sorry, something went wrong. Please try again.",
			})
			continue
		}
		_ = websocket.JSON.Send(conn, EncodeAgentResponse(reply))
	}
}

// HandleMessage is the HTTP fallback for one-off turns.
func (h *Handler) HandleMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"session_id"`
		Text      string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Text == "" {
		http.Error(w, "text is required", http.StatusBadRequest)
		return
	}
	if req.SessionID == "" {
		req.SessionID = generateSessionID()
	}

	reply, err := h.engine.HandleTurn(r.Context(), req.SessionID, req.Text)
	if err != nil {
		h.logger.Error("webchat turn failed", "error", err, "session_id", req.SessionID)
		http.Error(w, "failed to process message", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(EncodeAgentResponse(reply))
}

// HandleHistory returns persisted chat history for a session.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		http.Error(w, "session parameter required", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if h.transcript == nil {
		_ = json.NewEncoder(w).Encode(map[string]any{"messages": []HistoryMessage{}})
		return
	}

	msgs, err := h.transcript.List(r.Context(), sessionID, 100)
	if err != nil {
		h.logger.Error("webchat history load failed", "error", err, "session_id", sessionID)
		http.Error(w, "failed to load history", http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"messages": toHistory(msgs)})
}

func toHistory(msgs []conversation.TranscriptMessage) []HistoryMessage {
	history := make([]HistoryMessage, 0, len(msgs))
	for _, m := range msgs {
		history = append(history, HistoryMessage{
			Role:      m.Role,
			Text:      m.Text,
			State:     m.State,
			Timestamp: m.Timestamp.Format(time.RFC3339),
		})
	}
	return history
}

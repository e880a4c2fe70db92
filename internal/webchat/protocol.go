package webchat

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/functiomed/voice-agent/internal/conversation"
)

// Message types on the wire.
const (
	TypeUserMessage   = "user_message"
	TypeAgentResponse = "agent_response"
	TypePing          = "ping"
	TypePong          = "pong"
	TypeSession       = "session"
	TypeHistory       = "history"
	TypeError         = "error"
)

var errMalformedMessage = errors.New("webchat: malformed message")

// InboundMessage is what the widget sends.
type InboundMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
	Text      string `json:"text"`
}

// OutboundMessage is what we send to the widget. Step mirrors the booking
// progress so the widget can render a progress bar; -1 means outside the
// flow.
type OutboundMessage struct {
	Type      string           `json:"type"`
	Text      string           `json:"text,omitempty"`
	Role      string           `json:"role,omitempty"`
	State     string           `json:"state,omitempty"`
	Step      *int             `json:"step,omitempty"`
	Language  string           `json:"language,omitempty"`
	SessionID string           `json:"session_id,omitempty"`
	Timestamp string           `json:"timestamp,omitempty"`
	Messages  []HistoryMessage `json:"messages,omitempty"`
}

// HistoryMessage is a simplified entry for history replay.
type HistoryMessage struct {
	Role      string `json:"role"`
	Text      string `json:"text"`
	State     string `json:"state,omitempty"`
	Timestamp string `json:"timestamp"`
}

// DecodeUserMessage parses raw widget input. Anything that is not a
// well-formed user_message with text is an error; callers drop it without
// replying.
func DecodeUserMessage(raw []byte) (InboundMessage, error) {
	var msg InboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return InboundMessage{}, errMalformedMessage
	}
	if msg.Type != TypeUserMessage || strings.TrimSpace(msg.Text) == "" {
		return InboundMessage{}, errMalformedMessage
	}
	return msg, nil
}

// EncodeAgentResponse renders an engine reply as an outbound frame.
func EncodeAgentResponse(reply conversation.Reply) OutboundMessage {
	step := conversation.StepIndex(reply.State)
	return OutboundMessage{
		Type:      TypeAgentResponse,
		Role:      "assistant",
		Text:      reply.Text,
		State:     string(reply.State),
		Step:      &step,
		Language:  reply.Language,
		SessionID: reply.SessionID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

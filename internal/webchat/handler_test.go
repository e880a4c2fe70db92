package webchat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/functiomed/voice-agent/internal/conversation"
	"github.com/functiomed/voice-agent/pkg/logging"
)

// mockEngine echoes turns back.
type mockEngine struct {
	turns []string
}

func (m *mockEngine) StartSession(_ context.Context, sessionID string) conversation.Reply {
	return conversation.Reply{
		SessionID: sessionID,
		Text:      "Welcome!",
		State:     conversation.StateIdle,
		Language:  "en",
	}
}

func (m *mockEngine) HandleTurn(_ context.Context, sessionID, text string) (conversation.Reply, error) {
	m.turns = append(m.turns, text)
	return conversation.Reply{
		SessionID: sessionID,
		Text:      "echo: " + text,
		State:     conversation.StateCollectService,
		Language:  "en",
	}, nil
}

// mockTranscript stores messages in memory.
type mockTranscript struct {
	store map[string][]conversation.TranscriptMessage
}

func (m *mockTranscript) List(_ context.Context, sessionID string, limit int64) ([]conversation.TranscriptMessage, error) {
	msgs := m.store[sessionID]
	if int64(len(msgs)) > limit {
		msgs = msgs[:limit]
	}
	return msgs, nil
}

func TestGenerateSessionID(t *testing.T) {
	s1 := generateSessionID()
	s2 := generateSessionID()
	assert.NotEmpty(t, s1)
	assert.NotEqual(t, s1, s2)
	assert.Len(t, s1, 32) // 16 bytes hex encoded
}

func TestDecodeUserMessage(t *testing.T) {
	msg, err := DecodeUserMessage([]byte(`{"type":"user_message","text":"book a massage"}`))
	require.NoError(t, err)
	assert.Equal(t, "book a massage", msg.Text)

	malformed := [][]byte{
		[]byte(`not json`),
		[]byte(`{}`),
		[]byte(`{"type":"user_message","text":"   "}`),
		[]byte(`{"type":"something_else","text":"hi"}`),
		[]byte(`{"type":"agent_response","text":"hi"}`),
	}
	for _, raw := range malformed {
		_, err := DecodeUserMessage(raw)
		assert.Error(t, err, "raw %s", raw)
	}
}

func TestEncodeAgentResponse(t *testing.T) {
	out := EncodeAgentResponse(conversation.Reply{
		SessionID: "sess1",
		Text:      "Which service?",
		State:     conversation.StateCollectService,
		Language:  "de",
	})
	assert.Equal(t, TypeAgentResponse, out.Type)
	assert.Equal(t, "assistant", out.Role)
	assert.Equal(t, "collect_service", out.State)
	require.NotNil(t, out.Step)
	assert.Equal(t, 0, *out.Step)
	assert.Equal(t, "de", out.Language)
}

func TestHandleMessageHTTP(t *testing.T) {
	eng := &mockEngine{}
	h := NewHandler(eng, nil, logging.New("error"))

	body := `{"session_id":"sess1","text":"Hello"}`
	req := httptest.NewRequest(http.MethodPost, "/webchat/message", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	h.HandleMessage(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var out OutboundMessage
	require.NoError(t, json.NewDecoder(w.Body).Decode(&out))
	assert.Equal(t, TypeAgentResponse, out.Type)
	assert.Equal(t, "echo: Hello", out.Text)
	assert.Equal(t, "sess1", out.SessionID)
	assert.Equal(t, []string{"Hello"}, eng.turns)
}

func TestHandleMessageHTTPGeneratesSessionID(t *testing.T) {
	h := NewHandler(&mockEngine{}, nil, logging.New("error"))

	req := httptest.NewRequest(http.MethodPost, "/webchat/message", strings.NewReader(`{"text":"hi"}`))
	w := httptest.NewRecorder()
	h.HandleMessage(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var out OutboundMessage
	require.NoError(t, json.NewDecoder(w.Body).Decode(&out))
	assert.Len(t, out.SessionID, 32)
}

func TestHandleMessageHTTPRejectsBadInput(t *testing.T) {
	h := NewHandler(&mockEngine{}, nil, logging.New("error"))

	for _, body := range []string{`not json`, `{"session_id":"s1"}`} {
		req := httptest.NewRequest(http.MethodPost, "/webchat/message", strings.NewReader(body))
		w := httptest.NewRecorder()
		h.HandleMessage(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code, "body %s", body)
	}
}

func TestHandleHistory(t *testing.T) {
	ts := &mockTranscript{store: map[string][]conversation.TranscriptMessage{
		"sess1": {
			{Role: "user", Text: "hi", Timestamp: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)},
			{Role: "assistant", Text: "hello", State: "idle", Timestamp: time.Date(2026, 3, 2, 9, 0, 1, 0, time.UTC)},
		},
	}}
	h := NewHandler(&mockEngine{}, ts, logging.New("error"))

	req := httptest.NewRequest(http.MethodGet, "/webchat/history?session=sess1", nil)
	w := httptest.NewRecorder()
	h.HandleHistory(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Messages []HistoryMessage `json:"messages"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	require.Len(t, body.Messages, 2)
	assert.Equal(t, "user", body.Messages[0].Role)
	assert.Equal(t, "idle", body.Messages[1].State)
}

func TestHandleHistoryRequiresSession(t *testing.T) {
	h := NewHandler(&mockEngine{}, nil, logging.New("error"))
	req := httptest.NewRequest(http.MethodGet, "/webchat/history", nil)
	w := httptest.NewRecorder()
	h.HandleHistory(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleHistoryWithoutStore(t *testing.T) {
	h := NewHandler(&mockEngine{}, nil, logging.New("error"))
	req := httptest.NewRequest(http.MethodGet, "/webchat/history?session=sess1", nil)
	w := httptest.NewRecorder()
	h.HandleHistory(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Messages []HistoryMessage `json:"messages"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Empty(t, body.Messages)
}

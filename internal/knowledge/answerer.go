package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/functiomed/voice-agent/pkg/logging"
)

// Chunk is one retrieved knowledge-base passage.
type Chunk struct {
	Text   string  `json:"text"`
	Source string  `json:"source,omitempty"`
	Score  float64 `json:"score,omitempty"`
}

// Retriever fetches passages relevant to a question. A nil retriever is
// valid; the answerer then runs the model without grounding context.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]Chunk, error)
}

// HTTPRetriever calls an external retrieval service over JSON.
type HTTPRetriever struct {
	baseURL string
	client  *http.Client
}

func NewHTTPRetriever(baseURL string) *HTTPRetriever {
	return &HTTPRetriever{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (r *HTTPRetriever) Retrieve(ctx context.Context, query string, topK int) ([]Chunk, error) {
	payload, err := json.Marshal(map[string]any{"query": query, "top_k": topK})
	if err != nil {
		return nil, fmt.Errorf("knowledge: marshal retrieval request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/retrieve", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("knowledge: build retrieval request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("knowledge: retrieval request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("knowledge: retrieval service returned %d", resp.StatusCode)
	}

	var body struct {
		Chunks []Chunk `json:"chunks"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("knowledge: decode retrieval response: %w", err)
	}
	return body.Chunks, nil
}

// Answerer turns clinic questions into short grounded answers. It satisfies
// the conversation engine's knowledge-base contract.
type Answerer struct {
	llm       LLMClient
	retriever Retriever
	logger    *logging.Logger

	modelID    string
	clinicName string
	topK       int
	maxTokens  int32
}

// AnswererConfig wires the answerer's collaborators.
type AnswererConfig struct {
	LLM        LLMClient
	Retriever  Retriever
	Logger     *logging.Logger
	ModelID    string
	ClinicName string
	TopK       int
	MaxTokens  int32
}

func NewAnswerer(cfg AnswererConfig) (*Answerer, error) {
	if cfg.LLM == nil {
		return nil, errors.New("knowledge: llm client is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	topK := cfg.TopK
	if topK <= 0 {
		topK = 4
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 400
	}
	clinicName := cfg.ClinicName
	if clinicName == "" {
		clinicName = "the clinic"
	}
	return &Answerer{
		llm:        cfg.LLM,
		retriever:  cfg.Retriever,
		logger:     logger,
		modelID:    cfg.ModelID,
		clinicName: clinicName,
		topK:       topK,
		maxTokens:  maxTokens,
	}, nil
}

// Answer responds to a clinic question in the requested language. Retrieval
// failures degrade to an ungrounded answer rather than an error; only a
// failed completion is surfaced to the caller.
func (a *Answerer) Answer(ctx context.Context, question, language string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", errors.New("knowledge: empty question")
	}

	var chunks []Chunk
	if a.retriever != nil {
		var err error
		chunks, err = a.retriever.Retrieve(ctx, question, a.topK)
		if err != nil {
			a.logger.Warn("knowledge retrieval failed, answering without context", "error", err)
			chunks = nil
		}
	}

	resp, err := a.llm.Complete(ctx, CompletionRequest{
		Model:       a.modelID,
		System:      []string{a.systemPrompt(language, chunks)},
		Messages:    []ChatMessage{{Role: ChatRoleUser, Content: question}},
		MaxTokens:   a.maxTokens,
		Temperature: 0.3,
	})
	if err != nil {
		return "", fmt.Errorf("knowledge: answer completion: %w", err)
	}
	if strings.TrimSpace(resp.Text) == "" {
		return "", errors.New("knowledge: model returned an empty answer")
	}
	return resp.Text, nil
}

func (a *Answerer) systemPrompt(language string, chunks []Chunk) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are the friendly front-desk assistant of %s, a health clinic.\n", a.clinicName)
	b.WriteString("Answer the patient's question briefly and conversationally, in two or three sentences at most.\n")
	b.WriteString("Never give medical advice or a diagnosis; suggest speaking to a practitioner instead.\n")
	if language == "de" {
		b.WriteString("Answer in German.\n")
	} else {
		b.WriteString("Answer in English.\n")
	}
	if len(chunks) > 0 {
		b.WriteString("\nUse the following clinic information when relevant:\n")
		for _, c := range chunks {
			b.WriteString("- ")
			b.WriteString(strings.TrimSpace(c.Text))
			b.WriteString("\n")
		}
		b.WriteString("If the information does not cover the question, say you are not sure and offer to have the clinic follow up.")
	}
	return b.String()
}

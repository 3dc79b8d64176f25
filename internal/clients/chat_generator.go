package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"

	"github.com/tbourn/go-reply-bot/internal/config"
)

const defaultSystemPrompt = "You are a helpful assistant that writes engaging social media comments."

// defaultPromptTemplate takes the item text via %s.
const defaultPromptTemplate = `Write a friendly, authentic and relevant comment for this post.

Post caption: "%s"

Guidelines:
- Keep it under 200 characters
- Sound natural and human-like
- Be positive and engaging
- Ask a question or add value when possible
- Don't use emojis in every comment
- Vary your responses

Comment:`

// ChatGenerator produces responses through an OpenAI-compatible
// chat-completions endpoint.
type ChatGenerator struct {
	BaseURL        string
	APIKey         string
	Model          string
	SystemPrompt   string
	PromptTemplate string
	MaxTokens      int
	Temperature    float64

	HTTP *http.Client
	Exec failsafe.Executor[*http.Response]
}

// NewChatGenerator wires a ChatGenerator from configuration.
func NewChatGenerator(cfg config.GeneratorConfig, retry config.RetryConfig) *ChatGenerator {
	base := strings.TrimRight(cfg.URL, "/")
	if base == "" {
		base = "https://api.openai.com/v1"
	}
	return &ChatGenerator{
		BaseURL:        base,
		APIKey:         cfg.APIKey,
		Model:          cfg.Model,
		SystemPrompt:   defaultSystemPrompt,
		PromptTemplate: defaultPromptTemplate,
		MaxTokens:      100,
		Temperature:    0.7,
		HTTP:           &http.Client{Timeout: 60 * time.Second},
		Exec:           NewRetryExecutor(retry, RetryTransient),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Generate returns the model's reply for text with surrounding quotes
// removed. An empty reply is an error.
func (g *ChatGenerator) Generate(ctx context.Context, text string) (string, error) {
	if g.Model == "" {
		return "", errors.New("generator: model is required")
	}
	payload, err := json.Marshal(chatRequest{
		Model: g.Model,
		Messages: []chatMessage{
			{Role: "system", Content: g.SystemPrompt},
			{Role: "user", Content: fmt.Sprintf(g.PromptTemplate, text)},
		},
		MaxTokens:   g.MaxTokens,
		Temperature: g.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("generator: marshal request: %w", err)
	}

	resp, err := doJSON(ctx, g.HTTP, g.Exec, RetryTransient, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.BaseURL+"/chat/completions", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		if g.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+g.APIKey)
		}
		return req, nil
	})
	if err != nil {
		return "", fmt.Errorf("generator: %w", err)
	}
	defer resp.Body.Close()

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("generator: decode response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", errors.New("generator: no choices in response")
	}
	reply := cleanReply(out.Choices[0].Message.Content)
	if reply == "" {
		return "", errors.New("generator: empty reply")
	}
	return reply, nil
}

// cleanReply trims whitespace and the quotes models like to wrap replies in.
func cleanReply(s string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(s), `"'`))
}

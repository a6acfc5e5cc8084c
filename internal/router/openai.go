package router

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/sashabaranov/go-openai"

	"github.com/modwatch/modwatch/internal/domain"
)

// OpenAIBackend reviews items through any OpenAI-compatible chat
// completion endpoint. Hosted providers and local gateways both work as
// long as they speak the same API.
type OpenAIBackend struct {
	name   string
	model  string
	client *openai.Client
}

// NewOpenAIBackend builds a backend. The API key is read from keyEnv so
// each backend can carry its own credential; baseURL is optional and
// overrides the provider default.
func NewOpenAIBackend(name, model, baseURL, keyEnv string) (*OpenAIBackend, error) {
	apiKey := os.Getenv(keyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("backend %s: environment variable %s not set", name, keyEnv)
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIBackend{
		name:   name,
		model:  model,
		client: openai.NewClientWithConfig(cfg),
	}, nil
}

func (b *OpenAIBackend) Name() string  { return b.name }
func (b *OpenAIBackend) Model() string { return b.model }

// Review sends the item to the backend and parses the verdict. A 429
// from the provider is surfaced as a RateLimitError so the router can
// put this backend in cooldown instead of retrying it.
func (b *OpenAIBackend) Review(ctx context.Context, item *domain.Item, decision *domain.EscalationDecision) (*domain.Verdict, error) {
	resp, err := b.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       b.model,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: BuildPrompt(item, decision)},
		},
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
			// The library does not expose rate limit reset headers, so
			// the router falls back to its configured default cooldown.
			return nil, &RateLimitError{Backend: b.name}
		}
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("backend %s returned no choices", b.name)
	}

	return ParseVerdict(resp.Choices[0].Message.Content)
}

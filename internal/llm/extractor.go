package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"mail2cal/internal/upstream"
)

const service = "llm"

// Extractor turns a rendered prompt into the model's raw reply.
type Extractor interface {
	Extract(ctx context.Context, prompt string) (string, error)
}

// OpenAIExtractor asks an OpenAI-compatible chat completion endpoint.
type OpenAIExtractor struct {
	client *openai.Client
	model  string
	logger *slog.Logger
}

// NewOpenAIExtractor creates an extractor. baseURL may be empty for the public API.
// A zero timeout disables the limit.
func NewOpenAIExtractor(logger *slog.Logger, apiKey, baseURL, model string, timeout time.Duration) *OpenAIExtractor {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimSuffix(baseURL, "/")
	}
	cfg.HTTPClient = &http.Client{Timeout: timeout}
	if model == "" {
		model = openai.GPT4o
	}
	return &OpenAIExtractor{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		logger: logger,
	}
}

// Extract sends a single-turn completion and returns the first choice, trimmed.
func (e *OpenAIExtractor) Extract(ctx context.Context, prompt string) (string, error) {
	e.logger.Debug("Requesting chat completion.", "model", e.model, "promptBytes", len(prompt))

	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: e.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: SystemMessage},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", upstream.Classify(service, fmt.Errorf("chat completion failed: %w", err))
	}
	if len(resp.Choices) == 0 {
		return "", &upstream.Error{Service: service, Kind: upstream.KindUnknown, Err: errors.New("chat completion returned no choices")}
	}

	reply := strings.TrimSpace(resp.Choices[0].Message.Content)
	e.logger.Info("Received model reply.", "model", resp.Model, "replyBytes", len(reply))
	return reply, nil
}

package providers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const (
	openaiDefaultBase  = "https://api.openai.com/v1"
	openaiDefaultModel = "gpt-4o-mini"

	defaultTimeout = 60 * time.Second

	// maxErrorBody caps how much of a failed response is kept in HTTPError.
	maxErrorBody = 512
)

// ErrEmptyResponse is returned when the endpoint answers without choices.
var ErrEmptyResponse = errors.New("empty response from provider")

// OpenAIProvider calls any OpenAI-compatible /chat/completions endpoint.
type OpenAIProvider struct {
	name         string
	defaultModel string
	httpClient   *http.Client
	client       *openai.Client
}

func NewOpenAIProvider(name, apiKey, apiBase, defaultModel string) *OpenAIProvider {
	if apiBase == "" {
		apiBase = openaiDefaultBase
	}
	if defaultModel == "" {
		defaultModel = openaiDefaultModel
	}
	httpClient := &http.Client{Timeout: defaultTimeout}

	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = strings.TrimRight(apiBase, "/")
	cfg.HTTPClient = httpClient

	return &OpenAIProvider{
		name:         name,
		defaultModel: defaultModel,
		httpClient:   httpClient,
		client:       openai.NewClientWithConfig(cfg),
	}
}

// WithTimeout overrides the HTTP client timeout.
func (p *OpenAIProvider) WithTimeout(d time.Duration) *OpenAIProvider {
	if d > 0 {
		p.httpClient.Timeout = d
	}
	return p
}

func (p *OpenAIProvider) Name() string { return p.name }

func (p *OpenAIProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}
	msgs := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.SystemPrompt})
	}
	for _, m := range req.Messages {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	start := time.Now()
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    msgs,
		Temperature: float32(req.Temperature),
	})
	if err != nil {
		return nil, p.wrapError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%s: %w", p.name, ErrEmptyResponse)
	}

	usage := Usage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}
	slog.Debug("provider: chat done", "provider", p.name, "model", model,
		"tokens", usage.TotalTokens, "duration_ms", time.Since(start).Milliseconds())

	return &ChatResponse{
		Content:      resp.Choices[0].Message.Content,
		FinishReason: string(resp.Choices[0].FinishReason),
		Usage:        usage,
	}, nil
}

// wrapError maps client errors with an HTTP status onto HTTPError so callers
// classify every provider the same way.
func (p *OpenAIProvider) wrapError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return &HTTPError{Provider: p.name, StatusCode: apiErr.HTTPStatusCode, Message: clip(apiErr.Message)}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		msg := string(reqErr.Body)
		if msg == "" && reqErr.Err != nil {
			msg = reqErr.Err.Error()
		}
		return &HTTPError{Provider: p.name, StatusCode: reqErr.HTTPStatusCode, Message: clip(msg)}
	}
	return fmt.Errorf("%s: %w", p.name, err)
}

func clip(s string) string {
	if len(s) > maxErrorBody {
		return s[:maxErrorBody]
	}
	return s
}

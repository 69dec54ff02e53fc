// Package providers talks to LLM chat endpoints that speak the OpenAI
// chat-completions protocol.
package providers

import (
	"context"
	"fmt"
)

// Roles used in Message.Role.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is a provider-neutral chat request. SystemPrompt, when set, is
// sent as the leading system message.
type ChatRequest struct {
	Model        string
	SystemPrompt string
	Messages     []Message
	Temperature  float64
}

// Usage reports token accounting when the endpoint returns it.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatResponse is the assistant's reply.
type ChatResponse struct {
	Content      string
	FinishReason string
	Usage        Usage
}

// Provider is an LLM backend.
type Provider interface {
	Name() string
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// HTTPError is a non-2xx reply from the endpoint.
type HTTPError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s: HTTP %d: %s", e.Provider, e.StatusCode, e.Message)
}

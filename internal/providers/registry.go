package providers

import (
	"fmt"
	"time"
)

// Provider kinds accepted by New.
const (
	KindOpenAI    = "openai"
	KindDashScope = "dashscope"
)

// New builds a provider of the given kind. An empty kind means "openai".
func New(kind, apiKey, apiBase, model string, timeout time.Duration) (Provider, error) {
	switch kind {
	case "", KindOpenAI:
		return NewOpenAIProvider(KindOpenAI, apiKey, apiBase, model).WithTimeout(timeout), nil
	case KindDashScope:
		p := NewDashScopeProvider(apiKey, apiBase, model)
		p.WithTimeout(timeout)
		return p, nil
	default:
		return nil, fmt.Errorf("unknown provider type %q", kind)
	}
}

package providers

const (
	dashscopeDefaultBase  = "https://dashscope.aliyuncs.com/compatible-mode/v1"
	dashscopeDefaultModel = "qwen-plus"
)

// DashScopeProvider is Alibaba DashScope through its OpenAI-compatible mode.
// Only the endpoint and default model differ.
type DashScopeProvider struct {
	*OpenAIProvider
}

func NewDashScopeProvider(apiKey, apiBase, defaultModel string) *DashScopeProvider {
	if apiBase == "" {
		apiBase = dashscopeDefaultBase
	}
	if defaultModel == "" {
		defaultModel = dashscopeDefaultModel
	}
	return &DashScopeProvider{
		OpenAIProvider: NewOpenAIProvider("dashscope", apiKey, apiBase, defaultModel),
	}
}

func (p *DashScopeProvider) Name() string { return "dashscope" }

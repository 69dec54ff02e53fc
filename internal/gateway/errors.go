package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/nextlevelbuilder/aivoice/internal/providers"
)

// formatProviderError turns a chat failure into a message safe to show in
// the group. Raw API payloads are never echoed back.
func formatProviderError(err error) string {
	if errors.Is(err, providers.ErrEmptyResponse) {
		return "⚠️ 模型没有返回内容，请换个说法再试。"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "⚠️ 请求超时，请稍后重试。"
	}

	var he *providers.HTTPError
	if errors.As(err, &he) {
		switch {
		case he.StatusCode == http.StatusTooManyRequests:
			return "⚠️ 模型接口请求过于频繁，请稍后再试。"
		case he.StatusCode == http.StatusPaymentRequired:
			return "⚠️ 模型接口余额不足，请检查服务商账户。"
		case he.StatusCode == http.StatusUnauthorized || he.StatusCode == http.StatusForbidden:
			return "⚠️ 模型接口鉴权失败，请检查 API Key 配置。"
		case he.StatusCode == http.StatusServiceUnavailable || he.StatusCode == 529:
			return "⚠️ AI 服务繁忙，请稍后再试。"
		}
	}

	raw := err.Error()
	lower := strings.ToLower(raw)

	if isContextOverflowError(lower) {
		return "⚠️ 消息过长，超出了模型的上下文限制。"
	}
	if containsAny(lower, "rate limit", "rate_limit", "too many requests", "quota exceeded", "resource_exhausted") {
		return "⚠️ 模型接口请求过于频繁，请稍后再试。"
	}
	if strings.Contains(lower, "overloaded") {
		return "⚠️ AI 服务繁忙，请稍后再试。"
	}
	if containsAny(lower, "billing", "insufficient credits", "insufficient_quota", "credit balance", "arrearage") {
		return "⚠️ 模型接口余额不足，请检查服务商账户。"
	}
	if containsAny(lower, "invalid api key", "invalid_api_key", "unauthorized", "authentication", "access denied") {
		return "⚠️ 模型接口鉴权失败，请检查 API Key 配置。"
	}
	if containsAny(lower, "timeout", "timed out", "deadline exceeded") {
		return "⚠️ 请求超时，请稍后重试。"
	}
	if containsAny(lower, "not a valid model", "model_not_found", "model not found") {
		return "⚠️ 模型配置错误，请检查配置后重启。"
	}

	slog.Warn("unclassified provider error", "error", raw)
	return "⚠️ 处理消息时出错，请稍后重试。"
}

func isContextOverflowError(lower string) bool {
	return containsAny(lower,
		"context_length_exceeded",
		"context length exceeded",
		"maximum context length",
		"prompt is too long",
		"range of input length",
	) || (strings.Contains(lower, "context") &&
		containsAny(lower, "overflow", "too large", "too long", "exceeded"))
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

package commands

import (
	"errors"

	"github.com/nextlevelbuilder/aivoice/internal/platform"
)

// describeError turns a catalog or platform error into a short user-safe
// detail. Raw errors are logged by the caller, never shown.
func describeError(err error) string {
	switch {
	case errors.Is(err, platform.ErrRequestTimeout):
		return "请求超时，请稍后重试"
	case errors.Is(err, platform.ErrInvalidResponseFormat):
		return "无效的API响应格式"
	case errors.Is(err, platform.ErrNoCharacterAvailable):
		return "没有可用的语音模型"
	case errors.Is(err, platform.ErrPlatformSend):
		return "平台请求失败"
	default:
		return "发生未知错误"
	}
}

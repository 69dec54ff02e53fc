package commands

import (
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/nextlevelbuilder/aivoice/internal/characters"
)

const (
	msgGroupOnly      = "⚠️ 该功能仅支持QQ群聊"
	msgNoCharacters   = "⚠️ 当前没有可用的AI人物"
	msgListHeader     = "🎤 当前可用AI语音人物："
	msgSpeechOn       = "✅ 已启用自动语音模式"
	msgSpeechOff      = "⛔ 已关闭自动语音模式"
	msgCoSendOn       = "✅ 已启用文字同发模式"
	msgCoSendOff      = "⛔ 已关闭文字同发模式"
	msgNotSet         = "未设置"
	msgUnknownType    = "未分类"
	msgUnknownName    = "未知人物"
	msgUnknownID      = "N/A"
	msgListFailed     = "❌ 获取失败："
	msgSetFailed      = "❌ 设置失败："
	msgNotFound       = "❌ 未找到匹配人物："
	msgSetDefaultDone = "✅ 已设置默认模型：\n名称：%s\nID：%s"
)

// renderCatalog lists every category that has characters, each with its
// count and an enumerated name/id list.
func renderCatalog(cat characters.Catalog) string {
	lines := []string{msgListHeader}
	for _, c := range lo.Filter(cat, func(c characters.Category, _ int) bool { return len(c.Characters) > 0 }) {
		lines = append(lines,
			"\n▍"+orDefault(c.Type, msgUnknownType)+"：",
			fmt.Sprintf("共 %d 个人物", len(c.Characters)),
		)
		lines = append(lines, lo.Map(c.Characters, func(ch characters.Character, i int) string {
			return fmt.Sprintf("%d. %s\n   ID: %s", i+1, orDefault(ch.Name, msgUnknownName), orDefault(ch.ID, msgUnknownID))
		})...)
	}
	return strings.Join(lines, "\n")
}

func renderSpeechToggle(enabled bool, defaultName string) string {
	status := lo.Ternary(enabled, msgSpeechOn, msgSpeechOff)
	return fmt.Sprintf("%s\n当前设置：\n- 默认模型：%s", status, orDefault(defaultName, msgNotSet))
}

func renderCoSendToggle(enabled bool) string {
	return lo.Ternary(enabled, msgCoSendOn, msgCoSendOff)
}

type helpEntry struct {
	trigger, args, usage string
}

func renderHelp(t Triggers) string {
	entries := []helpEntry{
		{t.ListCharacters, "", "查看可用AI语音人物"},
		{t.ToggleSpeech, "", "开启/关闭自动语音"},
		{t.SetDefault, " <名称或ID>", "设置默认语音人物"},
		{t.ToggleCoSend, "", "开启/关闭文字同发"},
	}
	lines := lo.FilterMap(entries, func(e helpEntry, _ int) (string, bool) {
		if e.trigger == "" {
			return "", false
		}
		return fmt.Sprintf("%s%s%s：%s", t.Prefix, e.trigger, e.args, e.usage), true
	})
	return "🎤 AI语音指令：\n" + strings.Join(lines, "\n")
}

func orDefault(s, def string) string {
	return lo.Ternary(s == "", def, s)
}

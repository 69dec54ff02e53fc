package commands

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/nextlevelbuilder/aivoice/internal/characters"
	"github.com/nextlevelbuilder/aivoice/internal/groups"
	"github.com/nextlevelbuilder/aivoice/internal/platform"
)

const sampleCatalog = `{"status":"ok","data":[
	{"type":"温柔","characters":[
		{"character_id":"lucy-voice-laozi","character_name":"老子"},
		{"character_id":1002,"character_name":"小新"}
	]},
	{"type":"空分类","characters":[]},
	"not an object",
	{"characters":[{"character_name":"无ID"},{"character_id":"x9"}]}
]}`

type fakeLister struct {
	resp  string
	err   error
	calls int
}

func (f *fakeLister) ListCharacters(context.Context, string) (json.RawMessage, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return json.RawMessage(f.resp), nil
}

type recordingReplier struct {
	replies []string
	err     error
}

func (r *recordingReplier) Reply(_ context.Context, _ platform.Event, text string) error {
	r.replies = append(r.replies, text)
	return r.err
}

type harness struct {
	surface  *Surface
	settings *groups.Store
	lister   *fakeLister
	replier  *recordingReplier
}

func newHarness(t *testing.T, resp string) *harness {
	t.Helper()
	h := &harness{
		settings: groups.NewStore(nil),
		lister:   &fakeLister{resp: resp},
		replier:  &recordingReplier{},
	}
	cache, err := characters.New(h.lister, h.settings, characters.Config{})
	if err != nil {
		t.Fatalf("characters.New: %v", err)
	}
	h.surface = NewSurface(h.settings, cache, h.replier, NewRouter(DefaultTriggers()))
	return h
}

func (h *harness) run(t *testing.T, ev platform.Event, text string) string {
	t.Helper()
	cmd, ok := h.surface.Router().Parse(text)
	if !ok {
		t.Fatalf("Parse(%q) failed", text)
	}
	before := len(h.replier.replies)
	h.surface.Handle(context.Background(), ev, cmd)
	if got := len(h.replier.replies) - before; got != 1 {
		t.Fatalf("%q produced %d replies, want exactly 1", text, got)
	}
	return h.replier.replies[len(h.replier.replies)-1]
}

func groupEvent(gid string) platform.Event {
	return platform.Event{Platform: platform.OneBot, MessageType: platform.MessageGroup, GroupID: gid, UserID: "42"}
}

func TestGroupOnly(t *testing.T) {
	private := platform.Event{Platform: platform.OneBot, MessageType: platform.MessagePrivate, UserID: "42"}
	for _, text := range []string{"/ai人物列表", "/切换语音模式", "/设置默认模型 老子", "/切换文字同发"} {
		h := newHarness(t, sampleCatalog)
		if got := h.run(t, private, text); got != msgGroupOnly {
			t.Errorf("%s: reply = %q", text, got)
		}
		if h.lister.calls != 0 {
			t.Errorf("%s: platform called outside a group", text)
		}
		if len(h.settings.Groups()) != 0 {
			t.Errorf("%s: settings mutated outside a group", text)
		}
	}
}

func TestListCharacters(t *testing.T) {
	h := newHarness(t, sampleCatalog)
	got := h.run(t, groupEvent("1"), "/ai人物列表")

	want := strings.Join([]string{
		"🎤 当前可用AI语音人物：",
		"\n▍温柔：",
		"共 2 个人物",
		"1. 老子\n   ID: lucy-voice-laozi",
		"2. 小新\n   ID: 1002",
		"\n▍未分类：",
		"共 2 个人物",
		"1. 无ID\n   ID: N/A",
		"2. 未知人物\n   ID: x9",
	}, "\n")
	if got != want {
		t.Errorf("listing =\n%s\nwant\n%s", got, want)
	}

	// Cached after the first listing.
	h.run(t, groupEvent("1"), "/ai人物列表")
	if h.lister.calls != 1 {
		t.Errorf("lister calls = %d, want 1", h.lister.calls)
	}
}

func TestListCharacters_EmptyAndFailures(t *testing.T) {
	tests := []struct {
		name string
		resp string
		err  error
		want string
	}{
		{"empty", `[]`, nil, msgNoCharacters},
		{"timeout", "", platform.ErrRequestTimeout, "❌ 获取失败：请求超时，请稍后重试"},
		{"bad_format", `{"status":"failed"}`, nil, "❌ 获取失败：无效的API响应格式"},
		{"unknown", "", errors.New("boom"), "❌ 获取失败：发生未知错误"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.resp)
			h.lister.err = tt.err
			if got := h.run(t, groupEvent("1"), "/ai人物列表"); got != tt.want {
				t.Errorf("reply = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSetDefault(t *testing.T) {
	h := newHarness(t, sampleCatalog)

	got := h.run(t, groupEvent("1"), "/设置默认模型 小新")
	if got != "✅ 已设置默认模型：\n名称：小新\nID：1002" {
		t.Errorf("reply = %q", got)
	}
	if h.settings.DefaultCharacter("1") != "1002" {
		t.Errorf("stored default = %q", h.settings.DefaultCharacter("1"))
	}

	// By id; always refreshes first.
	h.run(t, groupEvent("1"), "/设置默认模型 lucy-voice-laozi")
	if h.settings.DefaultCharacter("1") != "lucy-voice-laozi" {
		t.Errorf("stored default = %q", h.settings.DefaultCharacter("1"))
	}
	if h.lister.calls != 2 {
		t.Errorf("lister calls = %d, want 2", h.lister.calls)
	}
}

func TestSetDefault_Failures(t *testing.T) {
	h := newHarness(t, sampleCatalog)
	if got := h.run(t, groupEvent("1"), "/设置默认模型 不存在"); got != "❌ 未找到匹配人物：不存在" {
		t.Errorf("reply = %q", got)
	}
	if got := h.run(t, groupEvent("1"), "/设置默认模型"); !strings.HasPrefix(got, msgSetFailed) {
		t.Errorf("missing identifier reply = %q", got)
	}

	h.lister.err = platform.ErrRequestTimeout
	if got := h.run(t, groupEvent("1"), "/设置默认模型 小新"); got != "❌ 设置失败：请求超时，请稍后重试" {
		t.Errorf("reply = %q", got)
	}
	if h.settings.DefaultCharacter("1") != "" {
		t.Error("default stored despite failure")
	}
}

func TestToggleSpeech(t *testing.T) {
	h := newHarness(t, sampleCatalog)

	if got := h.run(t, groupEvent("1"), "/切换语音模式"); got != "✅ 已启用自动语音模式\n当前设置：\n- 默认模型：未设置" {
		t.Errorf("first toggle = %q", got)
	}

	h.run(t, groupEvent("1"), "/设置默认模型 老子")
	if got := h.run(t, groupEvent("1"), "/切换语音模式"); got != "⛔ 已关闭自动语音模式\n当前设置：\n- 默认模型：老子" {
		t.Errorf("second toggle = %q", got)
	}
	if h.settings.Get("1").AutoSpeech {
		t.Error("auto speech should be off after two toggles")
	}
}

func TestToggleCoSend(t *testing.T) {
	h := newHarness(t, sampleCatalog)
	if got := h.run(t, groupEvent("1"), "/切换文字同发"); got != msgCoSendOn {
		t.Errorf("first = %q", got)
	}
	if got := h.run(t, groupEvent("1"), "/切换文字同发"); got != msgCoSendOff {
		t.Errorf("second = %q", got)
	}
}

func TestReplyFailureIsContained(t *testing.T) {
	h := newHarness(t, sampleCatalog)
	h.replier.err = errors.New("ws closed")

	h.run(t, groupEvent("1"), "/切换文字同发")
	if !h.settings.Get("1").TextCoSend {
		t.Error("state change lost when the reply failed")
	}
}

func TestHelp_WorksEverywhere(t *testing.T) {
	h := newHarness(t, sampleCatalog)
	private := platform.Event{Platform: platform.OneBot, MessageType: platform.MessagePrivate}
	got := h.run(t, private, "/语音帮助")
	for _, want := range []string{"/ai人物列表", "/设置默认模型 <名称或ID>", "/切换文字同发"} {
		if !strings.Contains(got, want) {
			t.Errorf("help missing %q:\n%s", want, got)
		}
	}
}

func TestRouter_Parse(t *testing.T) {
	r := NewRouter(DefaultTriggers())
	tests := []struct {
		text     string
		wantOK   bool
		wantName string
		wantArgs []string
	}{
		{"/ai人物列表", true, ListCharacters, nil},
		{"  /切换语音模式  ", true, ToggleSpeech, nil},
		{`/设置默认模型 "Lucy Voice"`, true, SetDefault, []string{"Lucy Voice"}},
		{`/设置默认模型 "unbalanced`, true, SetDefault, []string{`"unbalanced`}},
		{"ai人物列表", false, "", nil},
		{"/unknown", false, "", nil},
		{"/", false, "", nil},
		{"hello", false, "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			cmd, ok := r.Parse(tt.text)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if cmd.Name != tt.wantName || strings.Join(cmd.Args, "|") != strings.Join(tt.wantArgs, "|") {
				t.Errorf("cmd = %+v", cmd)
			}
		})
	}
}

func TestRouter_SetTriggers(t *testing.T) {
	r := NewRouter(DefaultTriggers())
	r.SetTriggers(Triggers{Prefix: "#", ToggleSpeech: "voice"})

	if _, ok := r.Parse("/切换语音模式"); ok {
		t.Error("old trigger still active")
	}
	cmd, ok := r.Parse("#voice")
	if !ok || cmd.Name != ToggleSpeech {
		t.Errorf("new trigger: %+v %v", cmd, ok)
	}
	if _, ok := r.Parse("#"); ok {
		t.Error("disabled trigger matched")
	}
}

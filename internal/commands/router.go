// Package commands implements the user-facing voice commands: listing
// characters, choosing the default one and toggling the voice modes.
package commands

import (
	"strings"
	"sync/atomic"

	"github.com/mattn/go-shellwords"
)

// Command names.
const (
	ListCharacters = "list_characters"
	ToggleSpeech   = "toggle_speech"
	SetDefault     = "set_default"
	ToggleCoSend   = "toggle_cosend"
	Help           = "help"
)

// Triggers maps message text to commands. An empty trigger disables that
// command.
type Triggers struct {
	Prefix         string
	ListCharacters string
	ToggleSpeech   string
	SetDefault     string
	ToggleCoSend   string
	Help           string
}

// DefaultTriggers returns the stock trigger words.
func DefaultTriggers() Triggers {
	return Triggers{
		Prefix:         "/",
		ListCharacters: "ai人物列表",
		ToggleSpeech:   "切换语音模式",
		SetDefault:     "设置默认模型",
		ToggleCoSend:   "切换文字同发",
		Help:           "语音帮助",
	}
}

func (t Triggers) byWord() map[string]string {
	m := make(map[string]string, 5)
	for name, word := range map[string]string{
		ListCharacters: t.ListCharacters,
		ToggleSpeech:   t.ToggleSpeech,
		SetDefault:     t.SetDefault,
		ToggleCoSend:   t.ToggleCoSend,
		Help:           t.Help,
	} {
		if word != "" {
			m[word] = name
		}
	}
	return m
}

// Command is a parsed command invocation.
type Command struct {
	Name string
	Args []string
}

// Arg returns the i-th argument or "".
func (c Command) Arg(i int) string {
	if i < 0 || i >= len(c.Args) {
		return ""
	}
	return c.Args[i]
}

type routes struct {
	triggers Triggers
	words    map[string]string
}

// Router parses raw message text into commands. Triggers can be swapped at
// runtime.
type Router struct {
	r atomic.Pointer[routes]
}

func NewRouter(t Triggers) *Router {
	rt := &Router{}
	rt.SetTriggers(t)
	return rt
}

func (rt *Router) SetTriggers(t Triggers) {
	rt.r.Store(&routes{triggers: t, words: t.byWord()})
}

func (rt *Router) Triggers() Triggers { return rt.r.Load().triggers }

// Parse recognises "<prefix><trigger> [args...]". Arguments are split the
// way a shell would, so quoted identifiers may contain spaces.
func (rt *Router) Parse(text string) (Command, bool) {
	r := rt.r.Load()
	text = strings.TrimSpace(text)
	if r.triggers.Prefix != "" {
		if !strings.HasPrefix(text, r.triggers.Prefix) {
			return Command{}, false
		}
		text = strings.TrimPrefix(text, r.triggers.Prefix)
	}

	words, err := shellwords.Parse(text)
	if err != nil {
		// Unbalanced quotes: fall back to plain whitespace splitting.
		words = strings.Fields(text)
	}
	if len(words) == 0 {
		return Command{}, false
	}
	name, ok := r.words[words[0]]
	if !ok {
		return Command{}, false
	}
	return Command{Name: name, Args: words[1:]}, true
}

// Package pipeline turns assistant replies into AI voice messages for groups
// that have auto-speech enabled.
package pipeline

import (
	"context"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/nextlevelbuilder/aivoice/internal/characters"
	"github.com/nextlevelbuilder/aivoice/internal/groups"
	"github.com/nextlevelbuilder/aivoice/internal/message"
	"github.com/nextlevelbuilder/aivoice/internal/platform"
	"github.com/nextlevelbuilder/aivoice/internal/providers"
	"github.com/nextlevelbuilder/aivoice/internal/voice"
)

// Empty-after-cleaning policies.
const (
	EmptyPassthrough = "passthrough" // leave the chain untouched
	EmptyPlaceholder = "placeholder" // replace the chain with Options.Placeholder
)

// Chain policies when text co-send is on.
const (
	CoSendClear = "clear" // the direct text send is the only text output
	CoSendKeep  = "keep"  // the host also renders the original chain
)

// DefaultPlaceholder replaces a reply that cleaned to nothing under EmptyPlaceholder.
const DefaultPlaceholder = "[内容已过滤]"

// coSendTimeout bounds the direct text send.
const coSendTimeout = 10 * time.Second

var tracer = otel.Tracer("github.com/nextlevelbuilder/aivoice/internal/pipeline")

// Result is an outgoing reply on its way to the platform. LLM marks replies
// generated by the assistant; only those are eligible for voice.
type Result struct {
	Chain message.Chain
	LLM   bool
}

// Options are the hot-reloadable pipeline policies.
type Options struct {
	EmptyPolicy  string
	Placeholder  string
	CoSendChain  string
	SpeechPrompt string // appended to the system prompt while auto-speech is on
}

func (o Options) withDefaults() Options {
	if o.EmptyPolicy == "" {
		o.EmptyPolicy = EmptyPassthrough
	}
	if o.Placeholder == "" {
		o.Placeholder = DefaultPlaceholder
	}
	if o.CoSendChain == "" {
		o.CoSendChain = CoSendClear
	}
	return o
}

// Settings reads per-group configuration.
type Settings interface {
	Get(groupID string) groups.Config
}

// CharacterSource resolves the character to speak with.
type CharacterSource interface {
	EnsureLoaded(ctx context.Context, groupID string) error
	Resolve(groupID string) (characters.Character, error)
}

// Speaker voices text. voice.Dispatcher is the production implementation.
type Speaker interface {
	Send(ctx context.Context, groupID string, ch characters.Character, text string)
}

// Pipeline is invoked on every outgoing reply.
type Pipeline struct {
	settings Settings
	chars    CharacterSource
	speaker  Speaker
	text     platform.TextSender
	opts     atomic.Pointer[Options]
}

// New wires a pipeline.
func New(settings Settings, chars CharacterSource, speaker Speaker, text platform.TextSender, opts Options) *Pipeline {
	p := &Pipeline{settings: settings, chars: chars, speaker: speaker, text: text}
	p.SetOptions(opts)
	return p
}

// SetOptions swaps the policies; safe to call while replies are in flight.
func (p *Pipeline) SetOptions(opts Options) {
	o := opts.withDefaults()
	p.opts.Store(&o)
}

// Options returns the active policies.
func (p *Pipeline) Options() Options { return *p.opts.Load() }

// DecorateRequest appends the speech prompt to the system prompt when the
// group has auto-speech on, so the model writes text that reads well aloud.
func (p *Pipeline) DecorateRequest(ev platform.Event, req *providers.ChatRequest) {
	gid, ok := platform.GroupContext(ev)
	if !ok || req == nil {
		return
	}
	prompt := p.Options().SpeechPrompt
	if prompt == "" || !p.settings.Get(gid).AutoSpeech {
		return
	}
	if req.SystemPrompt == "" {
		req.SystemPrompt = prompt
		return
	}
	req.SystemPrompt = strings.TrimRight(req.SystemPrompt, "\n") + "\n\n" + prompt
}

// Decorate voices an assistant reply and rewrites its chain. It never fails:
// every platform error is logged and contained.
func (p *Pipeline) Decorate(ctx context.Context, ev platform.Event, res *Result) {
	if res == nil || !res.LLM {
		return
	}
	gid, ok := platform.GroupContext(ev)
	if !ok {
		return
	}
	cfg := p.settings.Get(gid)
	if !cfg.AutoSpeech {
		return
	}
	opts := p.Options()

	ctx, span := tracer.Start(ctx, "pipeline.decorate", trace.WithAttributes(
		attribute.String("group.id", gid),
		attribute.Bool("text_co_send", cfg.TextCoSend),
	))
	defer span.End()

	cleaned := voice.Clean(res.Chain)
	if cleaned == "" {
		span.SetAttributes(attribute.Bool("empty", true))
		if opts.EmptyPolicy == EmptyPlaceholder {
			res.Chain = message.Text(opts.Placeholder)
		}
		slog.Debug("pipeline: reply empty after cleaning", "group", gid, "policy", opts.EmptyPolicy)
		return
	}

	if ch, ok := p.character(ctx, gid); ok {
		p.speaker.Send(ctx, gid, ch, cleaned)
	}

	if cfg.TextCoSend {
		p.coSend(ctx, gid, res.Chain.RawText())
		if opts.CoSendChain == CoSendKeep {
			return
		}
	}
	res.Chain = nil
}

// AfterSent runs once the final chain has been handed to the platform.
// Nothing needs to happen there yet.
func (p *Pipeline) AfterSent(ctx context.Context, ev platform.Event) {}

func (p *Pipeline) character(ctx context.Context, gid string) (characters.Character, bool) {
	if err := p.chars.EnsureLoaded(ctx, gid); err != nil {
		slog.Warn("pipeline: character catalog unavailable, skipping voice", "group", gid, "error", err)
		return characters.Character{}, false
	}
	ch, err := p.chars.Resolve(gid)
	if err != nil {
		slog.Warn("pipeline: no character to speak with, skipping voice", "group", gid, "error", err)
		return characters.Character{}, false
	}
	return ch, true
}

func (p *Pipeline) coSend(ctx context.Context, gid, text string) {
	if text == "" || p.text == nil {
		return
	}
	sctx, cancel := context.WithTimeout(ctx, coSendTimeout)
	defer cancel()
	if err := p.text.SendGroupText(sctx, gid, text); err != nil {
		slog.Warn("pipeline: co-send text failed", "group", gid, "error", err)
	}
}

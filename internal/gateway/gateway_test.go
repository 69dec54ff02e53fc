package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nextlevelbuilder/aivoice/internal/bus"
	"github.com/nextlevelbuilder/aivoice/internal/commands"
	"github.com/nextlevelbuilder/aivoice/internal/message"
	"github.com/nextlevelbuilder/aivoice/internal/pipeline"
	"github.com/nextlevelbuilder/aivoice/internal/platform"
	"github.com/nextlevelbuilder/aivoice/internal/providers"
)

type fakeProvider struct {
	mu    sync.Mutex
	reqs  []providers.ChatRequest
	reply string
	err   error
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Chat(_ context.Context, req providers.ChatRequest) (*providers.ChatResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reqs = append(p.reqs, req)
	if p.err != nil {
		return nil, p.err
	}
	return &providers.ChatResponse{Content: p.reply}, nil
}

func (p *fakeProvider) requests() []providers.ChatRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]providers.ChatRequest(nil), p.reqs...)
}

type fakeCommands struct {
	mu   sync.Mutex
	cmds []commands.Command
}

func (f *fakeCommands) Handle(_ context.Context, _ platform.Event, cmd commands.Command) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cmds = append(f.cmds, cmd)
}

// fakePipeline drops the chain of LLM replies when voice is on, like the
// real pipeline does with auto-speech enabled.
type fakePipeline struct {
	voice     bool
	decorated []pipeline.Result
	afterSent int
}

func (f *fakePipeline) DecorateRequest(_ platform.Event, req *providers.ChatRequest) {
	req.SystemPrompt += "|speech"
}

func (f *fakePipeline) Decorate(_ context.Context, _ platform.Event, res *pipeline.Result) {
	f.decorated = append(f.decorated, *res)
	if f.voice && res.LLM {
		res.Chain = nil
	}
}

func (f *fakePipeline) AfterSent(context.Context, platform.Event) { f.afterSent++ }

type harness struct {
	bus      *bus.MessageBus
	provider *fakeProvider
	commands *fakeCommands
	pipeline *fakePipeline
	consumer *Consumer
}

func newHarness(opts Options) *harness {
	h := &harness{
		bus:      bus.New(),
		provider: &fakeProvider{reply: "你好呀"},
		commands: &fakeCommands{},
		pipeline: &fakePipeline{},
	}
	h.consumer = NewConsumer(ConsumerDeps{
		Bus:      h.bus,
		Router:   commands.NewRouter(commands.DefaultTriggers()),
		Commands: h.commands,
		Pipeline: h.pipeline,
		Provider: h.provider,
	}, opts)
	return h
}

func (h *harness) outbound(t *testing.T) (bus.OutboundMessage, bool) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	return h.bus.SubscribeOutbound(ctx)
}

func groupMsg(content string, mentioned bool) bus.InboundMessage {
	return bus.InboundMessage{
		Event: platform.Event{
			ID: "ev", Platform: platform.OneBot, MessageType: platform.MessageGroup,
			GroupID: "100", UserID: "7", SenderName: "阿明",
		},
		MessageID:  fmt.Sprintf("m-%s", content),
		Content:    content,
		Mentioned:  mentioned,
		ReceivedAt: time.Date(2026, 1, 2, 15, 4, 0, 0, time.UTC),
	}
}

func TestConsumer_CommandGoesToSurface(t *testing.T) {
	h := newHarness(Options{RequireMention: true})
	h.consumer.Handle(context.Background(), groupMsg("/ai人物列表", false))

	if len(h.commands.cmds) != 1 || h.commands.cmds[0].Name != commands.ListCharacters {
		t.Errorf("commands = %+v", h.commands.cmds)
	}
	if len(h.provider.requests()) != 0 {
		t.Error("command reached the provider")
	}
}

func TestConsumer_MentionedReply(t *testing.T) {
	h := newHarness(Options{RequireMention: true, SystemPrompt: "你是助手", Model: "m1"})
	h.consumer.Handle(context.Background(), groupMsg("讲个笑话", true))

	reqs := h.provider.requests()
	if len(reqs) != 1 {
		t.Fatalf("provider calls = %d", len(reqs))
	}
	if reqs[0].SystemPrompt != "你是助手|speech" || reqs[0].Model != "m1" {
		t.Errorf("request = %+v", reqs[0])
	}
	if reqs[0].Messages[0].Content != "讲个笑话" {
		t.Errorf("user content = %q", reqs[0].Messages[0].Content)
	}

	if len(h.pipeline.decorated) != 1 || !h.pipeline.decorated[0].LLM {
		t.Errorf("decorated = %+v", h.pipeline.decorated)
	}
	out, ok := h.outbound(t)
	if !ok || out.Chain.RawText() != "你好呀" || out.Event.GroupID != "100" {
		t.Errorf("outbound = %+v, %v", out, ok)
	}
	if h.pipeline.afterSent != 1 {
		t.Errorf("afterSent = %d", h.pipeline.afterSent)
	}
}

func TestConsumer_VoicedReplyPublishesNothing(t *testing.T) {
	h := newHarness(Options{})
	h.pipeline.voice = true
	h.consumer.Handle(context.Background(), groupMsg("hi", true))

	if out, ok := h.outbound(t); ok {
		t.Errorf("unexpected outbound %+v", out)
	}
	if h.pipeline.afterSent != 1 {
		t.Errorf("afterSent = %d", h.pipeline.afterSent)
	}
}

func TestConsumer_UnmentionedIsRecordedAsHistory(t *testing.T) {
	h := newHarness(Options{RequireMention: true, HistoryLimit: 5})
	ctx := context.Background()

	h.consumer.Handle(ctx, groupMsg("今天天气不错", false))
	if len(h.provider.requests()) != 0 {
		t.Fatal("unmentioned message reached the provider")
	}

	h.consumer.Handle(ctx, groupMsg("你怎么看", true))
	reqs := h.provider.requests()
	if len(reqs) != 1 {
		t.Fatalf("provider calls = %d", len(reqs))
	}
	content := reqs[0].Messages[0].Content
	if !strings.Contains(content, "阿明 [15:04]: 今天天气不错") || !strings.HasSuffix(content, "你怎么看") {
		t.Errorf("content = %q", content)
	}
	if h.consumer.deps.History.Len() != 0 {
		t.Error("history not cleared after reply")
	}
}

func TestConsumer_RequireMentionOff(t *testing.T) {
	h := newHarness(Options{RequireMention: false})
	h.consumer.Handle(context.Background(), groupMsg("随便说说", false))
	if len(h.provider.requests()) != 1 {
		t.Error("message not answered with requireMention off")
	}
}

func TestConsumer_ProviderErrorIsNotLLM(t *testing.T) {
	h := newHarness(Options{})
	h.provider.err = &providers.HTTPError{Provider: "fake", StatusCode: 429, Message: "slow down"}
	h.consumer.Handle(context.Background(), groupMsg("hi", true))

	if len(h.pipeline.decorated) != 1 || h.pipeline.decorated[0].LLM {
		t.Fatalf("decorated = %+v", h.pipeline.decorated)
	}
	out, ok := h.outbound(t)
	if !ok || !strings.Contains(out.Chain.RawText(), "频繁") {
		t.Errorf("outbound = %+v, %v", out, ok)
	}
}

func TestConsumer_RateLimited(t *testing.T) {
	h := newHarness(Options{})
	h.consumer.deps.Limiter = NewRateLimiter(1, 1)
	defer h.consumer.deps.Limiter.Stop()
	ctx := context.Background()

	h.consumer.Handle(ctx, groupMsg("one", true))
	h.consumer.Handle(ctx, groupMsg("two", true))
	if got := len(h.provider.requests()); got != 1 {
		t.Errorf("provider calls = %d, want 1", got)
	}
}

func TestConsumer_Run(t *testing.T) {
	h := newHarness(Options{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.consumer.Run(ctx)
		close(done)
	}()

	if err := h.bus.PublishInbound(ctx, groupMsg("hi", true)); err != nil {
		t.Fatalf("PublishInbound: %v", err)
	}
	octx, ocancel := context.WithTimeout(ctx, 2*time.Second)
	defer ocancel()
	if out, ok := h.bus.SubscribeOutbound(octx); !ok || out.Chain.RawText() != "你好呀" {
		t.Errorf("outbound = %+v, %v", out, ok)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestBusReplier(t *testing.T) {
	mb := bus.New()
	ev := platform.Event{MessageType: platform.MessagePrivate, UserID: "9"}
	if err := (BusReplier{Bus: mb}).Reply(context.Background(), ev, "ok"); err != nil {
		t.Fatalf("Reply: %v", err)
	}
	out, ok := mb.SubscribeOutbound(context.Background())
	if !ok || out.Event.UserID != "9" || out.Chain.RawText() != "ok" {
		t.Errorf("outbound = %+v", out)
	}
	if _, isPlain := out.Chain[0].(message.Plain); !isPlain {
		t.Error("reply is not a plain segment")
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(60, 2)
	defer rl.Stop()

	if !rl.Allow("group:1") || !rl.Allow("group:1") {
		t.Fatal("burst not honoured")
	}
	if rl.Allow("group:1") {
		t.Error("third request within a second allowed")
	}
	if !rl.Allow("group:2") {
		t.Error("keys are not independent")
	}

	rl.SetLimits(0, 0)
	if rl.Enabled() || !rl.Allow("group:1") {
		t.Error("disabled limiter still limits")
	}

	rl.SetLimits(60, 2)
	rl.cleanup(time.Now().Add(time.Minute))
	if !rl.Allow("group:1") {
		t.Error("stale entry survived cleanup")
	}
}

func TestRateLimiter_CleanupStartsWithFirstKey(t *testing.T) {
	rl := NewRateLimiter(0, 0)
	if !rl.Allow("group:1") {
		t.Fatal("disabled limiter rejected a request")
	}
	if rl.cleaning.Load() {
		t.Fatal("disabled limiter started its cleanup goroutine")
	}

	c := NewConsumer(ConsumerDeps{Bus: bus.New()}, Options{})
	if c.deps.Limiter.cleaning.Load() {
		t.Error("consumer default limiter started its cleanup goroutine")
	}

	rl.SetLimits(60, 1)
	rl.Allow("group:1")
	if !rl.cleaning.Load() {
		t.Fatal("cleanup goroutine not started once a key is tracked")
	}
	rl.Stop()
	deadline := time.Now().Add(time.Second)
	for rl.cleaning.Load() {
		if time.Now().After(deadline) {
			t.Fatal("cleanup goroutine still running after Stop")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestPendingHistory(t *testing.T) {
	ph := NewPendingHistory()
	for i := 0; i < 5; i++ {
		ph.Record("group:1", HistoryEntry{Sender: "u", Body: fmt.Sprintf("m%d", i)}, 3)
	}
	entries := ph.Entries("group:1")
	if len(entries) != 3 || entries[0].Body != "m2" || entries[2].Body != "m4" {
		t.Errorf("entries = %+v", entries)
	}

	built := ph.BuildContext("group:1", "now", 2)
	if strings.Contains(built, "m2") || !strings.Contains(built, "  u: m3") || !strings.HasSuffix(built, "now") {
		t.Errorf("context = %q", built)
	}
	if got := ph.BuildContext("group:2", "now", 3); got != "now" {
		t.Errorf("empty chat context = %q", got)
	}
	if got := ph.BuildContext("group:1", "now", 0); got != "now" {
		t.Errorf("disabled context = %q", got)
	}

	ph.Record("group:3", HistoryEntry{Body: "x"}, 0)
	if ph.Entries("group:3") != nil {
		t.Error("limit 0 still records")
	}

	ph.Clear("group:1")
	if ph.Len() != 0 {
		t.Errorf("Len = %d after Clear", ph.Len())
	}
}

func TestFormatProviderError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"empty", fmt.Errorf("x: %w", providers.ErrEmptyResponse), "没有返回内容"},
		{"http_429", &providers.HTTPError{StatusCode: 429}, "频繁"},
		{"http_401", &providers.HTTPError{StatusCode: 401}, "鉴权"},
		{"http_402", &providers.HTTPError{StatusCode: 402}, "余额"},
		{"http_503", &providers.HTTPError{StatusCode: 503}, "繁忙"},
		{"context", errors.New("This model's maximum context length is 8192 tokens"), "上下文"},
		{"timeout", context.DeadlineExceeded, "超时"},
		{"model", errors.New("The model `x` does not exist: model_not_found"), "模型配置"},
		{"other", errors.New("boom {\"raw\":1}"), "出错"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := formatProviderError(tt.err)
			if !strings.Contains(got, tt.want) {
				t.Errorf("formatProviderError(%v) = %q, want it to contain %q", tt.err, got, tt.want)
			}
			if strings.Contains(got, "raw") {
				t.Errorf("raw payload leaked: %q", got)
			}
		})
	}
}

package bus

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nextlevelbuilder/aivoice/internal/message"
	"github.com/nextlevelbuilder/aivoice/internal/platform"
)

func groupMsg(gid, user, content string) InboundMessage {
	return InboundMessage{
		Event:   platform.Event{Platform: platform.OneBot, MessageType: platform.MessageGroup, GroupID: gid, UserID: user},
		Content: content,
	}
}

func TestMessageBus_RoundTrip(t *testing.T) {
	mb := New()
	ctx := context.Background()

	if err := mb.PublishInbound(ctx, groupMsg("1", "u", "hi")); err != nil {
		t.Fatalf("PublishInbound: %v", err)
	}
	in, ok := mb.ConsumeInbound(ctx)
	if !ok || in.Content != "hi" {
		t.Errorf("ConsumeInbound = %+v, %v", in, ok)
	}

	if err := mb.PublishOutbound(ctx, OutboundMessage{Chain: message.Text("yo")}); err != nil {
		t.Fatalf("PublishOutbound: %v", err)
	}
	out, ok := mb.SubscribeOutbound(ctx)
	if !ok || out.Chain.RawText() != "yo" {
		t.Errorf("SubscribeOutbound = %+v, %v", out, ok)
	}
}

func TestMessageBus_Close(t *testing.T) {
	mb := New()
	mb.Close()
	mb.Close()

	if err := mb.PublishInbound(context.Background(), InboundMessage{}); !errors.Is(err, ErrClosed) {
		t.Errorf("err = %v, want ErrClosed", err)
	}
	if _, ok := mb.ConsumeInbound(context.Background()); ok {
		t.Error("ConsumeInbound on closed bus returned ok")
	}
}

func TestMessageBus_ConsumeHonoursContext(t *testing.T) {
	mb := New()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, ok := mb.ConsumeInbound(ctx); ok {
		t.Error("expected false on cancelled context")
	}
}

func TestChatKey(t *testing.T) {
	if got := ChatKey(platform.Event{MessageType: platform.MessageGroup, GroupID: "9"}); got != "group:9" {
		t.Errorf("group key = %q", got)
	}
	if got := ChatKey(platform.Event{MessageType: platform.MessagePrivate, UserID: "5"}); got != "private:5" {
		t.Errorf("private key = %q", got)
	}
}

func TestDedupeCache(t *testing.T) {
	d := NewDedupeCache(time.Minute, 10)
	if d.IsDuplicate("a") {
		t.Error("first sighting reported as duplicate")
	}
	if !d.IsDuplicate("a") {
		t.Error("second sighting not reported")
	}
	if d.IsDuplicate("") || d.IsDuplicate("") {
		t.Error("empty key must never be a duplicate")
	}
}

func TestDedupeCache_Expires(t *testing.T) {
	d := NewDedupeCache(30*time.Millisecond, 10)
	d.IsDuplicate("a")
	time.Sleep(80 * time.Millisecond)
	if d.IsDuplicate("a") {
		t.Error("entry should have expired")
	}
}

type collector struct {
	mu   sync.Mutex
	msgs []InboundMessage
}

func (c *collector) add(m InboundMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, m)
}

func (c *collector) snapshot() []InboundMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]InboundMessage(nil), c.msgs...)
}

func TestInboundDebouncer_MergesPerSender(t *testing.T) {
	c := &collector{}
	d := NewInboundDebouncer(40*time.Millisecond, nil, c.add)

	first := groupMsg("1", "u", "你好")
	first.Mentioned = true
	d.Push(first)
	d.Push(groupMsg("1", "u", "在吗"))
	d.Push(groupMsg("1", "v", "other sender"))

	time.Sleep(150 * time.Millisecond)

	got := c.snapshot()
	if len(got) != 2 {
		t.Fatalf("flushed %d messages, want 2: %+v", len(got), got)
	}
	var merged InboundMessage
	for _, m := range got {
		if m.Event.UserID == "u" {
			merged = m
		}
	}
	if merged.Content != "你好\n在吗" || !merged.Mentioned {
		t.Errorf("merged = %+v", merged)
	}
}

func TestInboundDebouncer_BypassFlushesFirst(t *testing.T) {
	c := &collector{}
	isCommand := func(m InboundMessage) bool { return strings.HasPrefix(m.Content, "/") }
	d := NewInboundDebouncer(time.Hour, isCommand, c.add)

	d.Push(groupMsg("1", "u", "buffered"))
	d.Push(groupMsg("1", "u", "/切换语音模式"))

	got := c.snapshot()
	if len(got) != 2 || got[0].Content != "buffered" || got[1].Content != "/切换语音模式" {
		t.Errorf("order = %+v", got)
	}
}

func TestInboundDebouncer_DisabledAndStop(t *testing.T) {
	c := &collector{}
	NewInboundDebouncer(0, nil, c.add).Push(groupMsg("1", "u", "now"))
	if len(c.snapshot()) != 1 {
		t.Fatal("disabled debouncer should pass through")
	}

	d := NewInboundDebouncer(time.Hour, nil, c.add)
	d.Push(groupMsg("1", "u", "pending"))
	d.Stop()
	if got := c.snapshot(); len(got) != 2 || got[1].Content != "pending" {
		t.Errorf("Stop did not flush: %+v", got)
	}
}

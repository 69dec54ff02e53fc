package onebot

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/aivoice/internal/bus"
	"github.com/nextlevelbuilder/aivoice/internal/platform"
)

const (
	defaultDedupeTTL  = 20 * time.Minute
	defaultDedupeSize = 5000
	sendTimeout       = 15 * time.Second
)

// ChannelOptions tunes inbound handling.
type ChannelOptions struct {
	DedupeTTL time.Duration // default 20m
	Debounce  time.Duration // 0 disables merging
	// IsCommand reports whether text is a command; commands skip debouncing.
	IsCommand func(text string) bool
}

// Channel bridges the OneBot connection and the message bus: events become
// InboundMessages, OutboundMessages become send actions.
type Channel struct {
	client    *Client
	bus       *bus.MessageBus
	dedupe    *bus.DedupeCache
	debouncer *bus.InboundDebouncer
	ctx       context.Context
}

// NewChannel creates the channel and its client.
func NewChannel(cfg Config, mb *bus.MessageBus, opts ChannelOptions) *Channel {
	if opts.DedupeTTL <= 0 {
		opts.DedupeTTL = defaultDedupeTTL
	}
	ch := &Channel{
		bus:    mb,
		dedupe: bus.NewDedupeCache(opts.DedupeTTL, defaultDedupeSize),
		ctx:    context.Background(),
	}
	var bypass func(bus.InboundMessage) bool
	if opts.IsCommand != nil {
		bypass = func(m bus.InboundMessage) bool { return opts.IsCommand(m.Content) }
	}
	ch.debouncer = bus.NewInboundDebouncer(opts.Debounce, bypass, ch.publish)
	ch.client = NewClient(cfg, ch.handleEvent)
	return ch
}

// Client exposes the platform actions.
func (ch *Channel) Client() *Client { return ch.client }

// Start connects and begins delivering outbound messages.
func (ch *Channel) Start(ctx context.Context) error {
	ch.ctx = ctx
	if err := ch.client.Start(ctx); err != nil {
		return err
	}
	go ch.outboundLoop(ctx)
	slog.Info("onebot channel started")
	return nil
}

// Stop flushes pending inbound messages and closes the connection.
func (ch *Channel) Stop() {
	ch.debouncer.Stop()
	ch.client.Stop()
}

func (ch *Channel) handleEvent(data []byte) {
	var ev rawEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		slog.Debug("onebot: malformed event", "error", err)
		return
	}
	if ev.PostType != "message" {
		if ev.PostType == "meta_event" && ev.MetaEventType == "lifecycle" {
			slog.Info("onebot: lifecycle event", "sub_type", ev.SubType, "self_id", jsonString(ev.SelfID))
		}
		return
	}
	msg, ok := ch.toInbound(ev)
	if !ok {
		return
	}
	if ch.dedupe.IsDuplicate(msg.MessageID) {
		slog.Debug("onebot: duplicate message dropped", "message_id", msg.MessageID)
		return
	}
	ch.debouncer.Push(msg)
}

func (ch *Channel) toInbound(ev rawEvent) (bus.InboundMessage, bool) {
	userID, _ := parseJSONInt64(ev.UserID)
	selfID, _ := parseJSONInt64(ev.SelfID)
	if selfID == 0 {
		selfID = ch.client.SelfID()
	}
	if userID != 0 && userID == selfID {
		return bus.InboundMessage{}, false
	}

	pe := platform.Event{
		ID:          uuid.NewString(),
		Platform:    platform.OneBot,
		MessageType: ev.MessageType,
		UserID:      strconv.FormatInt(userID, 10),
		SenderName:  ev.Sender.Card,
	}
	if pe.SenderName == "" {
		pe.SenderName = ev.Sender.Nickname
	}

	switch ev.MessageType {
	case platform.MessageGroup:
		gid, err := parseJSONInt64(ev.GroupID)
		if err != nil || gid == 0 {
			return bus.InboundMessage{}, false
		}
		pe.GroupID = strconv.FormatInt(gid, 10)
	case platform.MessagePrivate:
	default:
		return bus.InboundMessage{}, false
	}

	parsed := parseMessage(ev.Message, ev.RawMessage, selfID)
	if parsed.Text == "" {
		return bus.InboundMessage{}, false
	}
	return bus.InboundMessage{
		Event:      pe,
		MessageID:  jsonString(ev.MessageID),
		Content:    parsed.Text,
		Mentioned:  parsed.Mentioned || ev.MessageType == platform.MessagePrivate,
		ReceivedAt: time.Now(),
	}, true
}

func (ch *Channel) publish(msg bus.InboundMessage) {
	if err := ch.bus.PublishInbound(ch.ctx, msg); err != nil {
		slog.Warn("onebot: inbound message dropped", "chat", bus.ChatKey(msg.Event), "error", err)
	}
}

func (ch *Channel) outboundLoop(ctx context.Context) {
	for {
		msg, ok := ch.bus.SubscribeOutbound(ctx)
		if !ok {
			return
		}
		if msg.Chain.IsEmpty() {
			continue
		}
		sctx, cancel := context.WithTimeout(ctx, sendTimeout)
		err := ch.client.SendChain(sctx, msg.Event, msg.Chain)
		cancel()
		if err != nil {
			slog.Warn("onebot: send failed", "chat", bus.ChatKey(msg.Event), "event", msg.Event.ID, "error", err)
		}
	}
}

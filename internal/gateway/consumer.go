// Package gateway consumes inbound messages, routing commands to the command
// surface and addressed chat to the LLM provider.
package gateway

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/nextlevelbuilder/aivoice/internal/bus"
	"github.com/nextlevelbuilder/aivoice/internal/commands"
	"github.com/nextlevelbuilder/aivoice/internal/message"
	"github.com/nextlevelbuilder/aivoice/internal/pipeline"
	"github.com/nextlevelbuilder/aivoice/internal/platform"
	"github.com/nextlevelbuilder/aivoice/internal/providers"
)

const defaultMaxConcurrent = 8

var tracer = otel.Tracer("github.com/nextlevelbuilder/aivoice/internal/gateway")

// Options are the hot-reloadable consumer settings.
type Options struct {
	RequireMention bool
	SystemPrompt   string
	Model          string
	Temperature    float64
	HistoryLimit   int
	ChatTimeout    time.Duration // 0 leaves the provider's own timeout in charge
}

// CommandHandler executes a parsed command. commands.Surface implements it.
type CommandHandler interface {
	Handle(ctx context.Context, ev platform.Event, cmd commands.Command)
}

// ReplyDecorator is the response pipeline seen from the consumer.
type ReplyDecorator interface {
	DecorateRequest(ev platform.Event, req *providers.ChatRequest)
	Decorate(ctx context.Context, ev platform.Event, res *pipeline.Result)
	AfterSent(ctx context.Context, ev platform.Event)
}

// ConsumerDeps groups the collaborators of a Consumer.
type ConsumerDeps struct {
	Bus           *bus.MessageBus
	Router        *commands.Router
	Commands      CommandHandler
	Pipeline      ReplyDecorator
	Provider      providers.Provider
	Limiter       *RateLimiter
	History       *PendingHistory
	MaxConcurrent int
}

// Consumer turns inbound messages into command replies or LLM replies.
type Consumer struct {
	deps ConsumerDeps
	opts atomic.Pointer[Options]
	sem  chan struct{}
	wg   sync.WaitGroup
}

// NewConsumer creates a consumer. Limiter and History may be nil.
func NewConsumer(deps ConsumerDeps, opts Options) *Consumer {
	if deps.Limiter == nil {
		deps.Limiter = NewRateLimiter(0, 0)
	}
	if deps.History == nil {
		deps.History = NewPendingHistory()
	}
	if deps.MaxConcurrent <= 0 {
		deps.MaxConcurrent = defaultMaxConcurrent
	}
	c := &Consumer{deps: deps, sem: make(chan struct{}, deps.MaxConcurrent)}
	c.SetOptions(opts)
	return c
}

// SetOptions swaps the consumer settings.
func (c *Consumer) SetOptions(opts Options) {
	if opts.HistoryLimit < 0 {
		opts.HistoryLimit = 0
	}
	c.opts.Store(&opts)
}

// Options returns the active settings.
func (c *Consumer) Options() Options { return *c.opts.Load() }

// Run consumes inbound messages until ctx is cancelled or the bus closes,
// then waits for in-flight messages.
func (c *Consumer) Run(ctx context.Context) {
	defer c.wg.Wait()
	for {
		msg, ok := c.deps.Bus.ConsumeInbound(ctx)
		if !ok {
			return
		}
		select {
		case c.sem <- struct{}{}:
		case <-ctx.Done():
			return
		}
		c.wg.Add(1)
		go func() {
			defer func() {
				<-c.sem
				c.wg.Done()
			}()
			c.Handle(ctx, msg)
		}()
	}
}

// Handle processes one inbound message.
func (c *Consumer) Handle(ctx context.Context, msg bus.InboundMessage) {
	ev := msg.Event
	if cmd, ok := c.deps.Router.Parse(msg.Content); ok {
		slog.Info("gateway: command", "command", cmd.Name, "chat", bus.ChatKey(ev), "user", ev.UserID)
		c.deps.Commands.Handle(ctx, ev, cmd)
		return
	}

	opts := c.Options()
	key := bus.ChatKey(ev)
	if ev.MessageType == platform.MessageGroup && !msg.Mentioned && opts.RequireMention {
		c.deps.History.Record(key, HistoryEntry{
			Sender:    senderLabel(ev),
			Body:      msg.Content,
			Timestamp: msg.ReceivedAt,
			MessageID: msg.MessageID,
		}, opts.HistoryLimit)
		return
	}
	if !c.deps.Limiter.Allow(key) {
		return
	}

	c.reply(ctx, msg, opts)
}

func (c *Consumer) reply(ctx context.Context, msg bus.InboundMessage, opts Options) {
	ev := msg.Event
	key := bus.ChatKey(ev)

	ctx, span := tracer.Start(ctx, "gateway.reply")
	defer span.End()
	span.SetAttributes(attribute.String("chat", key), attribute.String("event.id", ev.ID))

	req := providers.ChatRequest{
		Model:        opts.Model,
		SystemPrompt: opts.SystemPrompt,
		Temperature:  opts.Temperature,
		Messages: []providers.Message{{
			Role:    providers.RoleUser,
			Content: c.deps.History.BuildContext(key, msg.Content, opts.HistoryLimit),
		}},
	}
	c.deps.Pipeline.DecorateRequest(ev, &req)

	chatCtx := ctx
	if opts.ChatTimeout > 0 {
		var cancel context.CancelFunc
		chatCtx, cancel = context.WithTimeout(ctx, opts.ChatTimeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := c.deps.Provider.Chat(chatCtx, req)

	var res pipeline.Result
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.Warn("gateway: provider chat failed", "provider", c.deps.Provider.Name(), "chat", key, "error", err)
		res = pipeline.Result{Chain: message.Text(formatProviderError(err))}
	} else {
		slog.Info("gateway: reply generated",
			"provider", c.deps.Provider.Name(),
			"chat", key,
			"duration_ms", time.Since(start).Milliseconds(),
			"tokens", resp.Usage.TotalTokens,
		)
		c.deps.History.Clear(key)
		res = pipeline.Result{Chain: message.Text(resp.Content), LLM: true}
	}

	c.deps.Pipeline.Decorate(ctx, ev, &res)
	if !res.Chain.IsEmpty() {
		if err := c.deps.Bus.PublishOutbound(ctx, bus.OutboundMessage{Event: ev, Chain: res.Chain}); err != nil {
			slog.Warn("gateway: reply dropped", "chat", key, "error", err)
			return
		}
	}
	c.deps.Pipeline.AfterSent(ctx, ev)
}

func senderLabel(ev platform.Event) string {
	if ev.SenderName != "" {
		return ev.SenderName
	}
	return ev.UserID
}

// BusReplier sends command replies through the outbound bus.
type BusReplier struct {
	Bus *bus.MessageBus
}

// Reply publishes text as a reply to ev's chat.
func (r BusReplier) Reply(ctx context.Context, ev platform.Event, text string) error {
	return r.Bus.PublishOutbound(ctx, bus.OutboundMessage{Event: ev, Chain: message.Text(text)})
}

var _ commands.Replier = BusReplier{}

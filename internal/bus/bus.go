package bus

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned when publishing to a closed bus.
var ErrClosed = errors.New("message bus closed")

const defaultBuffer = 100

// MessageBus routes inbound messages from the channel to the consumer and
// reply chains back to the channel.
type MessageBus struct {
	inbound  chan InboundMessage
	outbound chan OutboundMessage

	mu     sync.RWMutex
	closed bool
}

func New() *MessageBus {
	return &MessageBus{
		inbound:  make(chan InboundMessage, defaultBuffer),
		outbound: make(chan OutboundMessage, defaultBuffer),
	}
}

// PublishInbound queues an inbound message. It blocks while the buffer is
// full, until ctx is cancelled.
func (mb *MessageBus) PublishInbound(ctx context.Context, msg InboundMessage) error {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	if mb.closed {
		return ErrClosed
	}
	select {
	case mb.inbound <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ConsumeInbound blocks until an inbound message is available, the bus is
// closed or ctx is cancelled.
func (mb *MessageBus) ConsumeInbound(ctx context.Context) (InboundMessage, bool) {
	select {
	case msg, ok := <-mb.inbound:
		return msg, ok
	case <-ctx.Done():
		return InboundMessage{}, false
	}
}

// PublishOutbound queues a reply chain.
func (mb *MessageBus) PublishOutbound(ctx context.Context, msg OutboundMessage) error {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	if mb.closed {
		return ErrClosed
	}
	select {
	case mb.outbound <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SubscribeOutbound blocks until a reply chain is available, the bus is
// closed or ctx is cancelled.
func (mb *MessageBus) SubscribeOutbound(ctx context.Context) (OutboundMessage, bool) {
	select {
	case msg, ok := <-mb.outbound:
		return msg, ok
	case <-ctx.Done():
		return OutboundMessage{}, false
	}
}

// Close shuts down the message bus. Queued messages can still be drained.
func (mb *MessageBus) Close() {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if mb.closed {
		return
	}
	mb.closed = true
	close(mb.inbound)
	close(mb.outbound)
}

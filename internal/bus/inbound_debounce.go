package bus

import (
	"log/slog"
	"strings"
	"sync"
	"time"
)

// InboundDebouncer buffers rapid consecutive messages from the same sender in
// the same chat and merges them into one before calling flushFn, so a user
// typing several short lines triggers one assistant reply instead of many.
type InboundDebouncer struct {
	window  time.Duration
	bypass  func(InboundMessage) bool
	flushFn func(InboundMessage)

	mu      sync.Mutex
	buffers map[string]*debounceBuffer
}

type debounceBuffer struct {
	messages []InboundMessage
	timer    *time.Timer
}

// NewInboundDebouncer creates a debouncer. A window <= 0 disables buffering.
// Messages for which bypass returns true (commands) flush the sender's buffer
// and are then delivered on their own.
func NewInboundDebouncer(window time.Duration, bypass func(InboundMessage) bool, flushFn func(InboundMessage)) *InboundDebouncer {
	return &InboundDebouncer{
		window:  window,
		bypass:  bypass,
		flushFn: flushFn,
		buffers: make(map[string]*debounceBuffer),
	}
}

// Push adds a message to its sender's buffer and restarts the quiet timer.
func (d *InboundDebouncer) Push(msg InboundMessage) {
	if d.window <= 0 {
		d.flushFn(msg)
		return
	}

	key := debounceKey(msg)

	if d.bypass != nil && d.bypass(msg) {
		d.flushKey(key)
		d.flushFn(msg)
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	buf, exists := d.buffers[key]
	if !exists {
		buf = &debounceBuffer{}
		d.buffers[key] = buf
	}
	buf.messages = append(buf.messages, msg)

	if buf.timer != nil {
		buf.timer.Stop()
	}
	buf.timer = time.AfterFunc(d.window, func() {
		d.flushKey(key)
	})

	if len(buf.messages) > 1 {
		slog.Debug("inbound debounce: message appended", "key", key, "buffered", len(buf.messages))
	}
}

// Stop flushes all pending buffers immediately (graceful shutdown).
func (d *InboundDebouncer) Stop() {
	d.mu.Lock()
	keys := make([]string, 0, len(d.buffers))
	for k := range d.buffers {
		keys = append(keys, k)
	}
	d.mu.Unlock()

	for _, key := range keys {
		d.flushKey(key)
	}
}

func (d *InboundDebouncer) flushKey(key string) {
	d.mu.Lock()
	buf, exists := d.buffers[key]
	if !exists || len(buf.messages) == 0 {
		d.mu.Unlock()
		return
	}
	if buf.timer != nil {
		buf.timer.Stop()
	}
	msgs := buf.messages
	delete(d.buffers, key)
	d.mu.Unlock()

	if len(msgs) > 1 {
		slog.Info("inbound debounce: merged messages", "key", key, "count", len(msgs))
	}
	d.flushFn(mergeInboundMessages(msgs))
}

// debounceKey is chat + sender.
func debounceKey(msg InboundMessage) string {
	return ChatKey(msg.Event) + ":" + msg.Event.UserID
}

// mergeInboundMessages joins the contents with newlines. The result carries
// the last message's identity and is mentioned if any part was.
func mergeInboundMessages(msgs []InboundMessage) InboundMessage {
	if len(msgs) == 1 {
		return msgs[0]
	}
	merged := msgs[len(msgs)-1]
	parts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if m.Content != "" {
			parts = append(parts, m.Content)
		}
		merged.Mentioned = merged.Mentioned || m.Mentioned
	}
	merged.Content = strings.Join(parts, "\n")
	return merged
}

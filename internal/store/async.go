package store

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrWriterClosed is returned when a write is queued after Close.
var ErrWriterClosed = errors.New("settings writer closed")

// AsyncWriter makes persistence fire-and-forget. Writes are queued and applied
// to the wrapped store one at a time, in order, on a background goroutine.
// Failures are logged, never returned to the caller.
type AsyncWriter struct {
	inner   SettingsStore
	ops     chan writeOp
	done    chan struct{}
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
}

type writeOp struct {
	groupID string
	group   *GroupSettings
	catalog json.RawMessage
	barrier chan struct{}
}

// NewAsyncWriter starts the writer goroutine. queue is the buffer size
// (default 256).
func NewAsyncWriter(inner SettingsStore, queue int) *AsyncWriter {
	if queue <= 0 {
		queue = 256
	}
	w := &AsyncWriter{
		inner:   inner,
		ops:     make(chan writeOp, queue),
		done:    make(chan struct{}),
		timeout: 10 * time.Second,
	}
	go w.loop()
	return w
}

// Load reads straight from the wrapped store.
func (w *AsyncWriter) Load(ctx context.Context) (*Snapshot, error) {
	return w.inner.Load(ctx)
}

// SaveGroup queues a group settings write.
func (w *AsyncWriter) SaveGroup(ctx context.Context, groupID string, g GroupSettings) error {
	return w.enqueue(ctx, writeOp{groupID: groupID, group: &g})
}

// SaveCatalog queues a catalog snapshot write.
func (w *AsyncWriter) SaveCatalog(ctx context.Context, groupID string, data json.RawMessage) error {
	return w.enqueue(ctx, writeOp{groupID: groupID, catalog: data})
}

// Flush blocks until every write queued before the call has been applied.
func (w *AsyncWriter) Flush(ctx context.Context) error {
	barrier := make(chan struct{})
	if err := w.enqueue(ctx, writeOp{barrier: barrier}); err != nil {
		return err
	}
	select {
	case <-barrier:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close drains the queue and closes the wrapped store.
func (w *AsyncWriter) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.ops)
	w.mu.Unlock()

	<-w.done
	return w.inner.Close()
}

func (w *AsyncWriter) enqueue(ctx context.Context, op writeOp) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return ErrWriterClosed
	}
	select {
	case w.ops <- op:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *AsyncWriter) loop() {
	defer close(w.done)
	for op := range w.ops {
		if op.barrier != nil {
			close(op.barrier)
			continue
		}
		w.apply(op)
	}
}

func (w *AsyncWriter) apply(op writeOp) {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	var err error
	kind := "group"
	if op.group != nil {
		err = w.inner.SaveGroup(ctx, op.groupID, *op.group)
	} else {
		kind = "catalog"
		err = w.inner.SaveCatalog(ctx, op.groupID, op.catalog)
	}
	if err != nil {
		slog.Warn("store: persist failed", "kind", kind, "group", op.groupID, "error", err)
	}
}

package store

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
)

type memStore struct {
	mu     sync.Mutex
	snap   *Snapshot
	order  []string
	fail   bool
	closed bool
}

func (m *memStore) Load(context.Context) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snap == nil {
		return NewSnapshot(), nil
	}
	return m.snap, nil
}

func (m *memStore) SaveGroup(_ context.Context, groupID string, g GroupSettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("disk full")
	}
	if m.snap == nil {
		m.snap = NewSnapshot()
	}
	m.snap.SetGroup(groupID, g)
	m.order = append(m.order, groupID)
	return nil
}

func (m *memStore) SaveCatalog(_ context.Context, groupID string, data json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snap == nil {
		m.snap = NewSnapshot()
	}
	m.snap.CharacterCache[groupID] = data
	m.order = append(m.order, "catalog:"+groupID)
	return nil
}

func (m *memStore) Close() error {
	m.closed = true
	return nil
}

func TestAsyncWriter_AppliesInOrder(t *testing.T) {
	inner := &memStore{}
	w := NewAsyncWriter(inner, 4)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c", "d", "e", "f"} {
		if err := w.SaveGroup(ctx, id, GroupSettings{AutoSpeech: true}); err != nil {
			t.Fatalf("SaveGroup: %v", err)
		}
	}
	if err := w.SaveCatalog(ctx, "a", json.RawMessage(`[]`)); err != nil {
		t.Fatalf("SaveCatalog: %v", err)
	}
	if err := w.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	inner.mu.Lock()
	got := append([]string(nil), inner.order...)
	inner.mu.Unlock()
	want := []string{"a", "b", "c", "d", "e", "f", "catalog:a"}
	if len(got) != len(want) {
		t.Fatalf("order = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}

	// Last write wins when toggled twice.
	_ = w.SaveGroup(ctx, "a", GroupSettings{AutoSpeech: false})
	_ = w.Flush(ctx)
	snap, _ := w.Load(ctx)
	if snap.AutoSpeech["a"] {
		t.Error("expected last write to win")
	}
}

func TestAsyncWriter_FailuresAreNotReturned(t *testing.T) {
	inner := &memStore{fail: true}
	w := NewAsyncWriter(inner, 0)
	defer w.Close()

	if err := w.SaveGroup(context.Background(), "a", GroupSettings{}); err != nil {
		t.Errorf("SaveGroup returned backend error: %v", err)
	}
	if err := w.Flush(context.Background()); err != nil {
		t.Errorf("Flush: %v", err)
	}
}

func TestAsyncWriter_CloseDrainsAndRejects(t *testing.T) {
	inner := &memStore{}
	w := NewAsyncWriter(inner, 0)
	_ = w.SaveGroup(context.Background(), "a", GroupSettings{TextCoSend: true})

	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !inner.closed {
		t.Error("inner store not closed")
	}
	if !inner.snap.TextCoSend["a"] {
		t.Error("queued write lost on Close")
	}
	if err := w.SaveGroup(context.Background(), "b", GroupSettings{}); !errors.Is(err, ErrWriterClosed) {
		t.Errorf("err = %v, want ErrWriterClosed", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

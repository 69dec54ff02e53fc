package gateway

import (
	"fmt"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// maxHistoryKeys is the max number of distinct chats tracked.
const maxHistoryKeys = 1000

// DefaultGroupHistoryLimit is the default pending message limit per group.
const DefaultGroupHistoryLimit = 20

// HistoryEntry is one group message the bot saw but did not answer.
type HistoryEntry struct {
	Sender    string
	Body      string
	Timestamp time.Time
	MessageID string
}

// PendingHistory tracks unanswered group messages so that, once the bot is
// mentioned, the model sees what the group was talking about.
type PendingHistory struct {
	mu      sync.Mutex
	entries *lru.Cache[string, []HistoryEntry] // chat key → entries
}

// NewPendingHistory creates a tracker holding at most maxHistoryKeys chats;
// the least recently active chat is evicted first.
func NewPendingHistory() *PendingHistory {
	cache, _ := lru.New[string, []HistoryEntry](maxHistoryKeys)
	return &PendingHistory{entries: cache}
}

// Record adds a message to the pending history for a chat.
// If limit ≤ 0, recording is disabled.
func (ph *PendingHistory) Record(key string, entry HistoryEntry, limit int) {
	if limit <= 0 || key == "" {
		return
	}

	ph.mu.Lock()
	defer ph.mu.Unlock()

	existing, _ := ph.entries.Get(key)
	existing = append(existing, entry)
	if len(existing) > limit {
		existing = append([]HistoryEntry(nil), existing[len(existing)-limit:]...)
	}
	ph.entries.Add(key, existing)
}

// BuildContext prefixes currentMessage with the pending history for key.
func (ph *PendingHistory) BuildContext(key, currentMessage string, limit int) string {
	if limit <= 0 || key == "" {
		return currentMessage
	}

	entries := ph.Entries(key)
	if len(entries) == 0 {
		return currentMessage
	}
	if len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}

	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		ts := ""
		if !e.Timestamp.IsZero() {
			ts = fmt.Sprintf(" [%s]", e.Timestamp.Format("15:04"))
		}
		lines = append(lines, fmt.Sprintf("  %s%s: %s", e.Sender, ts, e.Body))
	}

	return fmt.Sprintf("[群聊中你上次回复后的消息，仅供参考]\n%s\n\n[当前消息]\n%s",
		strings.Join(lines, "\n"),
		currentMessage,
	)
}

// Entries returns a copy of the pending entries for a chat.
func (ph *PendingHistory) Entries(key string) []HistoryEntry {
	ph.mu.Lock()
	defer ph.mu.Unlock()

	entries, ok := ph.entries.Peek(key)
	if !ok || len(entries) == 0 {
		return nil
	}
	result := make([]HistoryEntry, len(entries))
	copy(result, entries)
	return result
}

// Clear drops the pending history of a chat. Called after the bot replies.
func (ph *PendingHistory) Clear(key string) {
	if key == "" {
		return
	}
	ph.mu.Lock()
	defer ph.mu.Unlock()
	ph.entries.Remove(key)
}

// Len is the number of chats with pending history.
func (ph *PendingHistory) Len() int {
	ph.mu.Lock()
	defer ph.mu.Unlock()
	return ph.entries.Len()
}

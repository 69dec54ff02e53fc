// Package groups holds the per-group voice configuration: the selected
// default character plus the auto-speech and text co-send switches.
package groups

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nextlevelbuilder/aivoice/internal/store"
)

// persistTimeout bounds one synchronous persistence call.
const persistTimeout = 5 * time.Second

// Config is one group's settings. The zero value is the default for a group
// that was never configured.
type Config struct {
	DefaultCharacterID string
	AutoSpeech         bool
	TextCoSend         bool
}

// Persister receives every mutation. store.AsyncWriter makes it fire-and-forget.
type Persister interface {
	SaveGroup(ctx context.Context, groupID string, g store.GroupSettings) error
}

// Store is the in-memory authority for group settings. Reads never persist;
// every setter writes through to the Persister and logs (does not return)
// persistence failures, so a broken backend never aborts a command reply.
//
// The store lock is never held while persisting. Writes for one group are
// serialized by a per-group lock and always carry the group's latest state.
type Store struct {
	mu      sync.Mutex
	groups  map[string]Config
	seq     map[string]uint64 // mutations per group
	saved   map[string]uint64 // seq of the last successful persist
	persist Persister

	persistLocks sync.Map // groupID → *sync.Mutex
}

// NewStore creates an empty store. p may be nil (nothing is persisted).
func NewStore(p Persister) *Store {
	return &Store{
		groups:  make(map[string]Config),
		seq:     make(map[string]uint64),
		saved:   make(map[string]uint64),
		persist: p,
	}
}

// Load replaces the in-memory state with a persisted snapshot.
func (s *Store) Load(snap *store.Snapshot) {
	if snap == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.groups = make(map[string]Config)
	s.seq = make(map[string]uint64)
	s.saved = make(map[string]uint64)
	for _, id := range snap.GroupIDs() {
		g := snap.Group(id)
		s.groups[id] = Config{
			DefaultCharacterID: g.DefaultCharacterID,
			AutoSpeech:         g.AutoSpeech,
			TextCoSend:         g.TextCoSend,
		}
	}
	slog.Info("group settings loaded", "groups", len(s.groups))
}

// Get returns the group's settings, or the defaults when the group has none.
func (s *Store) Get(groupID string) Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.groups[groupID]
}

// DefaultCharacter returns the configured default character id ("" if unset).
func (s *Store) DefaultCharacter(groupID string) string {
	return s.Get(groupID).DefaultCharacterID
}

// Groups returns a copy of every configured group.
func (s *Store) Groups() map[string]Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Config, len(s.groups))
	for id, c := range s.groups {
		out[id] = c
	}
	return out
}

func (s *Store) SetAutoSpeech(ctx context.Context, groupID string, enabled bool) {
	s.update(ctx, groupID, func(c *Config) { c.AutoSpeech = enabled })
}

func (s *Store) SetTextCoSend(ctx context.Context, groupID string, enabled bool) {
	s.update(ctx, groupID, func(c *Config) { c.TextCoSend = enabled })
}

// SetDefaultCharacter stores characterID as the group's default. An empty id
// clears it.
func (s *Store) SetDefaultCharacter(ctx context.Context, groupID, characterID string) {
	s.update(ctx, groupID, func(c *Config) { c.DefaultCharacterID = characterID })
}

// ToggleAutoSpeech flips the auto-speech switch and returns the new value.
func (s *Store) ToggleAutoSpeech(ctx context.Context, groupID string) bool {
	var v bool
	s.update(ctx, groupID, func(c *Config) {
		c.AutoSpeech = !c.AutoSpeech
		v = c.AutoSpeech
	})
	return v
}

// ToggleTextCoSend flips the text co-send switch and returns the new value.
func (s *Store) ToggleTextCoSend(ctx context.Context, groupID string) bool {
	var v bool
	s.update(ctx, groupID, func(c *Config) {
		c.TextCoSend = !c.TextCoSend
		v = c.TextCoSend
	})
	return v
}

// update applies fn under the store lock, then persists outside it.
func (s *Store) update(ctx context.Context, groupID string, fn func(*Config)) {
	s.mu.Lock()
	c := s.groups[groupID]
	fn(&c)
	s.groups[groupID] = c
	s.seq[groupID]++
	s.mu.Unlock()

	if s.persist == nil {
		return
	}
	s.flush(ctx, groupID)
}

// flush writes the group's current state unless a newer or equal state has
// already been persisted by a concurrent caller.
func (s *Store) flush(ctx context.Context, groupID string) {
	l := s.persistLock(groupID)
	l.Lock()
	defer l.Unlock()

	s.mu.Lock()
	c := s.groups[groupID]
	seq := s.seq[groupID]
	done := s.saved[groupID] >= seq
	s.mu.Unlock()
	if done {
		return
	}

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	err := s.persist.SaveGroup(pctx, groupID, store.GroupSettings{
		DefaultCharacterID: c.DefaultCharacterID,
		AutoSpeech:         c.AutoSpeech,
		TextCoSend:         c.TextCoSend,
	})
	if err != nil {
		slog.Warn("groups: persist failed", "group", groupID, "error", err)
		return
	}

	s.mu.Lock()
	if seq > s.saved[groupID] {
		s.saved[groupID] = seq
	}
	s.mu.Unlock()
}

func (s *Store) persistLock(groupID string) *sync.Mutex {
	v, _ := s.persistLocks.LoadOrStore(groupID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

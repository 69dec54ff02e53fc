// Package store persists per-group voice settings.
//
// The persisted layout is four mappings keyed by group id: default characters,
// auto-speech flags, the character catalog snapshot and text co-send flags.
// Backends live in sub-packages (file, sqlite, pg, redis, badger).
package store

import (
	"context"
	"encoding/json"
	"sort"
)

// Backend names accepted in Config.Backend.
const (
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendBadger   = "badger"
)

// Config configures the settings backend.
type Config struct {
	// Backend selects the implementation. Default "file".
	Backend string

	// Path is the JSON file (file), database file (sqlite) or directory (badger).
	Path string

	// PostgresDSN is the Postgres connection string (postgres backend).
	PostgresDSN string

	// RedisURL is a redis:// URL (redis backend).
	RedisURL string

	// RedisPrefix namespaces the four redis hashes. Default "aivoice".
	RedisPrefix string
}

// GroupSettings is the persisted form of one group's configuration.
type GroupSettings struct {
	DefaultCharacterID string `json:"default_character_id,omitempty"`
	AutoSpeech         bool   `json:"auto_speech"`
	TextCoSend         bool   `json:"text_co_send"`
}

// Snapshot is everything a backend holds.
type Snapshot struct {
	DefaultCharacters map[string]string          `json:"default_characters"`
	AutoSpeech        map[string]bool            `json:"auto_speech"`
	CharacterCache    map[string]json.RawMessage `json:"character_cache"`
	TextCoSend        map[string]bool            `json:"text_co_send"`
}

// NewSnapshot returns a snapshot with all four mappings allocated.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		DefaultCharacters: make(map[string]string),
		AutoSpeech:        make(map[string]bool),
		CharacterCache:    make(map[string]json.RawMessage),
		TextCoSend:        make(map[string]bool),
	}
}

// Normalize allocates any nil mapping (e.g. after decoding a partial file).
func (s *Snapshot) Normalize() {
	if s.DefaultCharacters == nil {
		s.DefaultCharacters = make(map[string]string)
	}
	if s.AutoSpeech == nil {
		s.AutoSpeech = make(map[string]bool)
	}
	if s.CharacterCache == nil {
		s.CharacterCache = make(map[string]json.RawMessage)
	}
	if s.TextCoSend == nil {
		s.TextCoSend = make(map[string]bool)
	}
}

// Group assembles the settings of one group from the three settings mappings.
func (s *Snapshot) Group(groupID string) GroupSettings {
	return GroupSettings{
		DefaultCharacterID: s.DefaultCharacters[groupID],
		AutoSpeech:         s.AutoSpeech[groupID],
		TextCoSend:         s.TextCoSend[groupID],
	}
}

// SetGroup writes one group's settings into the mappings. An empty default
// character id removes the entry.
func (s *Snapshot) SetGroup(groupID string, g GroupSettings) {
	s.Normalize()
	if g.DefaultCharacterID == "" {
		delete(s.DefaultCharacters, groupID)
	} else {
		s.DefaultCharacters[groupID] = g.DefaultCharacterID
	}
	s.AutoSpeech[groupID] = g.AutoSpeech
	s.TextCoSend[groupID] = g.TextCoSend
}

// GroupIDs returns every group id that has settings, sorted.
func (s *Snapshot) GroupIDs() []string {
	seen := make(map[string]struct{})
	for id := range s.DefaultCharacters {
		seen[id] = struct{}{}
	}
	for id := range s.AutoSpeech {
		seen[id] = struct{}{}
	}
	for id := range s.TextCoSend {
		seen[id] = struct{}{}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SettingsStore is the persistence contract for group settings.
type SettingsStore interface {
	// Load reads all four mappings.
	Load(ctx context.Context) (*Snapshot, error)
	// SaveGroup upserts one group's default character and flags.
	SaveGroup(ctx context.Context, groupID string, g GroupSettings) error
	// SaveCatalog upserts one group's catalog snapshot (JSON list of categories).
	SaveCatalog(ctx context.Context, groupID string, data json.RawMessage) error
	Close() error
}

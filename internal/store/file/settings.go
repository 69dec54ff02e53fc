// Package file stores group settings in a single JSON document (standalone mode).
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/nextlevelbuilder/aivoice/internal/store"
)

// SettingsStore keeps the whole snapshot in memory and rewrites the file on
// every change. The write goes to a temp file first and is renamed into place.
type SettingsStore struct {
	path string
	mu   sync.Mutex
	snap *store.Snapshot
}

// NewSettingsStore opens (or lazily creates) the settings file at path.
// A missing file is an empty snapshot; a corrupt one is an error.
func NewSettingsStore(path string) (*SettingsStore, error) {
	s := &SettingsStore{path: path, snap: store.NewSnapshot()}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SettingsStore) Load(_ context.Context) (*store.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneSnapshot(s.snap), nil
}

func (s *SettingsStore) SaveGroup(_ context.Context, groupID string, g store.GroupSettings) error {
	if err := store.ValidateGroupID(groupID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.SetGroup(groupID, g)
	return s.save()
}

func (s *SettingsStore) SaveCatalog(_ context.Context, groupID string, data json.RawMessage) error {
	if err := store.ValidateGroupID(groupID); err != nil {
		return err
	}
	if !json.Valid(data) {
		return fmt.Errorf("catalog snapshot for group %s is not valid JSON", groupID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.CharacterCache[groupID] = append(json.RawMessage(nil), data...)
	return s.save()
}

func (s *SettingsStore) Close() error { return nil }

// --- Internal ---

func (s *SettingsStore) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // file doesn't exist yet
		}
		return fmt.Errorf("read settings %s: %w", s.path, err)
	}
	if len(data) == 0 {
		return nil
	}
	snap := store.NewSnapshot()
	if err := json.Unmarshal(data, snap); err != nil {
		return fmt.Errorf("parse settings %s: %w", s.path, err)
	}
	snap.Normalize()
	s.snap = snap
	slog.Debug("settings file loaded", "path", s.path, "groups", len(snap.GroupIDs()))
	return nil
}

func (s *SettingsStore) save() error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}
	data, err := json.MarshalIndent(s.snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace settings: %w", err)
	}
	return nil
}

func cloneSnapshot(src *store.Snapshot) *store.Snapshot {
	out := store.NewSnapshot()
	for k, v := range src.DefaultCharacters {
		out.DefaultCharacters[k] = v
	}
	for k, v := range src.AutoSpeech {
		out.AutoSpeech[k] = v
	}
	for k, v := range src.CharacterCache {
		out.CharacterCache[k] = append(json.RawMessage(nil), v...)
	}
	for k, v := range src.TextCoSend {
		out.TextCoSend[k] = v
	}
	return out
}

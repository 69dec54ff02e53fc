package file

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/nextlevelbuilder/aivoice/internal/store"
)

func TestSettingsStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "settings.json")
	ctx := context.Background()

	s, err := NewSettingsStore(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.SaveGroup(ctx, "123", store.GroupSettings{DefaultCharacterID: "c9", AutoSpeech: true}); err != nil {
		t.Fatalf("SaveGroup: %v", err)
	}
	if err := s.SaveGroup(ctx, "456", store.GroupSettings{TextCoSend: true}); err != nil {
		t.Fatalf("SaveGroup: %v", err)
	}
	if err := s.SaveCatalog(ctx, "123", json.RawMessage(`[{"type":"A","characters":[]}]`)); err != nil {
		t.Fatalf("SaveCatalog: %v", err)
	}

	reopened, err := NewSettingsStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	snap, err := reopened.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := snap.Group("123"); got != (store.GroupSettings{DefaultCharacterID: "c9", AutoSpeech: true}) {
		t.Errorf("group 123 = %+v", got)
	}
	if !snap.TextCoSend["456"] {
		t.Error("group 456 text co-send lost")
	}
	if string(snap.CharacterCache["123"]) != `[{"type":"A","characters":[]}]` {
		t.Errorf("catalog = %s", snap.CharacterCache["123"])
	}

	// The on-disk layout carries the four top-level mappings.
	raw, _ := os.ReadFile(path)
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("file is not JSON: %v", err)
	}
	for _, key := range []string{"default_characters", "auto_speech", "character_cache", "text_co_send"} {
		if _, ok := doc[key]; !ok {
			t.Errorf("missing top-level key %q", key)
		}
	}
}

func TestSettingsStore_MissingFileIsEmpty(t *testing.T) {
	s, err := NewSettingsStore(filepath.Join(t.TempDir(), "none.json"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	snap, _ := s.Load(context.Background())
	if len(snap.GroupIDs()) != 0 {
		t.Errorf("expected empty snapshot, got %v", snap.GroupIDs())
	}
}

func TestSettingsStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := NewSettingsStore(path); err == nil {
		t.Error("expected an error for a corrupt file")
	}
}

func TestSettingsStore_RejectsBadInput(t *testing.T) {
	s, _ := NewSettingsStore(filepath.Join(t.TempDir(), "s.json"))
	ctx := context.Background()
	if err := s.SaveGroup(ctx, "", store.GroupSettings{}); err == nil {
		t.Error("empty group id accepted")
	}
	if err := s.SaveCatalog(ctx, "1", json.RawMessage(`{oops`)); err == nil {
		t.Error("invalid catalog JSON accepted")
	}
}

func TestSettingsStore_LoadReturnsCopy(t *testing.T) {
	s, _ := NewSettingsStore(filepath.Join(t.TempDir(), "s.json"))
	ctx := context.Background()
	_ = s.SaveGroup(ctx, "1", store.GroupSettings{AutoSpeech: true})

	snap, _ := s.Load(ctx)
	snap.AutoSpeech["1"] = false

	again, _ := s.Load(ctx)
	if !again.AutoSpeech["1"] {
		t.Error("mutating a loaded snapshot changed the store")
	}
}

package badger

import (
	"context"
	"encoding/json"
	"testing"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/nextlevelbuilder/aivoice/internal/store"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	opts := badgerdb.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badgerdb.Open(opts)
	if err != nil {
		t.Fatalf("open badger: %v", err)
	}
	s := New(db, nil)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBadgerStore_RoundTrip(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	if err := s.SaveGroup(ctx, "10", store.GroupSettings{DefaultCharacterID: "c1", AutoSpeech: true}); err != nil {
		t.Fatalf("SaveGroup: %v", err)
	}
	if err := s.SaveGroup(ctx, "20", store.GroupSettings{TextCoSend: true}); err != nil {
		t.Fatalf("SaveGroup: %v", err)
	}
	if err := s.SaveCatalog(ctx, "10", json.RawMessage(`{"status":"ok","data":[]}`)); err != nil {
		t.Fatalf("SaveCatalog: %v", err)
	}

	snap, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := snap.Group("10"); got != (store.GroupSettings{DefaultCharacterID: "c1", AutoSpeech: true}) {
		t.Errorf("group 10 = %+v", got)
	}
	if got := snap.Group("20"); got != (store.GroupSettings{TextCoSend: true}) {
		t.Errorf("group 20 = %+v", got)
	}
	if string(snap.CharacterCache["10"]) != `{"status":"ok","data":[]}` {
		t.Errorf("catalog = %s", snap.CharacterCache["10"])
	}
	if ids := snap.GroupIDs(); len(ids) != 2 {
		t.Errorf("GroupIDs = %v", ids)
	}
}

func TestBadgerStore_ClearDefault(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	_ = s.SaveGroup(ctx, "10", store.GroupSettings{DefaultCharacterID: "c1"})
	if err := s.SaveGroup(ctx, "10", store.GroupSettings{}); err != nil {
		t.Fatalf("SaveGroup: %v", err)
	}
	// Clearing an id that was never set is fine too.
	if err := s.SaveGroup(ctx, "30", store.GroupSettings{}); err != nil {
		t.Fatalf("SaveGroup: %v", err)
	}

	snap, _ := s.Load(ctx)
	if len(snap.DefaultCharacters) != 0 {
		t.Errorf("DefaultCharacters = %v, want empty", snap.DefaultCharacters)
	}
}

func TestBadgerStore_PrefixesDoNotBleed(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	// A group id that looks like another mapping's prefix stays in its own mapping.
	_ = s.SaveGroup(ctx, "auto_speech:1", store.GroupSettings{AutoSpeech: true})

	snap, _ := s.Load(ctx)
	if !snap.AutoSpeech["auto_speech:1"] {
		t.Errorf("AutoSpeech = %v", snap.AutoSpeech)
	}
	if len(snap.AutoSpeech) != 1 {
		t.Errorf("AutoSpeech has %d entries, want 1", len(snap.AutoSpeech))
	}
}

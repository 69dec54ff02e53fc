package pg

import (
	"context"
	"encoding/json"
	"os"
	"testing"

	"github.com/nextlevelbuilder/aivoice/internal/store"
)

// Set AIVOICE_TEST_PG_DSN to run against a disposable Postgres database.
func testDSN(t *testing.T) string {
	dsn := os.Getenv("AIVOICE_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("AIVOICE_TEST_PG_DSN not set")
	}
	return dsn
}

func TestPostgresStore_RoundTrip(t *testing.T) {
	s, err := Open(testDSN(t))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()
	ctx := context.Background()

	gid := "test-" + t.Name()
	if err := s.SaveGroup(ctx, gid, store.GroupSettings{DefaultCharacterID: "c7", TextCoSend: true}); err != nil {
		t.Fatalf("SaveGroup: %v", err)
	}
	if err := s.SaveCatalog(ctx, gid, json.RawMessage(`[{"type":"A","characters":[]}]`)); err != nil {
		t.Fatalf("SaveCatalog: %v", err)
	}

	snap, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := snap.Group(gid); got != (store.GroupSettings{DefaultCharacterID: "c7", TextCoSend: true}) {
		t.Errorf("group = %+v", got)
	}
	if len(snap.CharacterCache[gid]) == 0 {
		t.Error("catalog snapshot missing")
	}

	_, _ = s.DB().ExecContext(ctx, `DELETE FROM group_settings WHERE group_id = $1`, gid)
	_, _ = s.DB().ExecContext(ctx, `DELETE FROM character_cache WHERE group_id = $1`, gid)
}

func TestMigrations_Idempotent(t *testing.T) {
	db, err := OpenDB(testDSN(t))
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	defer db.Close()

	if err := MigrateUp(db); err != nil {
		t.Fatalf("first MigrateUp: %v", err)
	}
	if err := MigrateUp(db); err != nil {
		t.Fatalf("second MigrateUp: %v", err)
	}
	v, dirty, err := SchemaVersion(db)
	if err != nil || dirty || v != 1 {
		t.Errorf("version = %d dirty=%v err=%v", v, dirty, err)
	}
}

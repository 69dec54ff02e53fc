// Package sqlstore implements store.SettingsStore over any SQL database that
// supports INSERT ... ON CONFLICT upserts (SQLite and Postgres). Callers own
// schema creation; see the sqlite and pg packages.
package sqlstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/nextlevelbuilder/aivoice/internal/store"
)

// Store is a SQL-backed settings store. Queries are written with "?" and
// rebound for the driver in use.
type Store struct {
	db *sqlx.DB
}

// New wraps an open database whose schema already exists.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle (used by admin commands).
func (s *Store) DB() *sqlx.DB { return s.db }

type groupRow struct {
	GroupID            string  `db:"group_id"`
	DefaultCharacterID *string `db:"default_character_id"`
	AutoSpeech         bool    `db:"auto_speech"`
	TextCoSend         bool    `db:"text_co_send"`
}

type catalogRow struct {
	GroupID string `db:"group_id"`
	Data    []byte `db:"data"`
}

func (s *Store) Load(ctx context.Context) (*store.Snapshot, error) {
	snap := store.NewSnapshot()

	var groups []groupRow
	if err := s.db.SelectContext(ctx, &groups,
		`SELECT group_id, default_character_id, auto_speech, text_co_send FROM group_settings`); err != nil {
		return nil, fmt.Errorf("load group settings: %w", err)
	}
	for _, r := range groups {
		snap.SetGroup(r.GroupID, store.GroupSettings{
			DefaultCharacterID: derefStr(r.DefaultCharacterID),
			AutoSpeech:         r.AutoSpeech,
			TextCoSend:         r.TextCoSend,
		})
	}

	var catalogs []catalogRow
	if err := s.db.SelectContext(ctx, &catalogs, `SELECT group_id, data FROM character_cache`); err != nil {
		return nil, fmt.Errorf("load character cache: %w", err)
	}
	for _, r := range catalogs {
		snap.CharacterCache[r.GroupID] = json.RawMessage(r.Data)
	}
	return snap, nil
}

func (s *Store) SaveGroup(ctx context.Context, groupID string, g store.GroupSettings) error {
	if err := store.ValidateGroupID(groupID); err != nil {
		return err
	}
	q := s.db.Rebind(`INSERT INTO group_settings (group_id, default_character_id, auto_speech, text_co_send, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (group_id) DO UPDATE SET
			default_character_id = excluded.default_character_id,
			auto_speech = excluded.auto_speech,
			text_co_send = excluded.text_co_send,
			updated_at = excluded.updated_at`)
	_, err := s.db.ExecContext(ctx, q, groupID, nilStr(g.DefaultCharacterID), g.AutoSpeech, g.TextCoSend, nowUTC())
	if err != nil {
		return fmt.Errorf("save group %s: %w", groupID, err)
	}
	return nil
}

func (s *Store) SaveCatalog(ctx context.Context, groupID string, data json.RawMessage) error {
	if err := store.ValidateGroupID(groupID); err != nil {
		return err
	}
	if !json.Valid(data) {
		return fmt.Errorf("catalog snapshot for group %s is not valid JSON", groupID)
	}
	q := s.db.Rebind(`INSERT INTO character_cache (group_id, data, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (group_id) DO UPDATE SET
			data = excluded.data,
			updated_at = excluded.updated_at`)
	if _, err := s.db.ExecContext(ctx, q, groupID, string(data), nowUTC()); err != nil {
		return fmt.Errorf("save catalog %s: %w", groupID, err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

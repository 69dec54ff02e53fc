// Package badger is the embedded BadgerDB settings backend. Keys are
// "<mapping>:<groupID>"; values are the raw field (id string, "true"/"false",
// or catalog JSON).
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/nextlevelbuilder/aivoice/internal/store"
)

const (
	prefixDefault = "default_characters:"
	prefixAuto    = "auto_speech:"
	prefixCatalog = "character_cache:"
	prefixCoSend  = "text_co_send:"
)

// Store is a BadgerDB-backed settings store.
type Store struct {
	db  *badgerdb.DB
	log *slog.Logger
}

// Open opens (or creates) the database directory.
func Open(dir string, log *slog.Logger) (*Store, error) {
	db, err := badgerdb.Open(badgerdb.DefaultOptions(dir).WithLoggingLevel(badgerdb.ERROR))
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return New(db, log), nil
}

// New wraps an open database.
func New(db *badgerdb.DB, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{db: db, log: log}
}

func (s *Store) Load(_ context.Context) (*store.Snapshot, error) {
	snap := store.NewSnapshot()
	err := s.db.View(func(txn *badgerdb.Txn) error {
		if err := scanPrefix(txn, prefixDefault, func(gid string, v []byte) {
			snap.DefaultCharacters[gid] = string(v)
		}); err != nil {
			return err
		}
		if err := scanPrefix(txn, prefixAuto, func(gid string, v []byte) {
			snap.AutoSpeech[gid] = s.parseFlag(gid, v)
		}); err != nil {
			return err
		}
		if err := scanPrefix(txn, prefixCoSend, func(gid string, v []byte) {
			snap.TextCoSend[gid] = s.parseFlag(gid, v)
		}); err != nil {
			return err
		}
		return scanPrefix(txn, prefixCatalog, func(gid string, v []byte) {
			snap.CharacterCache[gid] = json.RawMessage(v)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	return snap, nil
}

// scanPrefix calls fn for every key under prefix. The value slice is a copy.
func scanPrefix(txn *badgerdb.Txn, prefix string, fn func(groupID string, v []byte)) error {
	it := txn.NewIterator(badgerdb.DefaultIteratorOptions)
	defer it.Close()

	p := []byte(prefix)
	for it.Seek(p); it.ValidForPrefix(p); it.Next() {
		item := it.Item()
		v, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		fn(strings.TrimPrefix(string(item.Key()), prefix), v)
	}
	return nil
}

func (s *Store) parseFlag(groupID string, v []byte) bool {
	b, err := strconv.ParseBool(string(v))
	if err != nil {
		s.log.Warn("badger: malformed flag", "group", groupID, "value", string(v))
	}
	return b
}

// SaveGroup writes the three settings keys in one transaction.
func (s *Store) SaveGroup(_ context.Context, groupID string, g store.GroupSettings) error {
	if err := store.ValidateGroupID(groupID); err != nil {
		return err
	}
	return s.db.Update(func(txn *badgerdb.Txn) error {
		if g.DefaultCharacterID == "" {
			if err := txn.Delete([]byte(prefixDefault + groupID)); err != nil && !errors.Is(err, badgerdb.ErrKeyNotFound) {
				return err
			}
		} else if err := txn.Set([]byte(prefixDefault+groupID), []byte(g.DefaultCharacterID)); err != nil {
			return err
		}
		if err := txn.Set([]byte(prefixAuto+groupID), []byte(strconv.FormatBool(g.AutoSpeech))); err != nil {
			return err
		}
		return txn.Set([]byte(prefixCoSend+groupID), []byte(strconv.FormatBool(g.TextCoSend)))
	})
}

func (s *Store) SaveCatalog(_ context.Context, groupID string, data json.RawMessage) error {
	if err := store.ValidateGroupID(groupID); err != nil {
		return err
	}
	if !json.Valid(data) {
		return fmt.Errorf("catalog snapshot for group %s is not valid JSON", groupID)
	}
	return s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set([]byte(prefixCatalog+groupID), data)
	})
}

func (s *Store) Close() error {
	return s.db.Close()
}

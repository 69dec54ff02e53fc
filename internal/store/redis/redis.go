// Package redis is the Redis settings backend. Each of the four mappings is a
// hash named "<prefix>:<mapping>" whose fields are group ids.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	goredis "github.com/redis/go-redis/v9"

	"github.com/nextlevelbuilder/aivoice/internal/store"
)

const defaultPrefix = "aivoice"

// Hash names, one per persisted mapping.
const (
	hashDefaultCharacters = "default_characters"
	hashAutoSpeech        = "auto_speech"
	hashCharacterCache    = "character_cache"
	hashTextCoSend        = "text_co_send"
)

// Store is a Redis-backed settings store.
type Store struct {
	rdb    goredis.UniversalClient
	prefix string
}

// Open parses a redis:// URL, connects and pings.
func Open(ctx context.Context, url, prefix string) (*Store, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := goredis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("settings store opened", "backend", "redis", "addr", opts.Addr)
	return New(rdb, prefix), nil
}

// New wraps an existing client.
func New(rdb goredis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Store{rdb: rdb, prefix: prefix}
}

func (s *Store) key(mapping string) string {
	return s.prefix + ":" + mapping
}

func (s *Store) Load(ctx context.Context) (*store.Snapshot, error) {
	snap := store.NewSnapshot()

	defaults, err := s.rdb.HGetAll(ctx, s.key(hashDefaultCharacters)).Result()
	if err != nil {
		return nil, fmt.Errorf("load default characters: %w", err)
	}
	for gid, id := range defaults {
		snap.DefaultCharacters[gid] = id
	}
	if err := s.loadFlags(ctx, hashAutoSpeech, snap.AutoSpeech); err != nil {
		return nil, err
	}
	if err := s.loadFlags(ctx, hashTextCoSend, snap.TextCoSend); err != nil {
		return nil, err
	}
	catalogs, err := s.rdb.HGetAll(ctx, s.key(hashCharacterCache)).Result()
	if err != nil {
		return nil, fmt.Errorf("load character cache: %w", err)
	}
	for gid, data := range catalogs {
		if !json.Valid([]byte(data)) {
			slog.Warn("redis: skipping corrupt catalog snapshot", "group", gid)
			continue
		}
		snap.CharacterCache[gid] = json.RawMessage(data)
	}
	return snap, nil
}

func (s *Store) loadFlags(ctx context.Context, mapping string, dst map[string]bool) error {
	vals, err := s.rdb.HGetAll(ctx, s.key(mapping)).Result()
	if err != nil {
		return fmt.Errorf("load %s: %w", mapping, err)
	}
	for gid, v := range vals {
		b, err := strconv.ParseBool(v)
		if err != nil {
			slog.Warn("redis: skipping malformed flag", "mapping", mapping, "group", gid, "value", v)
			continue
		}
		dst[gid] = b
	}
	return nil
}

// SaveGroup writes the three settings fields in one MULTI/EXEC.
func (s *Store) SaveGroup(ctx context.Context, groupID string, g store.GroupSettings) error {
	if err := store.ValidateGroupID(groupID); err != nil {
		return err
	}
	_, err := s.rdb.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		if g.DefaultCharacterID == "" {
			p.HDel(ctx, s.key(hashDefaultCharacters), groupID)
		} else {
			p.HSet(ctx, s.key(hashDefaultCharacters), groupID, g.DefaultCharacterID)
		}
		p.HSet(ctx, s.key(hashAutoSpeech), groupID, strconv.FormatBool(g.AutoSpeech))
		p.HSet(ctx, s.key(hashTextCoSend), groupID, strconv.FormatBool(g.TextCoSend))
		return nil
	})
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
	if err := s.rdb.HSet(ctx, s.key(hashCharacterCache), groupID, string(data)).Err(); err != nil {
		return fmt.Errorf("save catalog %s: %w", groupID, err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.rdb.Close()
}

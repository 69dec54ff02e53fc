package characters

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/nextlevelbuilder/aivoice/internal/platform"
)

const (
	// DefaultRefreshTimeout bounds one "list characters" call.
	DefaultRefreshTimeout = 8 * time.Second
	// DefaultSize is the number of group catalogs kept in memory.
	DefaultSize = 4096
)

var tracer = otel.Tracer("github.com/nextlevelbuilder/aivoice/internal/characters")

// DefaultLookup reports the default character id configured for a group
// ("" when unset).
type DefaultLookup interface {
	DefaultCharacter(groupID string) string
}

// SnapshotSink receives a copy of every freshly refreshed catalog so it can
// be persisted. Optional.
type SnapshotSink interface {
	SaveCatalog(ctx context.Context, groupID string, data json.RawMessage) error
}

// Config configures a Cache.
type Config struct {
	RefreshTimeout time.Duration
	Size           int
}

// Cache holds the last refreshed catalog per group. Catalogs never expire by
// time; only an explicit Refresh replaces one. When more than Size groups are
// cached the least recently used catalog is dropped and becomes absent again.
type Cache struct {
	lister   platform.CharacterLister
	defaults DefaultLookup
	sink     SnapshotSink
	timeout  time.Duration

	catalogs *lru.Cache[string, Catalog]
	locks    sync.Map // groupID → *sync.Mutex, serializes refreshes per group
}

// New creates a cache backed by lister. defaults supplies each group's
// configured default character.
func New(lister platform.CharacterLister, defaults DefaultLookup, cfg Config) (*Cache, error) {
	if cfg.RefreshTimeout <= 0 {
		cfg.RefreshTimeout = DefaultRefreshTimeout
	}
	if cfg.Size <= 0 {
		cfg.Size = DefaultSize
	}
	catalogs, err := lru.New[string, Catalog](cfg.Size)
	if err != nil {
		return nil, fmt.Errorf("create catalog cache: %w", err)
	}
	return &Cache{
		lister:   lister,
		defaults: defaults,
		timeout:  cfg.RefreshTimeout,
		catalogs: catalogs,
	}, nil
}

// SetSink enables persisting refreshed catalogs.
func (c *Cache) SetSink(sink SnapshotSink) { c.sink = sink }

// Seed installs a catalog without calling the platform, e.g. from the
// persisted snapshot at startup.
func (c *Cache) Seed(groupID string, cat Catalog) {
	c.catalogs.Add(groupID, cat)
}

// Catalog returns the cached catalog for a group. ok is false when the group
// has never been refreshed (or was evicted); an empty catalog is still ok.
func (c *Cache) Catalog(groupID string) (Catalog, bool) {
	return c.catalogs.Get(groupID)
}

// Refresh fetches the group's catalog from the platform and replaces the
// cached one wholesale. Timeouts surface as ErrRequestTimeout, unexpected
// shapes as ErrInvalidResponseFormat.
func (c *Cache) Refresh(ctx context.Context, groupID string) error {
	mu := c.lockFor(groupID)
	mu.Lock()
	defer mu.Unlock()
	return c.refreshLocked(ctx, groupID)
}

// EnsureLoaded refreshes only when no catalog is cached for the group.
func (c *Cache) EnsureLoaded(ctx context.Context, groupID string) error {
	if c.catalogs.Contains(groupID) {
		return nil
	}
	mu := c.lockFor(groupID)
	mu.Lock()
	defer mu.Unlock()
	// Another caller may have loaded it while we waited.
	if c.catalogs.Contains(groupID) {
		return nil
	}
	return c.refreshLocked(ctx, groupID)
}

func (c *Cache) refreshLocked(ctx context.Context, groupID string) error {
	ctx, span := tracer.Start(ctx, "characters.refresh")
	defer span.End()
	span.SetAttributes(attribute.String("group_id", groupID))

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	raw, err := c.lister.ListCharacters(callCtx, groupID)
	if err != nil {
		if !errors.Is(err, platform.ErrRequestTimeout) && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %v", platform.ErrRequestTimeout, err)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("list characters for group %s: %w", groupID, err)
	}

	cat, err := DecodeCatalog(raw)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("list characters for group %s: %w", groupID, err)
	}

	c.catalogs.Add(groupID, cat)
	span.SetAttributes(
		attribute.Int("categories", len(cat)),
		attribute.Int("characters", cat.Count()),
	)
	slog.Debug("characters: catalog refreshed", "group", groupID, "categories", len(cat), "characters", cat.Count())

	if c.sink != nil {
		if data, err := json.Marshal(cat); err != nil {
			slog.Warn("characters: marshal catalog snapshot", "group", groupID, "error", err)
		} else if err := c.sink.SaveCatalog(ctx, groupID, data); err != nil {
			slog.Warn("characters: persist catalog snapshot", "group", groupID, "error", err)
		}
	}
	return nil
}

// Resolve picks the character that speaks for a group: the configured default
// if it is still in the catalog, otherwise the first character of the
// catalog. Fails with ErrNoCharacterAvailable when the catalog is empty or
// absent.
func (c *Cache) Resolve(groupID string) (Character, error) {
	cat, _ := c.catalogs.Get(groupID)
	if c.defaults != nil {
		if ch, ok := cat.FindByID(c.defaults.DefaultCharacter(groupID)); ok {
			return ch, nil
		}
	}
	if ch, ok := cat.First(); ok {
		return ch, nil
	}
	return Character{}, fmt.Errorf("group %s: %w", groupID, platform.ErrNoCharacterAvailable)
}

// DefaultCharacter returns the group's configured default character only when
// it is present in the cached catalog. No fallback.
func (c *Cache) DefaultCharacter(groupID string) (Character, bool) {
	if c.defaults == nil {
		return Character{}, false
	}
	cat, _ := c.catalogs.Get(groupID)
	return cat.FindByID(c.defaults.DefaultCharacter(groupID))
}

// FindByIdentifier looks a character up by id or exact name in the cached
// catalog.
func (c *Cache) FindByIdentifier(groupID, ident string) (Character, bool) {
	cat, _ := c.catalogs.Get(groupID)
	return cat.FindByIdentifier(ident)
}

func (c *Cache) lockFor(groupID string) *sync.Mutex {
	v, _ := c.locks.LoadOrStore(groupID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

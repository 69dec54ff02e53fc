package bus

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// DedupeCache remembers recently seen message ids. OneBot implementations
// resend events after a reconnect, so every inbound id is checked once.
type DedupeCache struct {
	seen *expirable.LRU[string, struct{}]
}

// NewDedupeCache keeps up to maxSize ids for ttl each.
func NewDedupeCache(ttl time.Duration, maxSize int) *DedupeCache {
	if maxSize <= 0 {
		maxSize = 5000
	}
	return &DedupeCache{seen: expirable.NewLRU[string, struct{}](maxSize, nil, ttl)}
}

// IsDuplicate reports whether key was seen within the TTL and records it
// otherwise. Empty keys are never duplicates.
func (d *DedupeCache) IsDuplicate(key string) bool {
	if key == "" {
		return false
	}
	if d.seen.Contains(key) {
		return true
	}
	d.seen.Add(key, struct{}{})
	return false
}

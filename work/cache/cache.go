package cache

import (
	"time"

	"github.com/maypok86/otter/v2"
)

// MappingCache is a bounded in-process cache in front of the stream token
// registry. Mappings are immutable once created, so cached entries can never
// go stale; the TTL only bounds memory held for tokens nobody requests.
type MappingCache struct {
	cache *otter.Cache[string, string]
}

// NewMappingCache creates a MappingCache with the given entry TTL.
func NewMappingCache(duration time.Duration) *MappingCache {
	cache := otter.Must(&otter.Options[string, string]{
		MaximumSize:      10_000,
		ExpiryCalculator: otter.ExpiryWriting[string, string](duration),
	})

	return &MappingCache{cache: cache}
}

// Get returns the provider file id cached for a token, if present.
func (mc *MappingCache) Get(token string) (string, bool) {
	return mc.cache.GetIfPresent(token)
}

// Set caches a token -> provider file id mapping.
func (mc *MappingCache) Set(token, fileID string) {
	mc.cache.Set(token, fileID)
}

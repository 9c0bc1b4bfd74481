package registry

import (
	"errors"
	"fmt"

	"zeex-stream/work/cache"
	"zeex-stream/work/database"
	"zeex-stream/work/logger"
	"zeex-stream/work/token"
)

// ErrNotFound is returned when a token has no registered mapping.
var ErrNotFound = errors.New("stream token not found")

// Registry maps opaque public stream tokens to Telegram file ids. Tokens are
// derived deterministically from the file id, so registration is idempotent
// and the same video always gets the same public link.
type Registry struct {
	db    *database.DB
	cache *cache.MappingCache // nil when caching is disabled
}

// New creates a Registry over the given database. The mapping cache may be
// nil to disable read caching.
func New(db *database.DB, mappingCache *cache.MappingCache) *Registry {
	return &Registry{
		db:    db,
		cache: mappingCache,
	}
}

// Resolve looks up the provider file id for a public stream token.
// Pure lookup, no side effects beyond populating the read cache.
func (r *Registry) Resolve(tok string) (string, error) {
	if r.cache != nil {
		if fileID, ok := r.cache.Get(tok); ok {
			return fileID, nil
		}
	}

	row, err := r.db.GetMappingByToken(tok)
	if err != nil {
		return "", err
	}
	if row == nil {
		return "", ErrNotFound
	}

	if r.cache != nil {
		r.cache.Set(tok, row.ProviderFileID)
	}

	return row.ProviderFileID, nil
}

// GetOrCreate returns the stream token for a provider file id, registering
// the mapping if it does not exist yet. A concurrent duplicate insert is not
// an error; both callers observe the same token.
func (r *Registry) GetOrCreate(fileID string) (string, error) {
	tok, err := token.Derive(fileID)
	if err != nil {
		return "", err
	}

	if err := r.db.InsertMapping(tok, fileID); err != nil {
		return "", fmt.Errorf("failed to register stream mapping: %w", err)
	}

	if r.cache != nil {
		r.cache.Set(tok, fileID)
	}

	logger.Debug("{registry - GetOrCreate} Registered stream token %s...", tok[:8])

	return tok, nil
}

// Stats reports registry database statistics for the admin API.
func (r *Registry) Stats() (map[string]interface{}, error) {
	return r.db.GetStats()
}

// Lookup returns the full mapping row for a token, for the admin API.
func (r *Registry) Lookup(tok string) (*database.StreamMappingRow, error) {
	row, err := r.db.GetMappingByToken(tok)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, ErrNotFound
	}
	return row, nil
}

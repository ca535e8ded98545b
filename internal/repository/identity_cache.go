package repository

import (
	"fmt"
	"sync"

	"github.com/quartzlabs/ownermatch/internal/domain"
)

// CachedIdentityRepository is a read-through cache in front of an
// IdentityMappingRepository. Every user record triggers at least two
// mapping lookups, and many users share a company, so repeat keys are
// common during a run. Mappings are never deleted mid-run, which makes
// them safe to cache without expiry.
type CachedIdentityRepository struct {
	inner domain.IdentityMappingRepository

	mu      sync.RWMutex
	entries map[string]int64
	misses  map[string]struct{}
}

// NewCachedIdentityRepository wraps an identity repository with an in-memory
// cache scoped to one migration run.
func NewCachedIdentityRepository(inner domain.IdentityMappingRepository) *CachedIdentityRepository {
	return &CachedIdentityRepository{
		inner:   inner,
		entries: map[string]int64{},
		misses:  map[string]struct{}{},
	}
}

func cacheKey(entityType domain.EntityType, legacyID string) string {
	return fmt.Sprintf("%s:%s", entityType, legacyID)
}

// Get serves from cache when possible. Negative results are cached too:
// a legacy id that was unmapped at run start stays unmapped unless this
// run's own Put changes that, which invalidates the negative entry.
func (r *CachedIdentityRepository) Get(entityType domain.EntityType, legacyID string) (int64, bool, error) {
	key := cacheKey(entityType, legacyID)

	r.mu.RLock()
	if newID, ok := r.entries[key]; ok {
		r.mu.RUnlock()
		return newID, true, nil
	}
	if _, ok := r.misses[key]; ok {
		r.mu.RUnlock()
		return 0, false, nil
	}
	r.mu.RUnlock()

	newID, ok, err := r.inner.Get(entityType, legacyID)
	if err != nil {
		return 0, false, err
	}

	r.mu.Lock()
	if ok {
		r.entries[key] = newID
	} else {
		r.misses[key] = struct{}{}
	}
	r.mu.Unlock()

	return newID, ok, nil
}

// Put writes through to the underlying repository and, on success, updates
// the cache so later Gets see the new mapping without a round trip.
func (r *CachedIdentityRepository) Put(entityType domain.EntityType, legacyID string, newID int64) error {
	if err := r.inner.Put(entityType, legacyID, newID); err != nil {
		return err
	}

	key := cacheKey(entityType, legacyID)
	r.mu.Lock()
	r.entries[key] = newID
	delete(r.misses, key)
	r.mu.Unlock()

	return nil
}

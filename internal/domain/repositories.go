package domain

import (
	"context"
	"time"
)

// IdentityMappingRepository is the persistent legacy id → new id translation
// table, partitioned by entity type and shared with earlier migration phases.
type IdentityMappingRepository interface {
	// Get returns the mapped new id, or ok=false if the legacy id was
	// never mapped.
	Get(entityType EntityType, legacyID string) (int64, bool, error)
	// Put inserts or confirms a mapping. A different new id for an
	// existing key is ErrMappingConflict, never a silent overwrite.
	Put(entityType EntityType, legacyID string, newID int64) error
}

// RelationshipRepository persists user→business ownership links.
type RelationshipRepository interface {
	Exists(userID, businessID int64) (bool, error)
	// Create is idempotent: creating an existing (user, business) pair is
	// a no-op, enforced by the store's unique constraint.
	Create(rel *Relationship) error
}

// BusinessRepository reads migrated business entities and writes the
// per-business results of reconciliation.
type BusinessRepository interface {
	// ListMigrated returns every business already created in the target
	// system; the match index is built from this once per run.
	ListMigrated() ([]*Business, error)
	// SetOwner points the business entity at its owning user.
	SetOwner(businessID, userID int64) error
	// SetMetadata stores audit provenance (match type, confidence) on the
	// business entity.
	SetMetadata(businessID int64, key, value string) error
}

// RunLockRepository serializes whole migration runs so only one writer
// mutates the mapping table at a time.
type RunLockRepository interface {
	Acquire(ctx context.Context, ttl time.Duration) error
	Release(ctx context.Context) error
}

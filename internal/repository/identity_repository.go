package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/quartzlabs/ownermatch/internal/domain"
)

// PostgresIdentityRepository implements domain.IdentityMappingRepository on
// the identity_mappings table. The table is shared with earlier migration
// phases and treated as append-mostly: rows are inserted or confirmed,
// never overwritten.
type PostgresIdentityRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresIdentityRepository creates a new identity mapping repository.
func NewPostgresIdentityRepository(db *sql.DB, logger *slog.Logger) *PostgresIdentityRepository {
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresIdentityRepository{
		db:     db,
		logger: logger,
	}
}

// Get returns the new-system id mapped to a legacy id, ok=false when the
// legacy id was never mapped.
func (r *PostgresIdentityRepository) Get(entityType domain.EntityType, legacyID string) (int64, bool, error) {
	query := `
		SELECT new_id
		FROM identity_mappings
		WHERE entity_type = $1 AND legacy_id = $2
	`

	var newID int64
	err := r.db.QueryRow(query, string(entityType), legacyID).Scan(&newID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		r.logger.Error("failed to look up identity mapping",
			slog.String("entity_type", string(entityType)),
			slog.String("legacy_id", legacyID),
			slog.String("error", err.Error()),
		)
		return 0, false, fmt.Errorf("failed to look up identity mapping: %w", err)
	}

	return newID, true, nil
}

// Put inserts a mapping or confirms an identical one. An existing mapping
// with a different new id returns domain.ErrMappingConflict; the caller
// must halt the run rather than pick a winner.
func (r *PostgresIdentityRepository) Put(entityType domain.EntityType, legacyID string, newID int64) error {
	query := `
		INSERT INTO identity_mappings (entity_type, legacy_id, new_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (entity_type, legacy_id) DO NOTHING
	`

	result, err := r.db.Exec(query, string(entityType), legacyID, newID)
	if err != nil {
		return fmt.Errorf("failed to insert identity mapping: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows > 0 {
		return nil
	}

	// The key already exists; confirm it maps to the same new id.
	existing, ok, err := r.Get(entityType, legacyID)
	if err != nil {
		return err
	}
	if !ok {
		// Row vanished between insert and read. Retrying the whole Put
		// would be valid, but a concurrent delete during a migration
		// run is itself a consistency violation.
		return fmt.Errorf("identity mapping for (%s, %s) disappeared during put", entityType, legacyID)
	}
	if existing != newID {
		r.logger.Error("conflicting identity mapping",
			slog.String("entity_type", string(entityType)),
			slog.String("legacy_id", legacyID),
			slog.Int64("existing_new_id", existing),
			slog.Int64("claimed_new_id", newID),
		)
		return fmt.Errorf("identity mapping (%s, %s) already maps to %d, refusing %d: %w",
			entityType, legacyID, existing, newID, domain.ErrMappingConflict)
	}

	return nil
}

package repository

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/quartzlabs/ownermatch/internal/domain"
)

// PostgresBusinessRepository implements domain.BusinessRepository against
// the target system's business entities. Reconciliation reads the migrated
// set once to build the match index and writes back the owning user plus
// audit metadata per matched business.
type PostgresBusinessRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresBusinessRepository creates a new business repository.
func NewPostgresBusinessRepository(db *sql.DB, logger *slog.Logger) *PostgresBusinessRepository {
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresBusinessRepository{
		db:     db,
		logger: logger,
	}
}

// ListMigrated returns every business entity already created by the prior
// migration phase, with the fields the match index is built from.
func (r *PostgresBusinessRepository) ListMigrated() ([]*domain.Business, error) {
	query := `
		SELECT id, COALESCE(email, ''), COALESCE(owner_name, '')
		FROM businesses
		ORDER BY id
	`

	rows, err := r.db.Query(query)
	if err != nil {
		r.logger.Error("failed to list migrated businesses",
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("failed to list businesses: %w", err)
	}
	defer rows.Close()

	var businesses []*domain.Business
	for rows.Next() {
		biz := &domain.Business{}
		if err := rows.Scan(&biz.ID, &biz.Email, &biz.OwnerName); err != nil {
			return nil, fmt.Errorf("failed to scan business: %w", err)
		}
		businesses = append(businesses, biz)
	}

	return businesses, rows.Err()
}

// SetOwner points the business entity at its owning user.
func (r *PostgresBusinessRepository) SetOwner(businessID, userID int64) error {
	query := `
		UPDATE businesses
		SET owner_user_id = $1
		WHERE id = $2
	`

	result, err := r.db.Exec(query, userID, businessID)
	if err != nil {
		return fmt.Errorf("failed to set business owner: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("business %d not found", businessID)
	}

	return nil
}

// SetMetadata upserts one audit metadata entry on the business entity.
func (r *PostgresBusinessRepository) SetMetadata(businessID int64, key, value string) error {
	query := `
		INSERT INTO entity_metadata (entity_id, meta_key, meta_value)
		VALUES ($1, $2, $3)
		ON CONFLICT (entity_id, meta_key) DO UPDATE SET meta_value = EXCLUDED.meta_value
	`

	if _, err := r.db.Exec(query, businessID, key, value); err != nil {
		r.logger.Error("failed to set entity metadata",
			slog.Int64("entity_id", businessID),
			slog.String("meta_key", key),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to set entity metadata: %w", err)
	}

	return nil
}

package repository

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/quartzlabs/ownermatch/internal/domain"
)

// PostgresRelationshipRepository implements domain.RelationshipRepository.
// The business_relationships table carries a unique constraint on
// (user_id, business_id); inserts hitting it are no-ops, which is what
// makes reconcile idempotent even across parallel workers.
type PostgresRelationshipRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresRelationshipRepository creates a new relationship repository.
func NewPostgresRelationshipRepository(db *sql.DB, logger *slog.Logger) *PostgresRelationshipRepository {
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresRelationshipRepository{
		db:     db,
		logger: logger,
	}
}

// Exists reports whether a relationship already links the user and business.
func (r *PostgresRelationshipRepository) Exists(userID, businessID int64) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM business_relationships
			WHERE user_id = $1 AND business_id = $2
		)
	`

	var exists bool
	if err := r.db.QueryRow(query, userID, businessID).Scan(&exists); err != nil {
		r.logger.Error("failed to check relationship existence",
			slog.Int64("user_id", userID),
			slog.Int64("business_id", businessID),
			slog.String("error", err.Error()),
		)
		return false, fmt.Errorf("failed to check relationship: %w", err)
	}

	return exists, nil
}

// Create inserts the relationship. Duplicate pairs are swallowed by the
// unique constraint and reported as success.
func (r *PostgresRelationshipRepository) Create(rel *domain.Relationship) error {
	query := `
		INSERT INTO business_relationships (user_id, business_id, role, status, match_type, match_confidence)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, business_id) DO NOTHING
	`

	_, err := r.db.Exec(query,
		rel.UserID,
		rel.BusinessID,
		rel.Role,
		rel.Status,
		string(rel.MatchType),
		rel.MatchConfidence,
	)
	if err != nil {
		r.logger.Error("failed to create relationship",
			slog.Int64("user_id", rel.UserID),
			slog.Int64("business_id", rel.BusinessID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to create relationship: %w", err)
	}

	return nil
}

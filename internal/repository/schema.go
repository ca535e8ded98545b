package repository

import (
	"database/sql"
	"fmt"
	"log/slog"
)

// EnsureSchema creates the tables this engine owns if they do not exist.
// The businesses table itself belongs to the prior migration phase that
// created the entities; only the columns reconcile writes are ensured here.
func EnsureSchema(db *sql.DB, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	statements := []string{
		`CREATE TABLE IF NOT EXISTS identity_mappings (
			entity_type VARCHAR(16) NOT NULL,
			legacy_id   VARCHAR(64) NOT NULL,
			new_id      BIGINT NOT NULL,
			created_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (entity_type, legacy_id)
		)`,
		`CREATE TABLE IF NOT EXISTS business_relationships (
			id               BIGSERIAL PRIMARY KEY,
			user_id          BIGINT NOT NULL,
			business_id      BIGINT NOT NULL,
			role             VARCHAR(32) NOT NULL,
			status           VARCHAR(32) NOT NULL,
			match_type       VARCHAR(32),
			match_confidence INT,
			created_at       TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (user_id, business_id)
		)`,
		`CREATE TABLE IF NOT EXISTS entity_metadata (
			entity_id  BIGINT NOT NULL,
			meta_key   VARCHAR(128) NOT NULL,
			meta_value TEXT,
			PRIMARY KEY (entity_id, meta_key)
		)`,
		`ALTER TABLE businesses ADD COLUMN IF NOT EXISTS owner_user_id BIGINT`,
	}

	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}

	logger.Info("database schema ensured")
	return nil
}

package store

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/quartzlabs/ownermatch/internal/normalize"
)

// LoadManualMap reads an operator-supplied override file mapping emails to
// business ids. Two-column CSV (email, business_id), header row skipped.
// Loaded once at startup and immutable for the run.
func LoadManualMap(path string, logger *slog.Logger) (map[string]int64, error) {
	if logger == nil {
		logger = slog.Default()
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open manual mapping file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse manual mapping file: %w", err)
	}

	mapping := make(map[string]int64)
	for i, row := range rows {
		if i == 0 {
			// Header row.
			continue
		}
		if len(row) < 2 {
			logger.Warn("skipping malformed manual mapping row",
				slog.Int("line", i+1),
				slog.Int("columns", len(row)),
			)
			continue
		}

		email, ok := normalize.Email(row[0])
		if !ok {
			logger.Warn("skipping manual mapping row with invalid email",
				slog.Int("line", i+1),
				slog.String("email", row[0]),
			)
			continue
		}

		businessID, err := strconv.ParseInt(row[1], 10, 64)
		if err != nil {
			logger.Warn("skipping manual mapping row with invalid business id",
				slog.Int("line", i+1),
				slog.String("business_id", row[1]),
			)
			continue
		}

		mapping[email] = businessID
	}

	logger.Info("manual mapping loaded",
		slog.String("path", path),
		slog.Int("entries", len(mapping)),
	)
	return mapping, nil
}

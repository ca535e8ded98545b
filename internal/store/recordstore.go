package store

import (
	"log/slog"

	"github.com/quartzlabs/ownermatch/internal/domain"
	"github.com/quartzlabs/ownermatch/internal/normalize"
)

// RecordStore holds the parsed legacy export in memory and exposes O(1)
// lookup by legacy id plus three derived keys: normalized email, normalized
// full name, and non-free email domain. Records with absent or malformed
// key fields are simply not indexed under that key.
type RecordStore struct {
	records    []*domain.LegacyRecord
	byLegacyID map[string]*domain.LegacyRecord
	byEmail    map[string]*domain.LegacyRecord
	byName     map[string]*domain.LegacyRecord
	byDomain   map[string][]*domain.LegacyRecord
	logger     *slog.Logger
}

// NewRecordStore creates an empty store.
func NewRecordStore(logger *slog.Logger) *RecordStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &RecordStore{
		byLegacyID: map[string]*domain.LegacyRecord{},
		byEmail:    map[string]*domain.LegacyRecord{},
		byName:     map[string]*domain.LegacyRecord{},
		byDomain:   map[string][]*domain.LegacyRecord{},
		logger:     logger,
	}
}

// Load builds all four indices. On key collisions the first record wins;
// the legacy export has the same behavior and later records with a shared
// email or display name end up in manual review instead of guessing.
func (s *RecordStore) Load(records []*domain.LegacyRecord) {
	for _, rec := range records {
		s.records = append(s.records, rec)

		if rec.LegacyID != "" {
			if _, exists := s.byLegacyID[rec.LegacyID]; !exists {
				s.byLegacyID[rec.LegacyID] = rec
			} else {
				s.logger.Warn("duplicate legacy id in export",
					slog.String("legacy_id", rec.LegacyID),
				)
			}
		}

		if email, ok := rec.Email(); ok {
			if _, exists := s.byEmail[email]; !exists {
				s.byEmail[email] = rec
			}
			if dom, ok := normalize.Domain(email); ok {
				s.byDomain[dom] = append(s.byDomain[dom], rec)
			}
		}

		if name, ok := rec.FullName(); ok {
			key := normalize.Name(name)
			if _, exists := s.byName[key]; !exists {
				s.byName[key] = rec
			}
		}
	}

	s.logger.Info("record store loaded",
		slog.Int("records", len(s.records)),
		slog.Int("indexed_emails", len(s.byEmail)),
		slog.Int("indexed_names", len(s.byName)),
		slog.Int("indexed_domains", len(s.byDomain)),
	)
}

// All returns every loaded record in load order.
func (s *RecordStore) All() []*domain.LegacyRecord {
	return s.records
}

// Users returns the loaded records of type user, in load order.
func (s *RecordStore) Users() []*domain.LegacyRecord {
	out := make([]*domain.LegacyRecord, 0, len(s.records))
	for _, rec := range s.records {
		if rec.EntityType == domain.EntityUser {
			out = append(out, rec)
		}
	}
	return out
}

// FindByLegacyID looks a record up by its legacy identifier.
func (s *RecordStore) FindByLegacyID(id string) (*domain.LegacyRecord, bool) {
	rec, ok := s.byLegacyID[id]
	return rec, ok
}

// FindByEmail looks a record up by normalized email.
func (s *RecordStore) FindByEmail(email string) (*domain.LegacyRecord, bool) {
	key, ok := normalize.Email(email)
	if !ok {
		return nil, false
	}
	rec, ok := s.byEmail[key]
	return rec, ok
}

// FindByName looks a record up by normalized full name. Exact match on the
// normalized key, never fuzzy.
func (s *RecordStore) FindByName(fullName string) (*domain.LegacyRecord, bool) {
	rec, ok := s.byName[normalize.Name(fullName)]
	return rec, ok
}

// FindByDomain returns every record sharing a non-free email domain. The
// domain strategy only accepts the result when it holds exactly one record.
func (s *RecordStore) FindByDomain(dom string) []*domain.LegacyRecord {
	if normalize.IsFreeDomain(dom) {
		return nil
	}
	return s.byDomain[dom]
}

// Len returns the number of loaded records.
func (s *RecordStore) Len() int {
	return len(s.records)
}

package test

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/quartzlabs/ownermatch/internal/audit"
	"github.com/quartzlabs/ownermatch/internal/domain"
	"github.com/quartzlabs/ownermatch/internal/infrastructure/logger"
	"github.com/quartzlabs/ownermatch/internal/service"
	"github.com/quartzlabs/ownermatch/internal/store"
	"github.com/quartzlabs/ownermatch/internal/worker"
)

// PipelineHelper wires the full reconciliation pipeline against in-memory
// repositories, so end-to-end runs need no database.
type PipelineHelper struct {
	Identity      domain.IdentityMappingRepository
	Relationships *MemRelationshipRepo
	Businesses    *MemBusinessRepo
	Stats         *domain.MigrationStats
	Report        *audit.UnmatchedReport
	Service       *service.ReconcileService
	Runner        *worker.BatchRunner
}

// PipelineOptions controls the run under test.
type PipelineOptions struct {
	DryRun  bool
	Filter  service.StrategyFilter
	Workers int
	Manual  map[string]int64
}

func NewPipeline(t *testing.T, identity *MemIdentityRepo, businesses []*domain.Business, opts PipelineOptions) *PipelineHelper {
	t.Helper()
	return NewPipelineWithIdentity(t, identity, businesses, opts)
}

// NewPipelineWithIdentity accepts any identity mapping implementation, for
// tests that need to misbehave on lookups.
func NewPipelineWithIdentity(t *testing.T, identity domain.IdentityMappingRepository, businesses []*domain.Business, opts PipelineOptions) *PipelineHelper {
	t.Helper()
	log := logger.NewLogger("error")

	report, err := audit.OpenUnmatchedReport(filepath.Join(t.TempDir(), "unmatched.csv"))
	if err != nil {
		t.Fatalf("open report: %v", err)
	}
	t.Cleanup(func() { report.Close() })

	rels := NewMemRelationshipRepo()
	biz := NewMemBusinessRepo(businesses)
	stats := domain.NewMigrationStats()

	index := store.BuildBusinessIndex(businesses, log)
	matcher := service.NewMatchService(identity, index, opts.Manual, log)
	svc := service.NewReconcileService(
		matcher, identity, rels, biz, stats,
		audit.NewLogger(log), report, log,
		service.ReconcileConfig{DryRun: opts.DryRun, Filter: opts.Filter},
	)

	return &PipelineHelper{
		Identity:      identity,
		Relationships: rels,
		Businesses:    biz,
		Stats:         stats,
		Report:        report,
		Service:       svc,
		Runner:        worker.NewBatchRunner(svc, log, opts.Workers),
	}
}

// WriteExport writes a legacy export fixture to a temp file and returns its
// path.
func WriteExport(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "export.json")
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatalf("write export fixture: %v", err)
	}
	return path
}

// MemIdentityRepo is an in-memory identity mapping table with the same
// insert-or-confirm contract as the Postgres implementation.
type MemIdentityRepo struct {
	mu      sync.Mutex
	entries map[string]int64
}

func NewMemIdentityRepo() *MemIdentityRepo {
	return &MemIdentityRepo{entries: map[string]int64{}}
}

func (m *MemIdentityRepo) key(et domain.EntityType, legacyID string) string {
	return fmt.Sprintf("%s:%s", et, legacyID)
}

// Seed installs a mapping without going through Put's conflict check.
func (m *MemIdentityRepo) Seed(et domain.EntityType, legacyID string, newID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[m.key(et, legacyID)] = newID
}

func (m *MemIdentityRepo) Get(et domain.EntityType, legacyID string) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.entries[m.key(et, legacyID)]
	return id, ok, nil
}

func (m *MemIdentityRepo) Put(et domain.EntityType, legacyID string, newID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := m.key(et, legacyID)
	if existing, ok := m.entries[k]; ok {
		if existing != newID {
			return fmt.Errorf("(%s, %s) already maps to %d, refusing %d: %w",
				et, legacyID, existing, newID, domain.ErrMappingConflict)
		}
		return nil
	}
	m.entries[k] = newID
	return nil
}

// MemRelationshipRepo mimics the unique (user_id, business_id) constraint.
type MemRelationshipRepo struct {
	mu          sync.Mutex
	rels        map[string]*domain.Relationship
	CreateCalls int
}

func NewMemRelationshipRepo() *MemRelationshipRepo {
	return &MemRelationshipRepo{rels: map[string]*domain.Relationship{}}
}

func (m *MemRelationshipRepo) key(userID, businessID int64) string {
	return fmt.Sprintf("%d:%d", userID, businessID)
}

func (m *MemRelationshipRepo) Exists(userID, businessID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.rels[m.key(userID, businessID)]
	return ok, nil
}

func (m *MemRelationshipRepo) Create(rel *domain.Relationship) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CreateCalls++
	k := m.key(rel.UserID, rel.BusinessID)
	if _, ok := m.rels[k]; ok {
		return nil
	}
	m.rels[k] = rel
	return nil
}

func (m *MemRelationshipRepo) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rels)
}

func (m *MemRelationshipRepo) Get(userID, businessID int64) (*domain.Relationship, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rel, ok := m.rels[m.key(userID, businessID)]
	return rel, ok
}

// MemBusinessRepo serves a fixed set of migrated businesses and records
// owner and metadata writes.
type MemBusinessRepo struct {
	mu         sync.Mutex
	businesses []*domain.Business
	Owners     map[int64]int64
	Metadata   map[string]string
}

func NewMemBusinessRepo(businesses []*domain.Business) *MemBusinessRepo {
	return &MemBusinessRepo{
		businesses: businesses,
		Owners:     map[int64]int64{},
		Metadata:   map[string]string{},
	}
}

func (m *MemBusinessRepo) ListMigrated() ([]*domain.Business, error) {
	return m.businesses, nil
}

func (m *MemBusinessRepo) SetOwner(businessID, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Owners[businessID] = userID
	return nil
}

func (m *MemBusinessRepo) SetMetadata(businessID int64, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Metadata[fmt.Sprintf("%d:%s", businessID, key)] = value
	return nil
}

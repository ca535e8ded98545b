package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/quartzlabs/ownermatch/internal/audit"
	"github.com/quartzlabs/ownermatch/internal/domain"
	"github.com/quartzlabs/ownermatch/internal/store"
)

// In-memory fakes implementing the domain repository interfaces.

type memIdentityRepo struct {
	mu      sync.Mutex
	entries map[string]int64
}

func newMemIdentityRepo() *memIdentityRepo {
	return &memIdentityRepo{entries: map[string]int64{}}
}

func identityKey(et domain.EntityType, legacyID string) string {
	return fmt.Sprintf("%s:%s", et, legacyID)
}

func (m *memIdentityRepo) Get(et domain.EntityType, legacyID string) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.entries[identityKey(et, legacyID)]
	return id, ok, nil
}

func (m *memIdentityRepo) Put(et domain.EntityType, legacyID string, newID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := identityKey(et, legacyID)
	if existing, ok := m.entries[key]; ok {
		if existing != newID {
			return fmt.Errorf("(%s, %s) already maps to %d, refusing %d: %w",
				et, legacyID, existing, newID, domain.ErrMappingConflict)
		}
		return nil
	}
	m.entries[key] = newID
	return nil
}

func (m *memIdentityRepo) seed(et domain.EntityType, legacyID string, newID int64) {
	m.entries[identityKey(et, legacyID)] = newID
}

type memRelationshipRepo struct {
	mu          sync.Mutex
	rels        map[string]*domain.Relationship
	createCalls int
}

func newMemRelationshipRepo() *memRelationshipRepo {
	return &memRelationshipRepo{rels: map[string]*domain.Relationship{}}
}

func relKey(userID, businessID int64) string {
	return fmt.Sprintf("%d:%d", userID, businessID)
}

func (m *memRelationshipRepo) Exists(userID, businessID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.rels[relKey(userID, businessID)]
	return ok, nil
}

func (m *memRelationshipRepo) Create(rel *domain.Relationship) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createCalls++
	key := relKey(rel.UserID, rel.BusinessID)
	if _, ok := m.rels[key]; ok {
		// Unique constraint: duplicate insert is a no-op.
		return nil
	}
	m.rels[key] = rel
	return nil
}

type memBusinessRepo struct {
	mu         sync.Mutex
	businesses []*domain.Business
	owners     map[int64]int64
	metadata   map[string]string
	ownerErr   error
}

func newMemBusinessRepo(businesses ...*domain.Business) *memBusinessRepo {
	return &memBusinessRepo{
		businesses: businesses,
		owners:     map[int64]int64{},
		metadata:   map[string]string{},
	}
}

func (m *memBusinessRepo) ListMigrated() ([]*domain.Business, error) {
	return m.businesses, nil
}

func (m *memBusinessRepo) SetOwner(businessID, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ownerErr != nil {
		return m.ownerErr
	}
	m.owners[businessID] = userID
	return nil
}

func (m *memBusinessRepo) SetMetadata(businessID int64, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metadata[fmt.Sprintf("%d:%s", businessID, key)] = value
	return nil
}

type testEngine struct {
	service  *ReconcileService
	identity *memIdentityRepo
	rels     *memRelationshipRepo
	biz      *memBusinessRepo
	stats    *domain.MigrationStats
}

func newTestEngine(t *testing.T, cfg ReconcileConfig, identity *memIdentityRepo, biz *memBusinessRepo, manual map[string]int64) *testEngine {
	t.Helper()

	businesses, err := biz.ListMigrated()
	if err != nil {
		t.Fatalf("list businesses: %v", err)
	}
	index := store.BuildBusinessIndex(businesses, nil)
	matcher := NewMatchService(identity, index, manual, nil)
	rels := newMemRelationshipRepo()
	stats := domain.NewMigrationStats()

	svc := NewReconcileService(
		matcher, identity, rels, biz, stats,
		audit.NewLogger(nil), nil, nil, cfg,
	)
	return &testEngine{service: svc, identity: identity, rels: rels, biz: biz, stats: stats}
}

func record(legacyID, email, first, last, companyID string) *domain.LegacyRecord {
	fields := map[string]string{}
	if email != "" {
		fields[domain.FieldEmail] = email
	}
	if first != "" {
		fields[domain.FieldFirstName] = first
	}
	if last != "" {
		fields[domain.FieldLastName] = last
	}
	if companyID != "" {
		fields[domain.FieldCompanyLegacyID] = companyID
	}
	return &domain.LegacyRecord{LegacyID: legacyID, EntityType: domain.EntityUser, Fields: fields}
}

func TestReconcileExactIDMapping(t *testing.T) {
	identity := newMemIdentityRepo()
	identity.seed(domain.EntityUser, "u1", 5)
	identity.seed(domain.EntityBusiness, "c1", 42)

	eng := newTestEngine(t, ReconcileConfig{}, identity, newMemBusinessRepo(), nil)

	out := eng.service.Reconcile(context.Background(), record("u1", "jane@acme.org", "Jane", "Doe", "c1"))
	if out.Status != domain.OutcomeMatched {
		t.Fatalf("expected matched, got %s (%v)", out.Status, out.Err)
	}
	if out.Candidate.Strategy != domain.StrategyExactID || out.Candidate.Confidence != 100 {
		t.Fatalf("expected exact_id @100, got %s @%d", out.Candidate.Strategy, out.Candidate.Confidence)
	}
	if out.Candidate.BusinessID != 42 {
		t.Fatalf("expected business 42, got %d", out.Candidate.BusinessID)
	}

	snap := eng.stats.Snapshot()
	if snap.ByType[domain.StrategyExactID] != 1 || snap.Attempted != 1 {
		t.Fatalf("unexpected stats: %+v", snap)
	}
}

func TestReconcileFallsBackToEmail(t *testing.T) {
	identity := newMemIdentityRepo()
	identity.seed(domain.EntityUser, "u1", 5)
	// No mapping for c1; the email index has the business.
	biz := newMemBusinessRepo(&domain.Business{ID: 77, Email: "jane@acme.org", OwnerName: "Someone Else"})

	eng := newTestEngine(t, ReconcileConfig{DryRun: false}, identity, biz, nil)

	out := eng.service.Reconcile(context.Background(), record("u1", "jane@acme.org", "Jane", "Doe", "c1"))
	if out.Status != domain.OutcomeMatched {
		t.Fatalf("expected matched, got %s (%v)", out.Status, out.Err)
	}
	if out.Candidate.Strategy != domain.StrategyEmail || out.Candidate.Confidence != 90 {
		t.Fatalf("expected email @90, got %s @%d", out.Candidate.Strategy, out.Candidate.Confidence)
	}
	if out.Candidate.BusinessID != 77 {
		t.Fatalf("expected business 77, got %d", out.Candidate.BusinessID)
	}

	// The heuristic resolution is written back as an exact mapping.
	if newID, ok, _ := identity.Get(domain.EntityBusiness, "c1"); !ok || newID != 77 {
		t.Fatalf("expected (business, c1) -> 77 written back, got %d (ok=%v)", newID, ok)
	}
	if eng.biz.owners[77] != 5 {
		t.Fatalf("expected owner 5 on business 77, got %d", eng.biz.owners[77])
	}
	if eng.biz.metadata["77:migration_match_type"] != "email" {
		t.Fatalf("expected match-type metadata, got %v", eng.biz.metadata)
	}
}

func TestReconcileUnmatchedRecord(t *testing.T) {
	identity := newMemIdentityRepo()
	identity.seed(domain.EntityUser, "u1", 5)

	eng := newTestEngine(t, ReconcileConfig{}, identity, newMemBusinessRepo(), nil)

	out := eng.service.Reconcile(context.Background(), record("u1", "bob@freemail", "Bob", "Smith", ""))
	if out.Status != domain.OutcomeUnmatched {
		t.Fatalf("expected unmatched, got %s (%v)", out.Status, out.Err)
	}

	snap := eng.stats.Snapshot()
	if snap.NoMatches != 1 {
		t.Fatalf("expected no_matches=1, got %d", snap.NoMatches)
	}
	unmatched := eng.service.Unmatched()
	if len(unmatched) != 1 || unmatched[0].Name != "Bob Smith" {
		t.Fatalf("expected Bob Smith in the unmatched list, got %v", unmatched)
	}
}

func TestReconcileUnmatchedAppendsReport(t *testing.T) {
	identity := newMemIdentityRepo()
	identity.seed(domain.EntityUser, "u1", 5)

	report, err := audit.OpenUnmatchedReport(filepath.Join(t.TempDir(), "unmatched.csv"))
	if err != nil {
		t.Fatalf("open report: %v", err)
	}
	defer report.Close()

	index := store.BuildBusinessIndex(nil, nil)
	matcher := NewMatchService(identity, index, nil, nil)
	svc := NewReconcileService(
		matcher, identity, newMemRelationshipRepo(), newMemBusinessRepo(),
		domain.NewMigrationStats(), audit.NewLogger(nil), report, nil, ReconcileConfig{},
	)

	out := svc.Reconcile(context.Background(), record("u1", "bob@freemail", "Bob", "Smith", ""))
	if out.Status != domain.OutcomeUnmatched {
		t.Fatalf("expected unmatched, got %s", out.Status)
	}
	if len(svc.Unmatched()) != 1 {
		t.Fatalf("expected one report entry, got %d", len(svc.Unmatched()))
	}
}

func TestReconcileAmbiguousDomainIsUnmatchedNotError(t *testing.T) {
	identity := newMemIdentityRepo()
	identity.seed(domain.EntityUser, "u1", 5)
	biz := newMemBusinessRepo(
		&domain.Business{ID: 1, Email: "a@acme.org", OwnerName: "A"},
		&domain.Business{ID: 2, Email: "b@acme.org", OwnerName: "B"},
	)

	eng := newTestEngine(t, ReconcileConfig{}, identity, biz, nil)

	out := eng.service.Reconcile(context.Background(), record("u1", "carol@acme.org", "Carol", "King", ""))
	if out.Status != domain.OutcomeUnmatched {
		t.Fatalf("expected unmatched for ambiguous domain, got %s (%v)", out.Status, out.Err)
	}
	if snap := eng.stats.Snapshot(); snap.Errors != 0 {
		t.Fatalf("ambiguous domain must not count as error, got %d", snap.Errors)
	}
}

func TestReconcileMissingLegacyID(t *testing.T) {
	eng := newTestEngine(t, ReconcileConfig{}, newMemIdentityRepo(), newMemBusinessRepo(), nil)

	out := eng.service.Reconcile(context.Background(), record("", "jane@acme.org", "Jane", "Doe", ""))
	if out.Status != domain.OutcomeErrored || !errors.Is(out.Err, domain.ErrMissingLegacyID) {
		t.Fatalf("expected missing-legacy-id error, got %s (%v)", out.Status, out.Err)
	}
	if snap := eng.stats.Snapshot(); snap.Errors != 1 {
		t.Fatalf("expected errors=1, got %d", snap.Errors)
	}
}

func TestReconcileUserNotMigrated(t *testing.T) {
	eng := newTestEngine(t, ReconcileConfig{}, newMemIdentityRepo(), newMemBusinessRepo(), nil)

	out := eng.service.Reconcile(context.Background(), record("u1", "jane@acme.org", "Jane", "Doe", ""))
	if out.Status != domain.OutcomeErrored || !errors.Is(out.Err, domain.ErrUserNotMigrated) {
		t.Fatalf("expected user-not-migrated error, got %s (%v)", out.Status, out.Err)
	}
}

func TestReconcileIdempotence(t *testing.T) {
	identity := newMemIdentityRepo()
	identity.seed(domain.EntityUser, "u1", 5)
	identity.seed(domain.EntityBusiness, "c1", 42)

	eng := newTestEngine(t, ReconcileConfig{}, identity, newMemBusinessRepo(), nil)
	rec := record("u1", "jane@acme.org", "Jane", "Doe", "c1")

	first := eng.service.Reconcile(context.Background(), rec)
	second := eng.service.Reconcile(context.Background(), rec)

	if first.Status != domain.OutcomeMatched || second.Status != domain.OutcomeMatched {
		t.Fatalf("expected both runs matched, got %s then %s", first.Status, second.Status)
	}
	// The second pass sees the existing relationship and writes nothing.
	if eng.rels.createCalls != 1 {
		t.Fatalf("expected exactly 1 create call, got %d", eng.rels.createCalls)
	}
	if len(eng.rels.rels) != 1 {
		t.Fatalf("expected exactly 1 relationship, got %d", len(eng.rels.rels))
	}
}

func TestReconcileDryRunSkipsWrites(t *testing.T) {
	identity := newMemIdentityRepo()
	identity.seed(domain.EntityUser, "u1", 5)
	identity.seed(domain.EntityBusiness, "c1", 42)

	eng := newTestEngine(t, ReconcileConfig{DryRun: true}, identity, newMemBusinessRepo(), nil)

	out := eng.service.Reconcile(context.Background(), record("u1", "jane@acme.org", "Jane", "Doe", "c1"))
	if out.Status != domain.OutcomeMatched {
		t.Fatalf("expected matched in dry-run, got %s", out.Status)
	}
	if eng.rels.createCalls != 0 {
		t.Fatalf("dry-run must not create relationships, got %d calls", eng.rels.createCalls)
	}
	if len(eng.biz.owners) != 0 || len(eng.biz.metadata) != 0 {
		t.Fatal("dry-run must not write business entities")
	}
	// Matched is still counted so the operator can review the breakdown.
	if snap := eng.stats.Snapshot(); snap.ByType[domain.StrategyExactID] != 1 {
		t.Fatalf("expected dry-run stats, got %+v", snap)
	}
}

func TestReconcileLowConfidenceStillApplied(t *testing.T) {
	identity := newMemIdentityRepo()
	identity.seed(domain.EntityUser, "u1", 5)
	biz := newMemBusinessRepo(&domain.Business{ID: 9, Email: "info@widgets.io", OwnerName: "W"})

	eng := newTestEngine(t, ReconcileConfig{}, identity, biz, nil)

	// Only the domain strategy (confidence 50) can place this record.
	out := eng.service.Reconcile(context.Background(), record("u1", "dev@widgets.io", "Jane", "Doe", ""))
	if out.Status != domain.OutcomeMatched || out.Candidate.Strategy != domain.StrategyDomain {
		t.Fatalf("expected domain match, got %s (%v)", out.Status, out.Err)
	}
	if eng.rels.createCalls != 1 {
		t.Fatal("low-confidence matches are applied, not blocked")
	}
}

// hiddenCompanyLookup hides company mappings from Get while keeping Put's
// conflict detection, reproducing a concurrent writer landing between this
// worker's lookup and its write-back.
type hiddenCompanyLookup struct {
	*memIdentityRepo
}

func (h *hiddenCompanyLookup) Get(et domain.EntityType, legacyID string) (int64, bool, error) {
	if et == domain.EntityBusiness {
		return 0, false, nil
	}
	return h.memIdentityRepo.Get(et, legacyID)
}

func TestReconcileHeuristicWriteBackConflictIsPerRecord(t *testing.T) {
	inner := newMemIdentityRepo()
	inner.seed(domain.EntityUser, "u1", 5)
	// The table already maps c1 elsewhere; the hidden lookup lets the
	// email strategy resolve business 77 and the write-back collide.
	inner.seed(domain.EntityBusiness, "c1", 42)
	identity := &hiddenCompanyLookup{memIdentityRepo: inner}

	biz := newMemBusinessRepo(&domain.Business{ID: 77, Email: "jane@acme.org"})
	index := store.BuildBusinessIndex([]*domain.Business{{ID: 77, Email: "jane@acme.org"}}, nil)
	matcher := NewMatchService(identity, index, nil, nil)
	stats := domain.NewMigrationStats()
	svc := NewReconcileService(
		matcher, identity, newMemRelationshipRepo(), biz, stats,
		audit.NewLogger(nil), nil, nil, ReconcileConfig{},
	)

	out := svc.Reconcile(context.Background(), record("u1", "jane@acme.org", "Jane", "Doe", "c1"))
	if out.Status != domain.OutcomeErrored {
		t.Fatalf("expected errored, got %s", out.Status)
	}
	if !errors.Is(out.Err, domain.ErrResolutionConflict) {
		t.Fatalf("expected resolution conflict, got %v", out.Err)
	}
	// A conflicting guess must not halt the run.
	if errors.Is(out.Err, domain.ErrMappingConflict) {
		t.Fatalf("heuristic conflict must not classify as fatal: %v", out.Err)
	}
	if snap := stats.Snapshot(); snap.Errors != 1 {
		t.Fatalf("expected errors=1, got %d", snap.Errors)
	}
}

func TestReconcileManualOverrideConflictStaysFatal(t *testing.T) {
	inner := newMemIdentityRepo()
	inner.seed(domain.EntityUser, "u1", 5)
	inner.seed(domain.EntityBusiness, "c1", 42)
	identity := &hiddenCompanyLookup{memIdentityRepo: inner}

	manual := map[string]int64{"jane@acme.org": 13}
	index := store.BuildBusinessIndex(nil, nil)
	matcher := NewMatchService(identity, index, manual, nil)
	svc := NewReconcileService(
		matcher, identity, newMemRelationshipRepo(), newMemBusinessRepo(),
		domain.NewMigrationStats(), audit.NewLogger(nil), nil, nil, ReconcileConfig{},
	)

	// The operator's override contradicts the recorded mapping: recorded
	// truth disagrees with itself, which only a human may resolve.
	out := svc.Reconcile(context.Background(), record("u1", "jane@acme.org", "Jane", "Doe", "c1"))
	if out.Status != domain.OutcomeErrored || !errors.Is(out.Err, domain.ErrMappingConflict) {
		t.Fatalf("expected fatal mapping conflict, got %s (%v)", out.Status, out.Err)
	}
}

func TestReconcileStoreWriteFailureIsPerRecord(t *testing.T) {
	identity := newMemIdentityRepo()
	identity.seed(domain.EntityUser, "u1", 5)
	identity.seed(domain.EntityBusiness, "c1", 42)
	biz := newMemBusinessRepo()
	biz.ownerErr = errors.New("connection reset")

	eng := newTestEngine(t, ReconcileConfig{}, identity, biz, nil)

	out := eng.service.Reconcile(context.Background(), record("u1", "jane@acme.org", "Jane", "Doe", "c1"))
	if out.Status != domain.OutcomeErrored {
		t.Fatalf("expected errored, got %s", out.Status)
	}
	if errors.Is(out.Err, domain.ErrMappingConflict) {
		t.Fatal("store failure must not classify as mapping conflict")
	}
	if snap := eng.stats.Snapshot(); snap.Errors != 1 {
		t.Fatalf("expected errors=1, got %d", snap.Errors)
	}
}

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/quartzlabs/ownermatch/internal/audit"
	"github.com/quartzlabs/ownermatch/internal/domain"
	"github.com/quartzlabs/ownermatch/internal/observability/metrics"
	"github.com/quartzlabs/ownermatch/internal/reliability/retry"
)

// Metadata keys written onto the business entity for audit provenance.
const (
	metaMatchType       = "migration_match_type"
	metaMatchConfidence = "migration_match_confidence"
)

// ReconcileService drives the matching cascade for each legacy user record
// and applies the result: one owner relationship per matched user, audit
// metadata on the business, and an identity mapping confirming the
// company resolution. It is the sole place outcomes are classified into
// fatal, per-record, or advisory.
type ReconcileService struct {
	matcher       *MatchService
	identity      domain.IdentityMappingRepository
	relationships domain.RelationshipRepository
	businesses    domain.BusinessRepository
	stats         *domain.MigrationStats
	auditLog      *audit.Logger
	report        *audit.UnmatchedReport
	retryCfg      *retry.Config
	logger        *slog.Logger
	dryRun        bool
	filter        StrategyFilter

	mu        sync.Mutex
	unmatched []audit.UnmatchedIdentity
}

// ReconcileConfig bundles the per-run policy knobs.
type ReconcileConfig struct {
	DryRun bool
	Filter StrategyFilter
}

// NewReconcileService creates a new reconciliation engine. report may be
// nil when no remediation file is wanted (tests, diagnostics).
func NewReconcileService(
	matcher *MatchService,
	identity domain.IdentityMappingRepository,
	relationships domain.RelationshipRepository,
	businesses domain.BusinessRepository,
	stats *domain.MigrationStats,
	auditLog *audit.Logger,
	report *audit.UnmatchedReport,
	logger *slog.Logger,
	cfg ReconcileConfig,
) *ReconcileService {
	if logger == nil {
		logger = slog.Default()
	}
	filter := cfg.Filter
	if filter == "" {
		filter = FilterAll
	}

	return &ReconcileService{
		matcher:       matcher,
		identity:      identity,
		relationships: relationships,
		businesses:    businesses,
		stats:         stats,
		auditLog:      auditLog,
		report:        report,
		retryCfg:      retry.DefaultConfig(),
		logger:        logger,
		dryRun:        cfg.DryRun,
		filter:        filter,
	}
}

// Reconcile takes one legacy user record from Pending to a terminal state:
// Matched or Unmatched, with per-record errors counted and logged but
// never propagated as run failures. The one exception is a mapping
// conflict, which the caller must treat as fatal.
func (s *ReconcileService) Reconcile(ctx context.Context, rec *domain.LegacyRecord) domain.Outcome {
	start := time.Now()
	outcome := s.reconcile(ctx, rec)

	switch outcome.Status {
	case domain.OutcomeMatched:
		s.stats.RecordMatch(outcome.Candidate.Strategy)
		metrics.ObserveMatch(string(outcome.Candidate.Strategy))
	case domain.OutcomeUnmatched:
		s.stats.RecordNoMatch()
	case domain.OutcomeErrored:
		s.stats.RecordError()
		s.auditLog.LogRecordError(rec, outcome.Err)
		metrics.ObserveRecordError(errorReason(outcome.Err))
	}
	metrics.ObserveOutcome(string(outcome.Status), time.Since(start))

	return outcome
}

func (s *ReconcileService) reconcile(ctx context.Context, rec *domain.LegacyRecord) domain.Outcome {
	if rec.LegacyID == "" {
		return domain.Outcome{Record: rec, Status: domain.OutcomeErrored, Err: domain.ErrMissingLegacyID}
	}

	// The user must already exist in the target system; this engine
	// creates relationships, never users.
	userID, ok, err := s.identity.Get(domain.EntityUser, rec.LegacyID)
	if err != nil {
		return domain.Outcome{Record: rec, Status: domain.OutcomeErrored, Err: fmt.Errorf("user mapping lookup: %w", err)}
	}
	if !ok {
		return domain.Outcome{Record: rec, Status: domain.OutcomeErrored, Err: fmt.Errorf("legacy user %s: %w", rec.LegacyID, domain.ErrUserNotMigrated)}
	}

	candidate, err := s.matcher.Match(rec, s.filter)
	if err != nil {
		return domain.Outcome{Record: rec, Status: domain.OutcomeErrored, UserID: userID, Err: err}
	}
	if candidate == nil {
		s.recordUnmatched(rec, "no strategy matched")
		return domain.Outcome{Record: rec, Status: domain.OutcomeUnmatched, UserID: userID}
	}

	if candidate.Confidence < domain.LowConfidenceThreshold {
		// Applied anyway: flag for human audit instead of blocking
		// the pipeline.
		s.auditLog.LogLowConfidence(rec, candidate)
		metrics.ObserveLowConfidence()
	}

	if err := s.apply(ctx, rec, candidate, userID); err != nil {
		return domain.Outcome{Record: rec, Status: domain.OutcomeErrored, Candidate: candidate, UserID: userID, Err: err}
	}

	s.auditLog.LogMatch(rec, candidate, userID, s.dryRun)
	return domain.Outcome{Record: rec, Status: domain.OutcomeMatched, Candidate: candidate, UserID: userID}
}

// apply persists the match. In dry-run mode every check still runs and the
// would-be result is logged, but nothing is written.
func (s *ReconcileService) apply(ctx context.Context, rec *domain.LegacyRecord, candidate *domain.MatchCandidate, userID int64) error {
	exists, err := s.relationships.Exists(userID, candidate.BusinessID)
	if err != nil {
		return fmt.Errorf("relationship existence check: %w", err)
	}
	if exists {
		// Already linked by an earlier run. Success, no duplicate write.
		s.logger.Debug("relationship already exists",
			slog.Int64("user_id", userID),
			slog.Int64("business_id", candidate.BusinessID),
		)
		return nil
	}

	if s.dryRun {
		return nil
	}

	rel := &domain.Relationship{
		UserID:          userID,
		BusinessID:      candidate.BusinessID,
		Role:            domain.RoleOwner,
		Status:          domain.StatusActive,
		MatchType:       candidate.Strategy,
		MatchConfidence: candidate.Confidence,
	}
	err = retry.Do(ctx, s.retryCfg, s.logger, "create relationship", func() error {
		return s.relationships.Create(rel)
	})
	if err != nil {
		return err
	}

	if err := s.businesses.SetOwner(candidate.BusinessID, userID); err != nil {
		return err
	}
	if err := s.businesses.SetMetadata(candidate.BusinessID, metaMatchType, string(candidate.Strategy)); err != nil {
		return err
	}
	if err := s.businesses.SetMetadata(candidate.BusinessID, metaMatchConfidence, strconv.Itoa(candidate.Confidence)); err != nil {
		return err
	}

	// Confirm the company resolution in the mapping table so later
	// records with the same legacy company id exact-match. A conflict on
	// an exact or operator-supplied match means recorded truth disagrees
	// with itself and the run must halt; a conflicting heuristic guess
	// only means this record needs a human, so it is demoted to a
	// per-record error.
	if companyID, ok := rec.CompanyLegacyID(); ok {
		if err := s.identity.Put(domain.EntityBusiness, companyID, candidate.BusinessID); err != nil {
			if errors.Is(err, domain.ErrMappingConflict) && isHeuristic(candidate.Strategy) {
				return fmt.Errorf("company %s via %s: %v: %w",
					companyID, candidate.Strategy, err, domain.ErrResolutionConflict)
			}
			return err
		}
	}

	return nil
}

// isHeuristic reports whether a strategy is a guess rather than recorded or
// operator-supplied truth.
func isHeuristic(strategy domain.MatchStrategy) bool {
	switch strategy {
	case domain.StrategyExactID, domain.StrategyManualOverride:
		return false
	}
	return true
}

func (s *ReconcileService) recordUnmatched(rec *domain.LegacyRecord, reason string) {
	s.auditLog.LogUnmatched(rec, reason)

	email, _ := rec.Email()
	name, _ := rec.FullName()
	companyID, _ := rec.CompanyLegacyID()
	identity := audit.UnmatchedIdentity{
		Email:           email,
		Name:            name,
		LegacyCompanyID: companyID,
		Reason:          reason,
	}

	s.mu.Lock()
	s.unmatched = append(s.unmatched, identity)
	s.mu.Unlock()

	if s.report != nil {
		if err := s.report.Append(identity); err != nil {
			s.logger.Error("failed to append unmatched report",
				slog.String("email", email),
				slog.String("error", err.Error()),
			)
		}
	}
}

// Unmatched returns the identities no strategy could place, for the final
// summary.
func (s *ReconcileService) Unmatched() []audit.UnmatchedIdentity {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]audit.UnmatchedIdentity, len(s.unmatched))
	copy(out, s.unmatched)
	return out
}

// Stats exposes the run counters.
func (s *ReconcileService) Stats() domain.StatsSnapshot {
	return s.stats.Snapshot()
}

func errorReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrMissingLegacyID):
		return "missing_legacy_id"
	case errors.Is(err, domain.ErrUserNotMigrated):
		return "user_not_migrated"
	case errors.Is(err, domain.ErrResolutionConflict):
		return "resolution_conflict"
	case errors.Is(err, domain.ErrMappingConflict):
		return "mapping_conflict"
	default:
		return "store_failure"
	}
}

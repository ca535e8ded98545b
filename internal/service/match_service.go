package service

import (
	"fmt"
	"log/slog"

	"github.com/quartzlabs/ownermatch/internal/domain"
	"github.com/quartzlabs/ownermatch/internal/normalize"
	"github.com/quartzlabs/ownermatch/internal/store"
)

// StrategyFilter restricts which heuristic strategies the cascade attempts.
// ExactId and ManualOverride always run: they are authoritative or
// operator-supplied truth, not heuristic guesses, so even a diagnostic
// single-strategy run must not bypass them.
type StrategyFilter string

const (
	FilterAll    StrategyFilter = "all"
	FilterUUID   StrategyFilter = "uuid"
	FilterEmail  StrategyFilter = "email"
	FilterName   StrategyFilter = "name"
	FilterDomain StrategyFilter = "domain"
)

// ParseStrategyFilter validates an operator-supplied filter value.
func ParseStrategyFilter(s string) (StrategyFilter, error) {
	switch StrategyFilter(s) {
	case FilterAll, FilterUUID, FilterEmail, FilterName, FilterDomain:
		return StrategyFilter(s), nil
	}
	return "", fmt.Errorf("unknown strategy filter %q (want uuid, email, name, domain, or all)", s)
}

// MatchService runs the matching strategy cascade for one record at a time.
// Strategies are pure lookups against immutable per-run state: the business
// index, the manual mapping, and the (append-mostly) identity mapping
// table. They never error on missing or ambiguous data; they decline.
type MatchService struct {
	identity domain.IdentityMappingRepository
	index    *store.BusinessIndex
	manual   map[string]int64
	logger   *slog.Logger
}

// NewMatchService creates a new match service. manual may be nil when the
// operator supplied no override file.
func NewMatchService(
	identity domain.IdentityMappingRepository,
	index *store.BusinessIndex,
	manual map[string]int64,
	logger *slog.Logger,
) *MatchService {
	if logger == nil {
		logger = slog.Default()
	}

	return &MatchService{
		identity: identity,
		index:    index,
		manual:   manual,
		logger:   logger,
	}
}

// Match runs the cascade in fixed priority order and stops at the first
// strategy that yields a candidate. Confidence never reorders strategies.
// A nil candidate with a nil error means no strategy could place the
// record; errors are infrastructure failures only.
func (s *MatchService) Match(rec *domain.LegacyRecord, filter StrategyFilter) (*domain.MatchCandidate, error) {
	// Authoritative strategies run regardless of the filter.
	candidate, err := s.matchExactID(rec)
	if err != nil {
		return nil, err
	}
	if candidate != nil {
		return candidate, nil
	}

	if candidate := s.matchManualOverride(rec); candidate != nil {
		return candidate, nil
	}

	heuristics := []struct {
		filter StrategyFilter
		match  func(*domain.LegacyRecord) *domain.MatchCandidate
	}{
		{FilterEmail, s.matchEmail},
		{FilterName, s.matchName},
		{FilterDomain, s.matchDomain},
	}

	for _, h := range heuristics {
		if filter != FilterAll && filter != h.filter {
			continue
		}
		if candidate := h.match(rec); candidate != nil {
			return candidate, nil
		}
	}

	return nil, nil
}

// matchExactID resolves the record's legacy company id through the identity
// mapping table. The only strategy that touches persistent state, and the
// only one that can fail on infrastructure.
func (s *MatchService) matchExactID(rec *domain.LegacyRecord) (*domain.MatchCandidate, error) {
	companyID, ok := rec.CompanyLegacyID()
	if !ok {
		return nil, nil
	}

	businessID, ok, err := s.identity.Get(domain.EntityBusiness, companyID)
	if err != nil {
		return nil, fmt.Errorf("exact-id lookup failed: %w", err)
	}
	if !ok {
		return nil, nil
	}

	return domain.NewMatchCandidate(domain.StrategyExactID, businessID), nil
}

// matchManualOverride consults the operator-supplied email → business map.
func (s *MatchService) matchManualOverride(rec *domain.LegacyRecord) *domain.MatchCandidate {
	if len(s.manual) == 0 {
		return nil
	}
	email, ok := rec.Email()
	if !ok {
		return nil
	}
	businessID, ok := s.manual[email]
	if !ok {
		return nil
	}
	return domain.NewMatchCandidate(domain.StrategyManualOverride, businessID)
}

// matchEmail looks the record's email up in the business-by-email index.
func (s *MatchService) matchEmail(rec *domain.LegacyRecord) *domain.MatchCandidate {
	email, ok := rec.Email()
	if !ok {
		return nil
	}
	biz, ok := s.index.ByEmail[email]
	if !ok {
		return nil
	}
	return domain.NewMatchCandidate(domain.StrategyEmail, biz.ID)
}

// matchName looks the record's normalized full name up in the
// business-by-owner-name index. Exact on the normalized key; two legacy
// users sharing a display name resolve to whichever business was indexed
// first, a known gap left for manual review to catch.
func (s *MatchService) matchName(rec *domain.LegacyRecord) *domain.MatchCandidate {
	fullName, ok := rec.FullName()
	if !ok {
		return nil
	}
	biz, ok := s.index.ByOwnerName[normalize.Name(fullName)]
	if !ok {
		return nil
	}
	return domain.NewMatchCandidate(domain.StrategyName, biz.ID)
}

// matchDomain succeeds only when exactly one business shares the record's
// non-free email domain. Multiple businesses on one corporate domain are
// ambiguous and defer to manual review.
func (s *MatchService) matchDomain(rec *domain.LegacyRecord) *domain.MatchCandidate {
	email, ok := rec.Email()
	if !ok {
		return nil
	}
	dom, ok := normalize.Domain(email)
	if !ok {
		return nil
	}
	candidates := s.index.ByDomain[dom]
	if len(candidates) != 1 {
		if len(candidates) > 1 {
			s.logger.Debug("ambiguous domain, declining",
				slog.String("domain", dom),
				slog.Int("businesses", len(candidates)),
			)
		}
		return nil
	}
	return domain.NewMatchCandidate(domain.StrategyDomain, candidates[0].ID)
}

package domain

// MatchStrategy identifies which matcher in the cascade produced a candidate.
type MatchStrategy string

const (
	StrategyExactID        MatchStrategy = "exact_id"
	StrategyManualOverride MatchStrategy = "manual_override"
	StrategyEmail          MatchStrategy = "email"
	StrategyName           MatchStrategy = "name"
	StrategyDomain         MatchStrategy = "domain"
)

// Confidence is fixed per strategy. It is provenance for audit and
// low-confidence flagging only; it never changes which strategy wins.
func (s MatchStrategy) Confidence() int {
	switch s {
	case StrategyExactID:
		return 100
	case StrategyManualOverride:
		return 95
	case StrategyEmail:
		return 90
	case StrategyName:
		return 70
	case StrategyDomain:
		return 50
	}
	return 0
}

// LowConfidenceThreshold marks matches that are applied but flagged for
// human review.
const LowConfidenceThreshold = 70

// MatchCandidate is the transient result of one strategy invocation.
type MatchCandidate struct {
	Strategy   MatchStrategy
	BusinessID int64
	Confidence int
}

// NewMatchCandidate builds a candidate with the strategy's fixed confidence.
func NewMatchCandidate(strategy MatchStrategy, businessID int64) *MatchCandidate {
	return &MatchCandidate{
		Strategy:   strategy,
		BusinessID: businessID,
		Confidence: strategy.Confidence(),
	}
}

// Relationship links a resolved user to a resolved business in the target
// system. At most one relationship exists per (UserID, BusinessID) pair;
// duplicate create attempts are no-ops.
type Relationship struct {
	UserID          int64
	BusinessID      int64
	Role            string
	Status          string
	MatchType       MatchStrategy
	MatchConfidence int
}

// The only role this migration assigns.
const RoleOwner = "owner"

const StatusActive = "active"

// OutcomeStatus is the terminal state of reconciling one record.
type OutcomeStatus string

const (
	OutcomeMatched   OutcomeStatus = "matched"
	OutcomeUnmatched OutcomeStatus = "unmatched"
	OutcomeErrored   OutcomeStatus = "errored"
)

// Outcome is the result of reconciling a single legacy user record.
type Outcome struct {
	Record    *LegacyRecord
	Status    OutcomeStatus
	Candidate *MatchCandidate
	UserID    int64
	Err       error
}

// Business is a target-system business entity as seen by the matching
// strategies: its assigned id plus the fields the index is built from.
type Business struct {
	ID        int64
	Email     string
	OwnerName string
}

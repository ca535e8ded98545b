package audit

import (
	"log/slog"

	"github.com/quartzlabs/ownermatch/internal/domain"
)

// Logger emits the structured audit trail of a migration run: one entry per
// match, low-confidence flag, unmatched record, and per-record error.
type Logger struct {
	logger *slog.Logger
}

// NewLogger creates an audit logger.
func NewLogger(logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{logger: logger}
}

func recordAttrs(rec *domain.LegacyRecord) []any {
	email, _ := rec.Email()
	name, _ := rec.FullName()
	companyID, _ := rec.CompanyLegacyID()
	return []any{
		slog.String("legacy_id", rec.LegacyID),
		slog.String("email", email),
		slog.String("name", name),
		slog.String("legacy_company_id", companyID),
	}
}

// LogMatch records a successful (or would-be, in dry-run) match.
func (al *Logger) LogMatch(rec *domain.LegacyRecord, candidate *domain.MatchCandidate, userID int64, dryRun bool) {
	attrs := append(recordAttrs(rec),
		slog.String("strategy", string(candidate.Strategy)),
		slog.Int("confidence", candidate.Confidence),
		slog.Int64("user_id", userID),
		slog.Int64("business_id", candidate.BusinessID),
		slog.Bool("dry_run", dryRun),
	)
	al.logger.Info("matched", attrs...)
}

// LogLowConfidence flags a match that was applied but needs human review.
func (al *Logger) LogLowConfidence(rec *domain.LegacyRecord, candidate *domain.MatchCandidate) {
	attrs := append(recordAttrs(rec),
		slog.String("strategy", string(candidate.Strategy)),
		slog.Int("confidence", candidate.Confidence),
		slog.Int("threshold", domain.LowConfidenceThreshold),
	)
	al.logger.Warn("low confidence match, requires review", attrs...)
}

// LogUnmatched records a record no strategy could place.
func (al *Logger) LogUnmatched(rec *domain.LegacyRecord, reason string) {
	attrs := append(recordAttrs(rec), slog.String("reason", reason))
	al.logger.Warn("unmatched", attrs...)
}

// LogRecordError records a per-record recoverable error.
func (al *Logger) LogRecordError(rec *domain.LegacyRecord, err error) {
	attrs := append(recordAttrs(rec), slog.String("error", err.Error()))
	al.logger.Error("record failed", attrs...)
}

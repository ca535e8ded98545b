package audit

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/quartzlabs/ownermatch/internal/domain"
)

// summaryOrder fixes the strategy rows of the report, highest confidence
// first.
var summaryOrder = []domain.MatchStrategy{
	domain.StrategyExactID,
	domain.StrategyManualOverride,
	domain.StrategyEmail,
	domain.StrategyName,
	domain.StrategyDomain,
}

// WriteSummary prints the end-of-run report: per-strategy counts and
// percentages, error and unmatched totals, and the literal list of
// identities needing manual remediation when anything went unmatched.
func WriteSummary(out io.Writer, snap domain.StatsSnapshot, unmatched []UnmatchedIdentity, dryRun bool) {
	mode := "execute"
	if dryRun {
		mode = "dry-run"
	}
	fmt.Fprintf(out, "\nReconciliation summary (%s)\n", mode)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STRATEGY\tCOUNT\tPERCENT")
	for _, strategy := range summaryOrder {
		count := snap.ByType[strategy]
		fmt.Fprintf(w, "%s\t%d\t%.1f%%\n", strategy, count, snap.Percent(count))
	}
	fmt.Fprintf(w, "no match\t%d\t%.1f%%\n", snap.NoMatches, snap.Percent(snap.NoMatches))
	fmt.Fprintf(w, "errors\t%d\t%.1f%%\n", snap.Errors, snap.Percent(snap.Errors))
	fmt.Fprintf(w, "total\t%d\t\n", snap.Attempted)
	w.Flush()

	if len(unmatched) == 0 {
		return
	}

	fmt.Fprintf(out, "\nUnmatched identities (%d), manual remediation required:\n", len(unmatched))
	uw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(uw, "EMAIL\tNAME\tLEGACY COMPANY ID\tREASON")
	for _, id := range unmatched {
		fmt.Fprintf(uw, "%s\t%s\t%s\t%s\n", id.Email, id.Name, id.LegacyCompanyID, id.Reason)
	}
	uw.Flush()
}

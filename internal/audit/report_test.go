package audit

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/quartzlabs/ownermatch/internal/domain"
)

func TestUnmatchedReportAppendsAcrossOpens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "unmatched.csv")

	report, err := OpenUnmatchedReport(path)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if err := report.Append(UnmatchedIdentity{Email: "a@x.org", Name: "A", Reason: "no strategy matched"}); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	report.Close()

	// Second run appends, never truncates.
	report, err = OpenUnmatchedReport(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	if err := report.Append(UnmatchedIdentity{Email: "b@y.org", Name: "B", Reason: "ambiguous domain"}); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	report.Close()

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	// Header + two data rows, exactly one header.
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if rows[0][0] != "email" {
		t.Fatalf("expected header row, got %v", rows[0])
	}
	if rows[1][0] != "a@x.org" || rows[2][0] != "b@y.org" {
		t.Fatalf("unexpected data rows: %v, %v", rows[1], rows[2])
	}
	if rows[2][4] == "" {
		t.Fatal("expected a timestamp column")
	}
}

func TestWriteSummary(t *testing.T) {
	stats := domain.NewMigrationStats()
	stats.RecordMatch(domain.StrategyExactID)
	stats.RecordMatch(domain.StrategyExactID)
	stats.RecordMatch(domain.StrategyEmail)
	stats.RecordNoMatch()

	var out strings.Builder
	WriteSummary(&out, stats.Snapshot(), []UnmatchedIdentity{
		{Email: "carol@acme.org", Name: "Carol King", Reason: "ambiguous domain"},
	}, true)

	text := out.String()
	for _, want := range []string{"dry-run", "exact_id", "50.0%", "no match", "carol@acme.org", "ambiguous domain"} {
		if !strings.Contains(text, want) {
			t.Errorf("summary missing %q:\n%s", want, text)
		}
	}
}

func TestWriteSummaryOmitsEmptyUnmatchedList(t *testing.T) {
	stats := domain.NewMigrationStats()
	stats.RecordMatch(domain.StrategyExactID)

	var out strings.Builder
	WriteSummary(&out, stats.Snapshot(), nil, false)

	if strings.Contains(out.String(), "manual remediation") {
		t.Error("did not expect unmatched section for a clean run")
	}
	if !strings.Contains(out.String(), "execute") {
		t.Error("expected execute mode label")
	}
}

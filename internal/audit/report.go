package audit

import (
	"encoding/csv"
	"fmt"
	"os"
	"sync"
	"time"
)

// UnmatchedIdentity is one row of the remediation report.
type UnmatchedIdentity struct {
	Email           string
	Name            string
	LegacyCompanyID string
	Reason          string
}

// UnmatchedReport appends unmatched records to a cumulative CSV file for
// manual remediation. The file is opened append-only and never truncated;
// rows from earlier runs are kept.
type UnmatchedReport struct {
	mu   sync.Mutex
	file *os.File
	w    *csv.Writer
	path string
}

// OpenUnmatchedReport opens (or creates) the report file. A header row is
// written only when the file is new.
func OpenUnmatchedReport(path string) (*UnmatchedReport, error) {
	info, err := os.Stat(path)
	isNew := os.IsNotExist(err) || (err == nil && info.Size() == 0)

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open unmatched report: %w", err)
	}

	report := &UnmatchedReport{
		file: file,
		w:    csv.NewWriter(file),
		path: path,
	}

	if isNew {
		if err := report.w.Write([]string{"email", "name", "legacy_company_id", "reason", "timestamp"}); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to write report header: %w", err)
		}
		report.w.Flush()
	}

	return report, nil
}

// Append writes one unmatched record with the current timestamp.
func (r *UnmatchedReport) Append(identity UnmatchedIdentity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	row := []string{
		identity.Email,
		identity.Name,
		identity.LegacyCompanyID,
		identity.Reason,
		time.Now().UTC().Format(time.RFC3339),
	}
	if err := r.w.Write(row); err != nil {
		return fmt.Errorf("failed to append unmatched record: %w", err)
	}
	r.w.Flush()
	return r.w.Error()
}

// Path returns the report file location.
func (r *UnmatchedReport) Path() string {
	return r.path
}

// Close flushes and closes the report file.
func (r *UnmatchedReport) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.w.Flush()
	if err := r.w.Error(); err != nil {
		r.file.Close()
		return err
	}
	return r.file.Close()
}

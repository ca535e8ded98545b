package domain

import "sync"

// MigrationStats accumulates per-run counters. Safe for concurrent use by
// the batch runner's workers.
type MigrationStats struct {
	mu        sync.Mutex
	byType    map[MatchStrategy]int
	noMatches int
	errors    int
	attempted int
}

// NewMigrationStats creates an empty counter set for one run.
func NewMigrationStats() *MigrationStats {
	return &MigrationStats{byType: map[MatchStrategy]int{}}
}

// RecordMatch counts a successful match for the given strategy.
func (s *MigrationStats) RecordMatch(strategy MatchStrategy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempted++
	s.byType[strategy]++
}

// RecordNoMatch counts a record no strategy could place.
func (s *MigrationStats) RecordNoMatch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempted++
	s.noMatches++
}

// RecordError counts a per-record recoverable error.
func (s *MigrationStats) RecordError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempted++
	s.errors++
}

// StatsSnapshot is an immutable copy of the counters for reporting.
type StatsSnapshot struct {
	Attempted int
	Matched   int
	NoMatches int
	Errors    int
	ByType    map[MatchStrategy]int
}

// Snapshot returns a copy of the current counters.
func (s *MigrationStats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	byType := make(map[MatchStrategy]int, len(s.byType))
	matched := 0
	for k, v := range s.byType {
		byType[k] = v
		matched += v
	}

	return StatsSnapshot{
		Attempted: s.attempted,
		Matched:   matched,
		NoMatches: s.noMatches,
		Errors:    s.errors,
		ByType:    byType,
	}
}

// Percent returns n as a percentage of the attempted total, 0 when nothing
// was attempted.
func (snap StatsSnapshot) Percent(n int) float64 {
	if snap.Attempted == 0 {
		return 0
	}
	return float64(n) / float64(snap.Attempted) * 100
}

package domain

import "errors"

var (
	// ErrMappingConflict means two different new ids were claimed for the
	// same legacy id. This is a data corruption risk: the run must halt
	// rather than silently pick one.
	ErrMappingConflict = errors.New("conflicting identity mapping")

	// ErrResolutionConflict means a heuristic guess for a company
	// contradicted the mapping table. Unlike ErrMappingConflict the guess
	// carries no authority, so the record defers to manual review and the
	// run continues.
	ErrResolutionConflict = errors.New("heuristic resolution conflicts with recorded mapping")

	// ErrMissingLegacyID marks a record that arrived without a legacy
	// identifier. Per-record error; the run continues.
	ErrMissingLegacyID = errors.New("record has no legacy id")

	// ErrUserNotMigrated means no identity mapping exists for the user.
	// Users must exist in the target system before relationships can be
	// created; this engine does not create them.
	ErrUserNotMigrated = errors.New("user has no identity mapping")

	// ErrRunLocked means another migration run holds the run lock.
	ErrRunLocked = errors.New("another migration run is in progress")
)

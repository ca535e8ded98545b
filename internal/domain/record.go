package domain

import "strings"

// EntityType partitions legacy identifiers by the kind of entity they name.
type EntityType string

const (
	EntityUser     EntityType = "user"
	EntityCompany  EntityType = "company"
	EntityBusiness EntityType = "business"
)

// Canonical field names every record carries after ingestion. The legacy
// export uses inconsistent casing (UserId vs userId vs user_id); the ingest
// layer folds all variants into these keys exactly once, so nothing
// downstream ever has to guess.
const (
	FieldEmail           = "email"
	FieldFirstName       = "first_name"
	FieldLastName        = "last_name"
	FieldCompanyLegacyID = "company_legacy_id"
)

// LegacyRecord is one row from the legacy export. Immutable after ingestion.
type LegacyRecord struct {
	LegacyID   string
	EntityType EntityType
	Fields     map[string]string
}

// Field returns the trimmed value for a canonical field name. A missing or
// blank value reports ok=false; callers branch on presence instead of
// relying on empty-string coercion.
func (r *LegacyRecord) Field(name string) (string, bool) {
	v, ok := r.Fields[name]
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	if v == "" {
		return "", false
	}
	return v, true
}

// Email returns the record's email lower-cased, if present and well-formed
// enough to carry an @.
func (r *LegacyRecord) Email() (string, bool) {
	v, ok := r.Field(FieldEmail)
	if !ok || !strings.Contains(v, "@") {
		return "", false
	}
	return strings.ToLower(v), true
}

// FullName returns "first last" from the raw name fields. Both parts must be
// present; name normalization happens in the normalize package.
func (r *LegacyRecord) FullName() (string, bool) {
	first, ok1 := r.Field(FieldFirstName)
	last, ok2 := r.Field(FieldLastName)
	if !ok1 || !ok2 {
		return "", false
	}
	return first + " " + last, true
}

// CompanyLegacyID returns the legacy identifier of the company the user
// belonged to in the source system.
func (r *LegacyRecord) CompanyLegacyID() (string, bool) {
	return r.Field(FieldCompanyLegacyID)
}

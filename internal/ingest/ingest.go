package ingest

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/quartzlabs/ownermatch/internal/domain"
)

// canonicalFields lists, per canonical field, the accepted legacy name
// variants in precedence order. Variant lookup happens on the lower-cased
// name with underscores removed, so every casing of the same variant lands
// in the same place once, at ingestion. When one row carries several
// variants of the same field the earliest variant here wins, so identical
// rows always fold to identical records.
var canonicalFields = []struct {
	canonical string
	variants  []string
}{
	{"legacy_id", []string{"userid", "uuid", "id", "legacyid"}},
	{domain.FieldEmail, []string{"email", "emailaddress", "useremail"}},
	{domain.FieldFirstName, []string{"firstname"}},
	{domain.FieldLastName, []string{"lastname"}},
	{domain.FieldCompanyLegacyID, []string{"companyid", "companyuuid", "companylegacyid"}},
	{"entity_type", []string{"entitytype", "recordtype"}},
}

// LoadRecords reads the external parser's output, a JSON array or
// newline-delimited JSON of flat records, and returns canonicalized
// LegacyRecords. Field names are folded once here; downstream code only
// ever sees canonical keys.
func LoadRecords(path string, logger *slog.Logger) ([]*domain.LegacyRecord, error) {
	if logger == nil {
		logger = slog.Default()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read export file: %w", err)
	}

	raws, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode export file: %w", err)
	}

	records := make([]*domain.LegacyRecord, 0, len(raws))
	malformedIDs := 0
	for i, raw := range raws {
		rec := Canonicalize(raw)
		if rec.LegacyID != "" {
			if _, err := uuid.Parse(rec.LegacyID); err != nil {
				// Legacy ids are UUIDs in the source system. A
				// malformed one is suspicious but matching treats
				// ids as opaque strings, so keep the record.
				malformedIDs++
				logger.Warn("legacy id is not a valid uuid",
					slog.Int("record", i+1),
					slog.String("legacy_id", rec.LegacyID),
				)
			}
		}
		records = append(records, rec)
	}

	logger.Info("legacy export loaded",
		slog.String("path", path),
		slog.Int("records", len(records)),
		slog.Int("malformed_ids", malformedIDs),
	)
	return records, nil
}

// decode accepts either a single JSON array or NDJSON, one object per line.
func decode(data []byte) ([]map[string]any, error) {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var raws []map[string]any
		if err := json.Unmarshal(data, &raws); err != nil {
			return nil, err
		}
		return raws, nil
	}

	var raws []map[string]any
	scanner := bufio.NewScanner(strings.NewReader(trimmed))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var raw map[string]any
		if err := json.Unmarshal([]byte(text), &raw); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		raws = append(raws, raw)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return raws, nil
}

// Canonicalize turns one raw parsed row into a LegacyRecord with canonical
// field names. Resolution is deterministic: variants resolve in the
// precedence order of canonicalFields, raw keys compacting to the same
// variant resolve in sorted key order, and unknown fields are carried
// through lower-cased so the transform layer downstream of this engine
// still sees them.
func Canonicalize(raw map[string]any) *domain.LegacyRecord {
	keys := make([]string, 0, len(raw))
	for key := range raw {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	byVariant := make(map[string]string, len(raw))
	for _, key := range keys {
		v := compactKey(key)
		if _, ok := byVariant[v]; !ok {
			byVariant[v] = key
		}
	}

	fields := make(map[string]string, len(raw))
	known := make(map[string]struct{})
	for _, cf := range canonicalFields {
		for _, variant := range cf.variants {
			known[variant] = struct{}{}
			if _, done := fields[cf.canonical]; done {
				continue
			}
			if rawKey, ok := byVariant[variant]; ok {
				fields[cf.canonical] = stringify(raw[rawKey])
			}
		}
	}

	for _, key := range keys {
		if _, ok := known[compactKey(key)]; ok {
			continue
		}
		canonical := strings.ToLower(key)
		if _, exists := fields[canonical]; exists {
			continue
		}
		fields[canonical] = stringify(raw[key])
	}

	rec := &domain.LegacyRecord{
		LegacyID:   strings.TrimSpace(fields["legacy_id"]),
		EntityType: parseEntityType(fields["entity_type"]),
		Fields:     fields,
	}
	delete(fields, "legacy_id")
	delete(fields, "entity_type")
	return rec
}

func compactKey(key string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(key)), "_", "")
}

// stringify keeps every value a raw string; dates and numbers stay untouched
// until a transform layer interprets them.
func stringify(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case nil:
		return ""
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return string(data)
	}
}

func parseEntityType(raw string) domain.EntityType {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "company":
		return domain.EntityCompany
	case "business":
		return domain.EntityBusiness
	default:
		return domain.EntityUser
	}
}

package models

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// legacyInProgress is how older brief documents spell in_progress.
const legacyInProgress = "in-progress"

// Materialize turns a raw stored document into a Record. It is total:
// every missing or malformed field falls back to its default instead of
// failing, so a single bad document never breaks a snapshot.
func Materialize(kind Kind, id string, fields map[string]any) Record {
	rec := Record{
		ID:          id,
		Kind:        kind,
		OwnerID:     stringField(fields, FieldOwner),
		Title:       stringField(fields, FieldTitle),
		Description: stringField(fields, FieldDescription),
		Budget:      numberField(fields, FieldBudget),
		Status:      statusField(kind, fields),
	}
	if rec.Budget < 0 {
		rec.Budget = 0
	}
	if t, ok := ParseTime(fields[FieldDeadline]); ok {
		rec.Deadline = &t
	}
	if t, ok := ParseTime(fields[FieldCreatedAt]); ok {
		rec.CreatedAt = t
	}

	switch kind {
	case KindProject:
		rec.EscrowStatus = EscrowStatus(stringField(fields, FieldEscrowStatus))
		if !rec.EscrowStatus.Valid() {
			rec.EscrowStatus = EscrowUnfunded
		}
	case KindBrief:
		rec.ClientName = stringField(fields, FieldClientName)
	}
	return rec
}

func statusField(kind Kind, fields map[string]any) Status {
	raw := stringField(fields, FieldStatus)
	if raw == legacyInProgress {
		raw = string(StatusInProgress)
	}
	s := Status(raw)
	if !kind.Valid(s) {
		return kind.InitialStatus()
	}
	return s
}

func stringField(fields map[string]any, key string) string {
	if s, ok := fields[key].(string); ok {
		return s
	}
	return ""
}

func numberField(fields map[string]any, key string) float64 {
	switch v := fields[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case json.Number:
		f, err := v.Float64()
		if err == nil {
			return f
		}
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			return f
		}
	}
	return 0
}

// ParseTime accepts the encodings a time can arrive in from the store:
// time.Time, RFC 3339 strings, and Unix milliseconds.
func ParseTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		if t.IsZero() {
			return time.Time{}, false
		}
		return t.UTC(), true
	case *time.Time:
		if t == nil || t.IsZero() {
			return time.Time{}, false
		}
		return t.UTC(), true
	case string:
		if t == "" {
			return time.Time{}, false
		}
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			parsed, err = time.Parse(time.DateOnly, t)
			if err != nil {
				return time.Time{}, false
			}
		}
		return parsed.UTC(), true
	case float64:
		return time.UnixMilli(int64(t)).UTC(), true
	case int64:
		return time.UnixMilli(t).UTC(), true
	}
	return time.Time{}, false
}

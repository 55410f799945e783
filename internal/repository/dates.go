package repository

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Layouts accepted for stored date strings. Forms submit date-only and
// datetime-local values; exported files carry RFC 3339.
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseDate parses any accepted date layout into a UTC instant. Values
// without a zone are read as UTC.
func ParseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", value)
}

// RehydrateDates returns a decode hook that rewrites the named top-level
// string fields of a document into canonical RFC 3339 UTC timestamps. Empty
// strings become null so they decode to the zero time.
func RehydrateDates(fields ...string) func([]byte) ([]byte, error) {
	return func(doc []byte) ([]byte, error) {
		if len(fields) == 0 {
			return doc, nil
		}

		var obj map[string]json.RawMessage
		if err := json.Unmarshal(doc, &obj); err != nil {
			return nil, err
		}

		changed := false
		for _, field := range fields {
			raw, ok := obj[field]
			if !ok {
				continue
			}
			var s string
			if err := json.Unmarshal(raw, &s); err != nil {
				// not a string: null or an already typed value
				continue
			}
			if strings.TrimSpace(s) == "" {
				obj[field] = json.RawMessage("null")
				changed = true
				continue
			}
			t, err := ParseDate(s)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", field, err)
			}
			normalized, err := json.Marshal(t)
			if err != nil {
				return nil, err
			}
			obj[field] = normalized
			changed = true
		}

		if !changed {
			return doc, nil
		}
		return json.Marshal(obj)
	}
}

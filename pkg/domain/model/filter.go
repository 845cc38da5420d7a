package model

import (
	"encoding/json"
	"strconv"
	"strings"
)

// EventFilter matches when the payload value at FieldPath equals ExpectedValue exactly
type EventFilter struct {
	FieldPath     string `toml:"field_path" json:"field_path"`
	ExpectedValue string `toml:"expected_value" json:"expected_value"`
}

// Match evaluates the filter against a decoded JSON payload. Missing paths and non-scalar values
// never match.
func (f EventFilter) Match(payload any) bool {
	v, ok := Lookup(payload, f.FieldPath)
	if !ok {
		return false
	}

	switch x := v.(type) {
	case string:
		return x == f.ExpectedValue
	case bool:
		return strconv.FormatBool(x) == f.ExpectedValue
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64) == f.ExpectedValue
	case json.Number:
		return x.String() == f.ExpectedValue
	default:
		return false
	}
}

// ParseEventFilter parses "path=value" into an EventFilter
func ParseEventFilter(s string) (EventFilter, bool) {
	path, value, ok := strings.Cut(s, "=")
	if !ok || strings.TrimSpace(path) == "" {
		return EventFilter{}, false
	}
	return EventFilter{FieldPath: strings.TrimSpace(path), ExpectedValue: value}, true
}

// Lookup walks a decoded JSON value along path. Accepted forms are "$.a.b", "a.b" and "a[0].b".
func Lookup(payload any, path string) (any, bool) {
	path = strings.TrimPrefix(path, "$")
	path = strings.TrimPrefix(path, ".")
	if path == "" {
		return nil, false
	}

	cur := payload
	for _, seg := range strings.Split(path, ".") {
		name, indexes, ok := splitSegment(seg)
		if !ok {
			return nil, false
		}

		if name != "" {
			obj, ok := cur.(map[string]any)
			if !ok {
				return nil, false
			}
			if cur, ok = obj[name]; !ok {
				return nil, false
			}
		}

		for _, idx := range indexes {
			arr, ok := cur.([]any)
			if !ok || idx < 0 || idx >= len(arr) {
				return nil, false
			}
			cur = arr[idx]
		}
	}

	return cur, true
}

// splitSegment splits "name[1][2]" into "name" and [1, 2]
func splitSegment(seg string) (string, []int, bool) {
	open := strings.IndexByte(seg, '[')
	if open < 0 {
		return seg, nil, seg != ""
	}

	name := seg[:open]
	var indexes []int
	rest := seg[open:]
	for rest != "" {
		if rest[0] != '[' {
			return "", nil, false
		}
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			return "", nil, false
		}
		idx, err := strconv.Atoi(rest[1:end])
		if err != nil {
			return "", nil, false
		}
		indexes = append(indexes, idx)
		rest = rest[end+1:]
	}

	return name, indexes, true
}

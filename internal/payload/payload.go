// Package payload provides helpers over the loosely typed JSON documents
// returned by the upstream inventory. Records stay map[string]any end to
// end; the store projects indexed fields out of them with these helpers.
package payload

import "strings"

// GetString safely extracts a string value from a map
func GetString(m map[string]any, k string) (string, bool) {
	if v, ok := m[k]; ok {
		if s, ok2 := v.(string); ok2 {
			return s, true
		}
	}
	return "", false
}

// GetMap safely extracts a nested map from a map
func GetMap(m map[string]any, k string) (map[string]any, bool) {
	if v, ok := m[k]; ok {
		if mm, ok2 := v.(map[string]any); ok2 {
			return mm, true
		}
	}
	return nil, false
}

// GetBool extracts a boolean value. JSON booleans arrive as bool; a few
// upstream fields ship them as "true"/"false" strings, which are accepted.
func GetBool(m map[string]any, k string) (bool, bool) {
	v, ok := m[k]
	if !ok {
		return false, false
	}
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		if b == "true" {
			return true, true
		}
		if b == "false" {
			return false, true
		}
	}
	return false, false
}

// GetInt extracts an integral value. JSON numbers decode to float64; the
// integer types cover values injected by tests and re-decoded payloads.
func GetInt(m map[string]any, k string) (int64, bool) {
	v, ok := m[k]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int:
		return int64(n), true
	case int64:
		return n, true
	}
	return 0, false
}

// GetPath resolves a dotted path ("issuer.name") through nested maps.
func GetPath(m map[string]any, path string) (any, bool) {
	cur := m
	parts := strings.Split(path, ".")
	for i, part := range parts {
		if i == len(parts)-1 {
			v, ok := cur[part]
			return v, ok
		}
		next, ok := GetMap(cur, part)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return nil, false
}

// MaxString returns the lexicographic maximum of a string field across the
// batch. ISO-8601 UTC timestamps sort chronologically under this compare,
// which is what the checkpoint relies on.
func MaxString(records []map[string]any, key string) (string, bool) {
	max := ""
	found := false
	for _, rec := range records {
		s, ok := GetString(rec, key)
		if !ok || s == "" {
			continue
		}
		if !found || s > max {
			max = s
			found = true
		}
	}
	return max, found
}

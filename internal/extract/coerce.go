package extract

import (
	"strconv"
	"strings"
)

// String returns m[key] as a trimmed string, or fallback when the value is
// missing, not a string, or blank.
func String(m map[string]any, key, fallback string) string {
	if s, ok := m[key].(string); ok {
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return fallback
}

// OptionalString is like [String] but reports absence as nil. The literal
// strings "null" and "none" count as absent.
func OptionalString(m map[string]any, key string) *string {
	s := String(m, key, "")
	switch strings.ToLower(s) {
	case "", "null", "none":
		return nil
	}
	return &s
}

// Strings returns m[key] as a slice of trimmed, non-blank strings. Anything
// that is not an array yields an empty, non-nil slice.
func Strings(m map[string]any, key string) []string {
	out := []string{}
	arr, ok := m[key].([]any)
	if !ok {
		return out
	}
	for _, item := range arr {
		s, ok := item.(string)
		if !ok {
			continue
		}
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Float returns m[key] as a number. Numeric strings are accepted.
func Float(m map[string]any, key string, fallback float64) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return fallback
}

// Bool returns m[key] as a boolean. The strings "true" and "false" are
// accepted.
func Bool(m map[string]any, key string) bool {
	switch v := m[key].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(strings.TrimSpace(v))
		return b
	}
	return false
}

// Package extract turns raw model output into a JSON object, tolerating the
// usual noise: markdown fences, prose around the object, trailing commas,
// comments and single quotes.
//
// Nothing downstream of this package should ever see raw provider text.
package extract

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/tidwall/jsonc"

	"github.com/MrWong99/greffier/pkg/llmerr"
)

// previewLen is how many characters of the raw reply are kept on a
// PARSE_ERROR for diagnostics.
const previewLen = 300

var (
	leadingFence  = regexp.MustCompile("^```(?:json|JSON)?\\s*\\n?")
	trailingFence = regexp.MustCompile("\\n?```\\s*$")
	objectSpan    = regexp.MustCompile(`(?s)\{.*\}`)
)

// JSON parses raw into a JSON value. Strategies, in order: the text with
// code fences removed, the span from the first '{' to the last '}', that
// span with comments and trailing commas stripped, and finally the stripped
// span with single quotes turned into double quotes. When all fail it
// returns a retryable PARSE_ERROR carrying the raw length and a preview.
func JSON(raw string) (any, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = leadingFence.ReplaceAllString(cleaned, "")
	cleaned = trailingFence.ReplaceAllString(cleaned, "")
	cleaned = strings.TrimSpace(cleaned)

	if v, ok := decode(cleaned); ok {
		return v, nil
	}

	candidate := cleaned
	if span := objectSpan.FindString(cleaned); span != "" {
		if v, ok := decode(span); ok {
			return v, nil
		}
		candidate = span
	}

	stripped := string(jsonc.ToJSON([]byte(candidate)))
	if v, ok := decode(stripped); ok {
		return v, nil
	}
	if v, ok := decode(requote(stripped)); ok {
		return v, nil
	}

	return nil, parseError(raw)
}

// Object checks that v is a JSON object (not an array, null or scalar).
func Object(v any) (map[string]any, error) {
	m, ok := v.(map[string]any)
	if !ok || m == nil {
		return nil, llmerr.New(llmerr.ParseError, "", "La réponse n'est pas un objet JSON.",
			llmerr.WithContext("kind", kindOf(v)))
	}
	return m, nil
}

// ObjectFrom is [JSON] followed by [Object].
func ObjectFrom(raw string) (map[string]any, error) {
	v, err := JSON(raw)
	if err != nil {
		return nil, err
	}
	return Object(v)
}

func decode(s string) (any, bool) {
	if s == "" {
		return nil, false
	}
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, false
	}
	return v, true
}

// requote turns single quotes into double quotes. Apostrophes inside
// double-quoted strings break it, so it only runs once everything else failed.
func requote(s string) string {
	return strings.ReplaceAll(s, "'", `"`)
}

func parseError(raw string) error {
	return llmerr.New(llmerr.ParseError, "", "Impossible d'extraire un JSON valide de la réponse.",
		llmerr.WithContext("rawLength", len([]rune(raw))),
		llmerr.WithContext("preview", Preview(raw, previewLen)))
}

// Preview returns at most n characters of s.
func Preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func kindOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case []any:
		return "array"
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "boolean"
	case map[string]any:
		return "object"
	default:
		return "unknown"
	}
}

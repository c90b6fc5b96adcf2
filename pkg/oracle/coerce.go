package oracle

import (
	"encoding/json"
	"regexp"
	"sort"
	"strings"

	jsonrepair "github.com/kaptinlin/jsonrepair"
)

// Coercion is fail-closed: a decision to invalidate is only ever taken on a
// clearly affirmative response. Anything ambiguous, empty, or unparseable
// means "do not invalidate".

var thinkTagPattern = regexp.MustCompile(`(?s)<think>.*?</think>`)

// affirmative and negative are matched against the response's first word.
var (
	affirmative = map[string]bool{
		"true": true, "yes": true, "invalidated": true, "affirmative": true,
	}
	negative = map[string]bool{
		"false": true, "no": true, "negative": true, "incorrect": true,
	}
)

// negativePrefixes catch multi-word refusals before first-word matching, so
// "not invalidated" is not left to the JSON path.
var negativePrefixes = []string{
	"not invalidated",
	"does not invalidate",
	"no invalidation",
}

// CoerceDecision converts a free-form oracle response into a strict boolean.
// Recognized affirmative phrases yield true, recognized negative phrases
// false. JSON-ish payloads are repaired and scanned, later elements first.
// Everything else, including an empty response, yields false.
func CoerceDecision(response string) bool {
	cleaned := strings.ToLower(strings.TrimSpace(thinkTagPattern.ReplaceAllString(response, "")))
	if cleaned == "" {
		return false
	}
	if v, ok := matchPhrase(cleaned); ok {
		return v
	}
	if v, ok := coerceJSON(cleaned); ok {
		return v
	}
	return false
}

// matchPhrase classifies a response by its leading words.
func matchPhrase(cleaned string) (bool, bool) {
	for _, prefix := range negativePrefixes {
		if strings.HasPrefix(cleaned, prefix) {
			return false, true
		}
	}

	tok := strings.TrimFunc(strings.Fields(cleaned)[0], func(r rune) bool {
		return r < 'a' || r > 'z'
	})
	if affirmative[tok] {
		return true, true
	}
	if negative[tok] {
		return false, true
	}
	return false, false
}

// coerceJSON extracts a JSON payload from the response, repairs it, and
// scans it for a boolean-ish value.
func coerceJSON(cleaned string) (bool, bool) {
	payload := extractJSONCandidate(cleaned)
	if payload == "" {
		return false, false
	}

	repaired, err := jsonrepair.JSONRepair(payload)
	if err != nil {
		return false, false
	}
	var value interface{}
	if err := json.Unmarshal([]byte(repaired), &value); err != nil {
		return false, false
	}
	return scanValue(value)
}

// extractJSONCandidate returns the outermost {...} or [...] span, which also
// strips markdown code fences around the payload.
func extractJSONCandidate(s string) string {
	objStart, objEnd := strings.Index(s, "{"), strings.LastIndex(s, "}")
	arrStart, arrEnd := strings.Index(s, "["), strings.LastIndex(s, "]")

	if objStart != -1 && (arrStart == -1 || objStart < arrStart) {
		if objEnd > objStart {
			return s[objStart : objEnd+1]
		}
		// Truncated object; hand the tail to the repairer.
		return s[objStart:]
	}
	if arrStart != -1 {
		if arrEnd > arrStart {
			return s[arrStart : arrEnd+1]
		}
		return s[arrStart:]
	}
	return ""
}

// scanValue walks a decoded JSON value looking for a recognizable decision.
// Lists and objects are scanned from their last element backwards: models
// that emit reasoning followed by a verdict put the verdict last.
func scanValue(value interface{}) (bool, bool) {
	switch v := value.(type) {
	case bool:
		return v, true
	case string:
		s := strings.ToLower(strings.TrimSpace(v))
		if s == "" {
			return false, false
		}
		return matchPhrase(s)
	case float64:
		if v == 1 {
			return true, true
		}
		if v == 0 {
			return false, true
		}
		return false, false
	case []interface{}:
		for i := len(v) - 1; i >= 0; i-- {
			if decision, ok := scanValue(v[i]); ok {
				return decision, true
			}
		}
		return false, false
	case map[string]interface{}:
		// Well-known keys take precedence over a positional scan.
		for _, key := range []string{"is_invalidated", "invalidated", "result", "answer", "decision", "verdict"} {
			if inner, present := v[key]; present {
				if decision, ok := scanValue(inner); ok {
					return decision, true
				}
			}
		}
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for i := len(keys) - 1; i >= 0; i-- {
			if decision, ok := scanValue(v[keys[i]]); ok {
				return decision, true
			}
		}
		return false, false
	default:
		return false, false
	}
}

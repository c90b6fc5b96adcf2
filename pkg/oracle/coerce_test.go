package oracle

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCoerceDecisionPhrases(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     bool
	}{
		{"bare true", "True", true},
		{"bare false", "False", false},
		{"lowercase true with period", "true.", true},
		{"yes", "Yes", true},
		{"yes with elaboration", "Yes, the primary fact is invalidated.", true},
		{"no", "no", false},
		{"invalidated", "Invalidated", true},
		{"not invalidated", "Not invalidated, the facts are compatible.", false},
		{"does not invalidate", "does not invalidate the primary fact", false},
		{"uppercase shouting", "TRUE", true},
		{"leading whitespace", "   True\n", true},
		{"think tags stripped", "<think>weighing both facts here</think>True", true},
		{"think tags around false", "<think>True seems wrong</think>\nFalse", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CoerceDecision(tt.response))
		})
	}
}

func TestCoerceDecisionJSONPayloads(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     bool
	}{
		{"object result true", `{"result": true}`, true},
		{"object result false", `{"result": false}`, false},
		{"object invalidated string", `{"invalidated": "yes"}`, true},
		{"object well-known key wins", `{"reasoning": "no overlap", "answer": true}`, true},
		{"array later element wins", `[false, true]`, true},
		{"array later string wins", `["true", "false"]`, false},
		{"numeric one", `{"result": 1}`, true},
		{"numeric zero", `{"result": 0}`, false},
		{"fenced payload", "```json\n{\"verdict\": \"True\"}\n```", true},
		{"single quoted payload", `{'answer': 'yes'}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CoerceDecision(tt.response))
		})
	}
}

// Every ambiguous or absent response must coerce to false: the engine never
// invalidates on an uncertain signal.
func TestCoerceDecisionFailsClosed(t *testing.T) {
	ambiguous := []string{
		"",
		"   ",
		"maybe",
		"perhaps the fact changed",
		"I cannot determine this from the given information.",
		"the two statements are unrelated",
		"42",
		`{"reasoning": "unclear"}`,
		`[]`,
		`{}`,
		"null",
		"<think>only reasoning, no verdict</think>",
	}

	for _, response := range ambiguous {
		assert.False(t, CoerceDecision(response), "response %q must fail closed", response)
	}
}

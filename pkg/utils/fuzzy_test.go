package utils_test

import (
	"testing"

	"github.com/soundprediction/reconcile/pkg/utils"
	"github.com/stretchr/testify/assert"
)

func TestCleanName(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"TrackRec", "trackrec"},
		{"Track Rec", "trackrec"},
		{"O'Brien & Co.", "obrienco"},
		{"  spaced  out  ", "spacedout"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, utils.CleanName(tt.input), "CleanName(%q)", tt.input)
	}
}

func TestLevenshtein(t *testing.T) {
	assert.Equal(t, 0, utils.Levenshtein("abc", "abc"))
	assert.Equal(t, 3, utils.Levenshtein("", "abc"))
	assert.Equal(t, 3, utils.Levenshtein("kitten", "sitting"))
	assert.Equal(t, 1, utils.Levenshtein("trackrec", "track rec"))
}

func TestRatio(t *testing.T) {
	assert.Equal(t, 100.0, utils.Ratio("same", "same"))
	assert.Equal(t, 0.0, utils.Ratio("", "something"))
	assert.InDelta(t, 57.14, utils.Ratio("kitten", "sitting"), 0.01)
}

func TestPartialRatio(t *testing.T) {
	t.Run("substring scores 100", func(t *testing.T) {
		assert.Equal(t, 100.0, utils.PartialRatio("tr", "trackrec"))
	})

	t.Run("spacing variant stays above clustering threshold", func(t *testing.T) {
		score := utils.PartialRatio("trackrec", "track rec")
		assert.GreaterOrEqual(t, score, 80.0)
	})

	t.Run("single typo stays above clustering threshold", func(t *testing.T) {
		score := utils.PartialRatio("trakrec", "trackrec")
		assert.GreaterOrEqual(t, score, 80.0)
	})

	t.Run("unrelated names score low", func(t *testing.T) {
		assert.Less(t, utils.PartialRatio("alpha", "omega"), 50.0)
	})

	t.Run("empty input scores zero", func(t *testing.T) {
		assert.Equal(t, 0.0, utils.PartialRatio("", "anything"))
	})

	t.Run("symmetric", func(t *testing.T) {
		a, b := "Track Rec", "TrackRec"
		assert.Equal(t, utils.PartialRatio(a, b), utils.PartialRatio(b, a))
	})
}

func TestAcronym(t *testing.T) {
	assert.Equal(t, "tr", utils.Acronym("Track Rec"))
	assert.Equal(t, "ibm", utils.Acronym("International Business Machines"))
	assert.Equal(t, "", utils.Acronym("TrackRec"), "single-word names have no acronym")
	assert.Equal(t, "", utils.Acronym(""))
}

func TestFuzzyEligible(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"TrackRec", true},
		{"Track Rec", true},
		{"Acme Industrial Holdings", true},
		{"TR", false},
		{"IBM", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, utils.FuzzyEligible(tt.name), "FuzzyEligible(%q)", tt.name)
	}
}

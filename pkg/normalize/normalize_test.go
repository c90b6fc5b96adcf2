package normalize_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/soundprediction/reconcile/pkg/normalize"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		wantSlug   string
		wantTokens []string
	}{
		{
			name:       "multi word title",
			input:      "Senior Software Engineer",
			wantSlug:   "senior-software-engineer",
			wantTokens: []string{"senior", "software", "engineer"},
		},
		{
			name:       "punctuation becomes separators",
			input:      "VP, Engineering & Ops",
			wantSlug:   "vp-engineering-ops",
			wantTokens: []string{"vp", "engineering", "ops"},
		},
		{
			name:       "stop words dropped",
			input:      "The Head of Engineering",
			wantSlug:   "head-engineering",
			wantTokens: []string{"head", "engineering"},
		},
		{
			name:       "synonym substitution",
			input:      "Client",
			wantSlug:   "customer",
			wantTokens: []string{"customer"},
		},
		{
			name:       "plural synonym converges with singular",
			input:      "Clients",
			wantSlug:   "customer",
			wantTokens: []string{"customer"},
		},
		{
			name:       "ies plural",
			input:      "Companies",
			wantSlug:   "company",
			wantTokens: []string{"company"},
		},
		{
			name:       "ses plural keeps the e",
			input:      "Databases",
			wantSlug:   "database",
			wantTokens: []string{"database"},
		},
		{
			name:       "trailing s dropped on long tokens",
			input:      "Designers",
			wantSlug:   "designer",
			wantTokens: []string{"designer"},
		},
		{
			name:       "short tokens keep trailing s",
			input:      "GPS",
			wantSlug:   "gps",
			wantTokens: []string{"gps"},
		},
		{
			name:       "compact name unchanged",
			input:      "TrackRec",
			wantSlug:   "trackrec",
			wantTokens: []string{"trackrec"},
		},
		{
			name:       "spaced variant keeps token boundary",
			input:      "Track Rec",
			wantSlug:   "track-rec",
			wantTokens: []string{"track", "rec"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			slug, tokens := normalize.Normalize(tt.input)
			assert.Equal(t, tt.wantSlug, slug)
			assert.Equal(t, tt.wantTokens, tokens)
		})
	}
}

func TestNormalizeFallbacks(t *testing.T) {
	t.Run("all stop words falls back to raw slug", func(t *testing.T) {
		slug, tokens := normalize.Normalize("The Of And")
		assert.Equal(t, "the-of-and", slug)
		assert.Nil(t, tokens)
	})

	t.Run("punctuation only falls back to literal", func(t *testing.T) {
		slug, tokens := normalize.Normalize("!!! --- !!!")
		assert.Equal(t, normalize.FallbackSlug, slug)
		assert.Nil(t, tokens)
	})

	t.Run("empty input falls back to literal", func(t *testing.T) {
		slug, tokens := normalize.Normalize("")
		assert.Equal(t, normalize.FallbackSlug, slug)
		assert.Nil(t, tokens)
	})
}

func TestNormalizeDeterministic(t *testing.T) {
	first, _ := normalize.Normalize("Acme Holding Companies, Inc.")
	for i := 0; i < 5; i++ {
		again, _ := normalize.Normalize("Acme Holding Companies, Inc.")
		assert.Equal(t, first, again)
	}
}

func TestSlug(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Hello, World!", "hello-world"},
		{"  spaced   out  ", "spaced-out"},
		{"--leading and trailing--", "leading-and-trailing"},
		{"MixedCase123", "mixedcase123"},
		{"???", ""},
		{"", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, normalize.Slug(tt.input), "Slug(%q)", tt.input)
	}
}

// Package normalize turns raw entity-mention text into canonical slugs.
//
// Normalization is a pure text transform: it never consults storage and
// never fails. Two mentions of the same real-world thing should normalize
// to the same slug whenever simple lexical rules can tell; anything beyond
// that is the canonicalizer's job.
package normalize

import (
	"strings"
	"unicode"
)

// FallbackSlug is used when a mention carries no usable characters at all.
const FallbackSlug = "entity"

// stopWords are dropped from mentions before slug assembly.
var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"by": {}, "for": {}, "from": {}, "in": {}, "is": {}, "it": {}, "of": {},
	"on": {}, "or": {}, "the": {}, "to": {}, "was": {}, "with": {},
}

// synonyms maps common business vocabulary onto one preferred form. Plural
// keys are listed explicitly because synonym substitution runs before
// de-pluralization.
var synonyms = map[string]string{
	"client":  "customer",
	"clients": "customers",
	"org":     "organization",
	"orgs":    "organizations",
	"dept":    "department",
	"depts":   "departments",
	"mgr":     "manager",
	"mgrs":    "managers",
	"info":    "information",
}

// Normalize returns the canonical slug for a mention together with the
// surviving tokens. The pipeline is: lowercase, strip punctuation to spaces,
// split, drop stop-words, substitute synonyms, de-pluralize, join with
// hyphens. When every token is filtered out it falls back to a
// punctuation-collapsed slug of the original text, or FallbackSlug.
func Normalize(name string) (string, []string) {
	fields := strings.Fields(stripPunctuation(strings.ToLower(name)))

	tokens := make([]string, 0, len(fields))
	for _, tok := range fields {
		if _, stop := stopWords[tok]; stop {
			continue
		}
		if syn, ok := synonyms[tok]; ok {
			tok = syn
		}
		tokens = append(tokens, singularize(tok))
	}

	if len(tokens) == 0 {
		if s := Slug(name); s != "" {
			return s, nil
		}
		return FallbackSlug, nil
	}
	return strings.Join(tokens, "-"), tokens
}

// Slug lowercases text and collapses every punctuation run into a single
// hyphen. Unlike Normalize it keeps stop-words, so it is usable as a
// fallback for mentions made entirely of them.
func Slug(text string) string {
	var b strings.Builder
	pendingHyphen := false
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
		} else {
			pendingHyphen = true
		}
	}
	return b.String()
}

func stripPunctuation(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte(' ')
		}
	}
	return b.String()
}

// singularize applies suffix rules only; it has no dictionary. Tokens must
// keep a non-empty stem, hence the length guards.
func singularize(tok string) string {
	switch {
	case strings.HasSuffix(tok, "ies") && len(tok) > 3:
		return tok[:len(tok)-3] + "y"
	case strings.HasSuffix(tok, "ses") && len(tok) > 3:
		return tok[:len(tok)-1]
	case strings.HasSuffix(tok, "s") && len(tok) > 3:
		return tok[:len(tok)-1]
	}
	return tok
}

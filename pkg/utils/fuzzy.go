package utils

import (
	"strings"
	"unicode"
)

const (
	// MinFuzzyNameLength and MinFuzzyTokenCount gate which names take part
	// in partial-ratio comparison. Short single-token names ("TR", "IBM")
	// score spuriously high against any string containing their letters,
	// so they are matched through the stricter acronym path instead.
	MinFuzzyNameLength = 6
	MinFuzzyTokenCount = 2
)

// CleanName lowercases a name and strips everything but letters and digits.
// Spelling variants like "TrackRec" and "Track Rec" clean to the same form.
func CleanName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// nameTokens splits a name into lowercase alphanumeric words.
func nameTokens(name string) []string {
	lowered := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, name)
	return strings.Fields(lowered)
}

// FuzzyEligible reports whether a name carries enough signal for
// partial-ratio clustering.
func FuzzyEligible(name string) bool {
	if len([]rune(CleanName(name))) >= MinFuzzyNameLength {
		return true
	}
	return len(nameTokens(name)) >= MinFuzzyTokenCount
}

// Acronym returns the lowercase initial letters of a multi-word name, or ""
// when the name has fewer than two words.
func Acronym(name string) string {
	tokens := nameTokens(name)
	if len(tokens) < 2 {
		return ""
	}
	var b strings.Builder
	for _, tok := range tokens {
		b.WriteByte(tok[0])
	}
	return b.String()
}

// Levenshtein returns the edit distance between two strings, counted in
// runes.
func Levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			del := prev[j] + 1
			ins := curr[j-1] + 1
			sub := prev[j-1] + cost
			min := del
			if ins < min {
				min = ins
			}
			if sub < min {
				min = sub
			}
			curr[j] = min
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

// Ratio returns the normalized Levenshtein similarity of two strings on a
// 0-100 scale.
func Ratio(a, b string) float64 {
	if a == b {
		return 100
	}
	la, lb := len([]rune(a)), len([]rune(b))
	if la == 0 || lb == 0 {
		return 0
	}
	longer := la
	if lb > longer {
		longer = lb
	}
	return (1 - float64(Levenshtein(a, b))/float64(longer)) * 100
}

// PartialRatio returns the best Ratio between the shorter string and any
// equal-length window of the longer one, on a 0-100 scale. A short string
// contained verbatim in a longer one scores 100. The full-string Ratio is
// included in the maximum so single-rune insertions in the longer string
// are not over-penalized by the window alignment.
func PartialRatio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 || len(rb) == 0 {
		return 0
	}
	if len(ra) > len(rb) {
		ra, rb = rb, ra
	}

	best := Ratio(string(ra), string(rb))
	for i := 0; i+len(ra) <= len(rb); i++ {
		score := Ratio(string(ra), string(rb[i:i+len(ra)]))
		if score > best {
			best = score
		}
		if best == 100 {
			break
		}
	}
	return best
}

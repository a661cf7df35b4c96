// Package planner turns user input into an instance plan and materializes
// it: deciding, syncing, and resolving dependencies.
package planner

import (
	"regexp"
	"sort"
	"strings"
)

// titleStopwords are dropped during title normalization. Schedule words and
// fillers carry no task identity.
var titleStopwords = map[string]bool{
	"a": true, "an": true, "the": true, "for": true, "to": true, "of": true,
	"and": true, "or": true, "in": true, "on": true, "at": true, "with": true,
	"daily": true, "weekly": true, "monthly": true, "every": true, "each": true,
	"task": true, "job": true, "new": true, "please": true,
}

var (
	parenPattern    = regexp.MustCompile(`\([^)]*\)`)
	nonLetterRunPat = regexp.MustCompile(`[^a-z\p{Han}\s]+`)
	spaceRunPattern = regexp.MustCompile(`\s+`)
)

// NormalizeTitle strips digits, punctuation, parenthesised qualifiers, and
// stopwords, returning the lowercase token form used for comparison.
func NormalizeTitle(title string) string {
	s := strings.ToLower(title)
	s = parenPattern.ReplaceAllString(s, " ")
	s = nonLetterRunPat.ReplaceAllString(s, " ")
	s = spaceRunPattern.ReplaceAllString(s, " ")

	var kept []string
	for _, tok := range strings.Fields(s) {
		if titleStopwords[tok] {
			continue
		}
		kept = append(kept, tok)
	}
	return strings.Join(kept, " ")
}

// bigrams returns the character bigram set of s, whitespace excluded.
func bigrams(s string) map[string]bool {
	runes := []rune(strings.ReplaceAll(s, " ", ""))
	out := map[string]bool{}
	for i := 0; i+1 < len(runes); i++ {
		out[string(runes[i:i+2])] = true
	}
	return out
}

// BigramJaccard computes the Jaccard index over character bigrams of two
// normalized strings.
func BigramJaccard(a, b string) float64 {
	ba, bb := bigrams(a), bigrams(b)
	if len(ba) == 0 || len(bb) == 0 {
		return 0
	}
	inter := 0
	for g := range ba {
		if bb[g] {
			inter++
		}
	}
	union := len(ba) + len(bb) - inter
	return float64(inter) / float64(union)
}

// TokenJaccard computes the Jaccard index over whitespace tokens.
func TokenJaccard(a, b string) float64 {
	ta := tokenSet(a)
	tb := tokenSet(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	inter := 0
	for t := range ta {
		if tb[t] {
			inter++
		}
	}
	union := len(ta) + len(tb) - inter
	return float64(inter) / float64(union)
}

func tokenSet(s string) map[string]bool {
	out := map[string]bool{}
	for _, t := range strings.Fields(s) {
		out[t] = true
	}
	return out
}

// SimilarTitles reports whether two raw job titles describe the same task.
// Signals, any of which is a hit: equal normalized forms, token overlap at
// or above threshold, substring containment when the shorter normalized form
// has length >= 4, and character-bigram Jaccard at or above threshold.
func SimilarTitles(a, b string, threshold float64) bool {
	na, nb := NormalizeTitle(a), NormalizeTitle(b)
	if na == "" || nb == "" {
		return false
	}
	if na == nb {
		return true
	}
	if TokenJaccard(na, nb) >= threshold {
		return true
	}
	shorter, longer := na, nb
	if len(shorter) > len(longer) {
		shorter, longer = longer, shorter
	}
	if len(shorter) >= 4 && strings.Contains(longer, shorter) {
		return true
	}
	return BigramJaccard(na, nb) >= threshold
}

// FindSimilarTitle returns the first existing title similar to the
// candidate, scanning in a stable order.
func FindSimilarTitle(candidate string, existing map[string]string, threshold float64) (id string, ok bool) {
	ids := make([]string, 0, len(existing))
	for k := range existing {
		ids = append(ids, k)
	}
	sort.Strings(ids)
	for _, k := range ids {
		if SimilarTitles(candidate, existing[k], threshold) {
			return k, true
		}
	}
	return "", false
}

package medication

import (
	"strings"
)

// maxEditDistance is the Levenshtein bound under which two normalized
// names are considered the same drug. Distance 2 tolerates single-character
// typos and minor transpositions ("Ampicilin" vs "Ampicillin").
const maxEditDistance = 2

// fuzzyPrefixLen is the number of leading characters that must agree
// before a fuzzy match is accepted. Dictation typos cluster late in a
// drug name; distinct drugs in the same class diverge early, so
// "Amoxicillin" never matches "Ampicillin" even at distance 2.
const fuzzyPrefixLen = 4

// Matcher finds medications in an existing list that plausibly refer to
// the same drug as a given name. Only active records are considered.
type Matcher struct{}

// NewMatcher creates a matcher.
func NewMatcher() *Matcher { return &Matcher{} }

// FindBestMatch returns the first active record matching name, trying
// tiers in order: exact case-insensitive equality, equality after
// normalization, then Levenshtein distance within maxEditDistance on the
// normalized forms. Returns nil when no tier matches.
func (m *Matcher) FindBestMatch(name string, meds []*Record) *Record {
	for _, rec := range meds {
		if rec.IsActive && strings.EqualFold(rec.Name, name) {
			return rec
		}
	}

	norm := Normalize(name)
	for _, rec := range meds {
		if rec.IsActive && strings.EqualFold(Normalize(rec.Name), norm) {
			return rec
		}
	}

	lower := strings.ToLower(norm)
	for _, rec := range meds {
		if !rec.IsActive {
			continue
		}
		if fuzzyMatch(lower, strings.ToLower(Normalize(rec.Name))) {
			return rec
		}
	}
	return nil
}

// FindAllMatches returns every active record satisfying any tier, in list
// order. Used for stop-command resolution, where ambiguity must be
// surfaced rather than silently resolved.
func (m *Matcher) FindAllMatches(name string, meds []*Record) []*Record {
	norm := Normalize(name)
	lower := strings.ToLower(norm)

	var matches []*Record
	for _, rec := range meds {
		if !rec.IsActive {
			continue
		}
		if strings.EqualFold(rec.Name, name) {
			matches = append(matches, rec)
			continue
		}
		recNorm := Normalize(rec.Name)
		if strings.EqualFold(recNorm, norm) {
			matches = append(matches, rec)
			continue
		}
		if fuzzyMatch(lower, strings.ToLower(recNorm)) {
			matches = append(matches, rec)
		}
	}
	return matches
}

// fuzzyMatch reports whether two lowercased normalized names are close
// enough to be the same drug: within maxEditDistance edits, and agreeing
// on the leading fuzzyPrefixLen characters.
func fuzzyMatch(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	n := fuzzyPrefixLen
	if len(a) < n || len(b) < n {
		n = min3(len(a), len(b), n)
	}
	if a[:n] != b[:n] {
		return false
	}
	return levenshtein(a, b) <= maxEditDistance
}

// levenshtein computes edit distance with the standard O(n*m) DP table.
// Drug names are short (<40 chars) so no early termination is needed.
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := 0; j <= len(rb); j++ {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}

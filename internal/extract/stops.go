// Package extract turns free-text clinical notes into structured
// medication commands. It defines the extraction oracle contract, a
// network-backed primary oracle, a deterministic regex fallback, and the
// stop-command detector that runs over every note regardless of which
// oracle produced the commands.
package extract

import (
	"regexp"
	"strings"

	"github.com/carenote/medrec/internal/domain/medication"
)

// Stop instructions surface in three shapes, scanned independently of the
// medications-section parse so a "stop X" buried in the narrative is
// never missed. The passive form captures words BEFORE the verb, so its
// span can pick up narrative leading into the drug name and needs suffix
// resolution; the other two capture after the verb and only carry
// trailing filler.
var stopPatterns = []struct {
	re      *regexp.Regexp
	passive bool
}{
	// "stop Gentamicin", "discontinue vanco today", "D/C dopamine", "hold caffeine"
	{re: regexp.MustCompile(`(?im)\b(?:stop|discontinue|d/?c|hold|cease)\s+([a-z][a-z\-]+(?:[ \t]+[a-z][a-z\-]+){0,2})`)},
	// "Gentamicin stopped", "Magnesium sulphate discontinued"
	{re: regexp.MustCompile(`(?im)\b([a-z][a-z\-]{2,40}(?:[ \t]+[a-z][a-z\-]+){0,2})\s+(?:stopped|discontinued|held)\b`), passive: true},
	// "Stop: Gentamicin", "Discontinue: vanco"
	{re: regexp.MustCompile(`(?im)\b(?:stop|discontinue)\s*:\s*([a-z][a-z\-]+(?:[ \t]+[a-z][a-z\-]+){0,2})`)},
}

// fillerWords are trailing words that ride along with a stop instruction
// but are not part of the drug name. Stripped repeatedly from the right
// so "vancomycin today given" collapses to the drug alone.
var fillerWords = map[string]bool{
	"today":       true,
	"now":         true,
	"immediately": true,
	"asap":        true,
	"and":         true,
	"for":         true,
	"given":       true,
	"per":         true,
	"if":          true,
	"as":          true,
	"due":         true,
	"once":        true,
}

// StopDetector scans raw note text for discontinue/hold instructions.
type StopDetector struct{}

// NewStopDetector creates a detector.
func NewStopDetector() *StopDetector { return &StopDetector{} }

// Detect returns the normalized names of every medication the note asks
// to stop, deduplicated, in first-mention order. Captured spans have
// trailing filler words removed; names shorter than three characters are
// discarded as noise.
func (d *StopDetector) Detect(text string) []string {
	seen := make(map[string]bool)
	var stops []string

	for _, p := range stopPatterns {
		for _, match := range p.re.FindAllStringSubmatch(text, -1) {
			name := trimFiller(strings.TrimSpace(match[1]))
			if p.passive {
				name = resolvePassiveSpan(name)
			}
			if len(name) < 3 {
				continue
			}
			normalized := medication.Normalize(name)
			if len(normalized) < 3 || seen[normalized] {
				continue
			}
			seen[normalized] = true
			stops = append(stops, normalized)
		}
	}
	return stops
}

// resolvePassiveSpan picks the drug name out of a multi-word span
// captured before a passive verb. The longest suffix that normalizes to
// a known drug wins, so "negative cultures magnesium sulphate" yields
// "magnesium sulphate"; when no suffix is known the last word is taken,
// which covers single-word drugs outside the alias table.
func resolvePassiveSpan(span string) string {
	words := strings.Fields(span)
	if len(words) <= 1 {
		return span
	}
	for i := 0; i < len(words)-1; i++ {
		cand := strings.Join(words[i:], " ")
		if medication.IsKnownDrug(medication.Normalize(cand)) {
			return cand
		}
	}
	return words[len(words)-1]
}

// trimFiller strips trailing filler words from a captured drug-name span.
func trimFiller(name string) string {
	words := strings.Fields(name)
	for len(words) > 0 && fillerWords[strings.ToLower(words[len(words)-1])] {
		words = words[:len(words)-1]
	}
	return strings.Join(words, " ")
}

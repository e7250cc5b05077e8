package extract

import (
	"context"
	"regexp"
	"strings"

	"github.com/carenote/medrec/internal/domain/medication"
)

// Confidence assigned to fallback-extracted commands. Deliberately below
// the primary oracle's range: a regex match is weaker evidence than a
// language model's reading of the sentence.
const (
	confidenceStructured = 0.8
	confidenceNameOnly   = 0.6
)

var (
	// Medications section up to the next heading or end of text.
	medsSectionRe = regexp.MustCompile(`(?is)medications?\s*:[ \t]*\n?(.*?)(?:\n[ \t]*[a-z][a-z /]{1,30}:|\z)`)

	// Leading bullet markers and numbering on a medication line.
	bulletRe = regexp.MustCompile(`^[\s>*•\-–]+|^\d+[.)]\s*`)

	// Dosage-form prefix on a line: "Inj. Ampicillin ...".
	lineFormPrefixRe = regexp.MustCompile(`(?i)^(?:inj|tab|syp|cap|injection|tablet|syrup|capsule)\.?\s+`)

	// Structured order: name, dose, optional route, optional frequency.
	orderRe = regexp.MustCompile(`(?i)^([a-z][a-z\s\-]{1,48}?)\s+(\d+(?:\.\d+)?\s*(?:mg|mcg|ml|g|units?|iu)(?:/[a-z0-9]+)*)(?:\s+(iv|im|po|oral|sc|subcut|pr|ng|nebulized|topical))?(?:\s+(od|bd|tds|qid|q\d+h|once daily|twice daily|three times daily|daily|weekly|stat|prn))?\.?\s*$`)

	// Name-only fallback when the structured pattern fails.
	nameOnlyRe = regexp.MustCompile(`(?i)^([a-z][a-z\s\-]{2,49})\.?$`)
)

// trailingStopWords are sentence glue that a sloppy line boundary can
// leave attached to a drug name.
var trailingStopWords = map[string]bool{
	"at": true, "with": true, "for": true, "in": true, "on": true,
	"to": true, "and": true, "or": true, "the": true,
}

// RegexOracle is the deterministic, network-independent fallback
// extractor. It parses the "Medications:" section of a note line by line
// and delegates stop detection to StopDetector over the full note.
type RegexOracle struct {
	stops *StopDetector
}

// NewRegexOracle creates the fallback oracle.
func NewRegexOracle() *RegexOracle {
	return &RegexOracle{stops: NewStopDetector()}
}

// Name implements Oracle.
func (o *RegexOracle) Name() string { return MethodFallback }

// Extract implements Oracle. It never fails and never touches the
// network; a note without a parseable medications section simply yields
// zero commands.
func (o *RegexOracle) Extract(_ context.Context, note string, _ PatientContext) (*Extraction, error) {
	ext := &Extraction{
		StoppedNames: o.stops.Detect(note),
	}

	section := medsSectionRe.FindStringSubmatch(note)
	if section == nil {
		return ext, nil
	}

	for _, line := range strings.Split(section[1], "\n") {
		if cmd := o.parseLine(line); cmd != nil {
			ext.Commands = append(ext.Commands, cmd)
		}
	}
	return ext, nil
}

// parseLine attempts the structured pattern first, then the name-only
// fallback. Lines continuing current therapy produce no command.
func (o *RegexOracle) parseLine(raw string) *medication.Command {
	line := strings.TrimSpace(raw)
	if line == "" || strings.Contains(strings.ToLower(line), "continue current") {
		return nil
	}

	line = bulletRe.ReplaceAllString(line, "")
	line = lineFormPrefixRe.ReplaceAllString(line, "")
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}

	if m := orderRe.FindStringSubmatch(line); m != nil {
		name := trimStopWords(strings.TrimSpace(m[1]))
		if len(name) >= 3 {
			return &medication.Command{
				Name:          name,
				Dose:          strings.TrimSpace(m[2]),
				Route:         strings.ToUpper(strings.TrimSpace(m[3])),
				Frequency:     strings.ToLower(strings.TrimSpace(m[4])),
				Action:        medication.ActionAdd,
				Confidence:    confidenceStructured,
				SourceSnippet: strings.TrimSpace(raw),
			}
		}
	}

	if m := nameOnlyRe.FindStringSubmatch(line); m != nil {
		name := trimStopWords(strings.TrimSpace(m[1]))
		if len(name) >= 3 && len(name) < 50 {
			return &medication.Command{
				Name:          name,
				Dose:          medication.DoseAsPrescribed,
				Action:        medication.ActionAdd,
				Confidence:    confidenceNameOnly,
				SourceSnippet: strings.TrimSpace(raw),
			}
		}
	}

	return nil
}

// trimStopWords removes trailing glue words from a captured name.
func trimStopWords(name string) string {
	words := strings.Fields(name)
	for len(words) > 0 && trailingStopWords[strings.ToLower(words[len(words)-1])] {
		words = words[:len(words)-1]
	}
	return strings.Join(words, " ")
}

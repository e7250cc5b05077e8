package medication

import (
	"regexp"
	"strings"
	"unicode"
)

// minNameLen is the shortest drug name the engine will act on. Anything
// shorter is treated as extraction noise and dropped.
const minNameLen = 3

var (
	// Leading dosage-form prefix: "Inj. Ampicillin", "tab paracetamol".
	formPrefixRe = regexp.MustCompile(`(?i)^(?:inj|tab|syp|cap|injection|tablet|syrup|capsule)\.?\s+`)
	// Trailing embedded dose and anything after it: "Ampicillin 100mg/kg q12h".
	embeddedDoseRe = regexp.MustCompile(`(?i)\s+\d+(?:\.\d+)?\s*(?:mg|mcg|ml|g|units?|iu)(?:/\S+)*(?:\s+.*)?$`)
	// A bare dose with no drug name left of it: "Inj. 100mg" after prefix
	// stripping reduces to "100mg", which is not a name at all.
	bareDoseRe = regexp.MustCompile(`(?i)^\d+(?:\.\d+)?\s*(?:mg|mcg|ml|g|units?|iu)(?:/\S+)*$`)
	// Trailing dosage-form noun: "Ampicillin injection".
	formSuffixRe = regexp.MustCompile(`(?i)\s+(?:injection|tablet|syrup|capsule)$`)
)

// drugAliases maps common clinical shorthand to the canonical full name.
// Keys are in post-title-case form; the table is fixed and covers the ICU
// drugs dictating clinicians most often abbreviate.
var drugAliases = map[string]string{
	"Amp":        "Ampicillin",
	"Gent":       "Gentamicin",
	"Genta":      "Gentamicin",
	"Vanco":      "Vancomycin",
	"Amika":      "Amikacin",
	"Cefo":       "Cefotaxime",
	"Ceftri":     "Ceftriaxone",
	"Mero":       "Meropenem",
	"Pip-taz":    "Piperacillin-tazobactam",
	"Piptaz":     "Piperacillin-tazobactam",
	"Fluco":      "Fluconazole",
	"Ampho":      "Amphotericin B",
	"Dopa":       "Dopamine",
	"Dobu":       "Dobutamine",
	"Adr":        "Adrenaline",
	"Noradr":     "Noradrenaline",
	"Phenobarb":  "Phenobarbitone",
	"Levetira":   "Levetiracetam",
	"Mgso4":      "Magnesium sulphate",
	"Nahco3":     "Sodium bicarbonate",
	"Kcl":        "Potassium chloride",
	"Paracet":    "Paracetamol",
	"Ibu":        "Ibuprofen",
	"Hydrocort":  "Hydrocortisone",
	"Dexa":       "Dexamethasone",
	"Surf":       "Surfactant",
	"Aminophyll": "Aminophylline",
}

// knownDrugs is the set of canonical names the alias table resolves to.
var knownDrugs = func() map[string]bool {
	set := make(map[string]bool, len(drugAliases))
	for _, canonical := range drugAliases {
		set[canonical] = true
	}
	return set
}()

// IsKnownDrug reports whether name is a canonical drug name from the
// alias table. Used to pick the drug out of a multi-word capture; names
// outside the table are still valid, just not recognizable here.
func IsKnownDrug(name string) bool {
	return knownDrugs[name]
}

// Normalize canonicalizes a raw drug-name token into a comparable form.
// It strips a leading dosage-form prefix, a trailing embedded dose
// expression, and a trailing dosage-form noun, then title-cases the result
// and applies the alias table. It is pure and deterministic; all matching
// in this package is built on it. Empty or whitespace-only input
// normalizes to "".
func Normalize(raw string) string {
	name := strings.TrimSpace(raw)
	if name == "" {
		return ""
	}

	name = formPrefixRe.ReplaceAllString(name, "")
	name = embeddedDoseRe.ReplaceAllString(name, "")
	name = formSuffixRe.ReplaceAllString(name, "")
	name = strings.TrimSpace(name)
	if name == "" || bareDoseRe.MatchString(name) {
		return ""
	}

	name = titleCase(name)

	if canonical, ok := drugAliases[name]; ok {
		return canonical
	}
	return name
}

// titleCase uppercases the first rune and lowercases the rest.
func titleCase(s string) string {
	runes := []rune(strings.ToLower(s))
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

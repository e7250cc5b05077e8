package extract

import (
	"context"
	"errors"

	"github.com/carenote/medrec/internal/domain/medication"
)

// PatientContext is the compact patient block sent alongside the note.
// It is context for the oracle, not an input it must consult.
type PatientContext struct {
	Age                int                  `json:"age,omitempty"`
	AgeUnit            string               `json:"age_unit,omitempty"`
	CareUnit           string               `json:"care_unit,omitempty"`
	Diagnosis          string               `json:"diagnosis,omitempty"`
	CurrentMedications []*medication.Record `json:"current_medications,omitempty"`
}

// Extraction is the output of one oracle call: the parsed drug commands
// plus the names of medications the note asks to stop.
type Extraction struct {
	Commands     []*medication.Command `json:"commands"`
	StoppedNames []string              `json:"stopped_names"`
}

// Oracle converts unstructured clinical text into structured medication
// commands. Implementations: LLMOracle (network-backed primary) and
// RegexOracle (deterministic fallback). Additional oracles can be added
// without touching the reconciliation engine.
type Oracle interface {
	// Name identifies the oracle in extraction results and logs.
	Name() string
	Extract(ctx context.Context, note string, pctx PatientContext) (*Extraction, error)
}

// ErrMalformedResponse marks an oracle response that is not JSON or lacks
// a medications array. It is a failure of the oracle, not of the
// subsystem; the caller falls back.
var ErrMalformedResponse = errors.New("oracle response malformed")

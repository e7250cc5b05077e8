// Package medication implements the medication list domain: records,
// extracted commands, name normalization, fuzzy matching, and reconciliation.
package medication

import (
	"time"
)

// Action classifies what an extracted command asks the engine to do.
// ReconciliationEngine branches exhaustively over exactly these four values.
type Action string

const (
	ActionAdd      Action = "add"
	ActionContinue Action = "continue"
	ActionStop     Action = "stop"
	ActionUpdate   Action = "update"
)

// ParseAction maps a free-form action string onto the closed Action set.
// Unknown or empty strings default to ActionAdd, the safest interpretation
// for a medication mentioned in a note.
func ParseAction(s string) Action {
	switch Action(s) {
	case ActionAdd, ActionContinue, ActionStop, ActionUpdate:
		return Action(s)
	default:
		return ActionAdd
	}
}

// DoseAsPrescribed is the placeholder dose used when a statement names a
// medication without a parseable dose.
const DoseAsPrescribed = "As prescribed"

// Command is one parsed drug-order statement from a clinical note.
// Commands are transient: produced and consumed within a single
// extraction+reconciliation call.
type Command struct {
	// Name is the raw drug name as written, pre-normalization.
	Name      string  `json:"name"`
	Dose      string  `json:"dose"`
	Route     string  `json:"route,omitempty"`
	Frequency string  `json:"frequency,omitempty"`
	Action    Action  `json:"action"`
	// Confidence is the extractor's certainty in [0,1].
	Confidence float64 `json:"confidence"`
	// SourceSnippet is the verbatim text the command was derived from,
	// kept for the audit trail.
	SourceSnippet string `json:"source_snippet"`
}

// Record is one persisted order on a patient's medication list.
//
// A Record is never deleted by this engine; it is only created or marked
// inactive. At most one active record exists per canonical drug name.
// Creation provenance (StartDate, AddedBy, AddedAt) is immutable once set;
// stop provenance is set at most once.
type Record struct {
	ID        string `json:"id"`
	Name      string `json:"name"` // normalized canonical form
	Dose      string `json:"dose"`
	Route     string `json:"route,omitempty"`
	Frequency string `json:"frequency,omitempty"`
	IsActive  bool   `json:"is_active"`

	StartDate time.Time `json:"start_date"`
	AddedBy   string    `json:"added_by"`
	AddedAt   time.Time `json:"added_at"`

	LastUpdatedBy string     `json:"last_updated_by,omitempty"`
	LastUpdatedAt *time.Time `json:"last_updated_at,omitempty"`

	StopDate  *time.Time `json:"stop_date,omitempty"`
	StoppedBy string     `json:"stopped_by,omitempty"`
	StoppedAt *time.Time `json:"stopped_at,omitempty"`
}

// Metadata carries the provenance stamped onto records touched by one
// reconciliation call.
type Metadata struct {
	Actor     string
	Timestamp time.Time
}

// Result is the categorized diff produced by one reconciliation call.
// No record appears in more than one category.
type Result struct {
	Added     []*Record `json:"added"`
	Updated   []*Record `json:"updated"`
	Stopped   []*Record `json:"stopped"`
	Unchanged []*Record `json:"unchanged"`
	// Errors holds non-fatal warnings (ambiguous or unresolved stops).
	// The caller surfaces them to a reviewer; they never fail the call.
	Errors []string `json:"errors"`
}

// Flatten collapses a reconciliation result back into a single list for
// persistence: added ++ updated ++ stopped ++ unchanged, in that order.
// The ordering is a documented contract so downstream diff code can rely
// on newly created records appearing first.
func Flatten(res *Result) []*Record {
	out := make([]*Record, 0, len(res.Added)+len(res.Updated)+len(res.Stopped)+len(res.Unchanged))
	out = append(out, res.Added...)
	out = append(out, res.Updated...)
	out = append(out, res.Stopped...)
	out = append(out, res.Unchanged...)
	return out
}

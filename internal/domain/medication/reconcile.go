package medication

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Reconciler merges extracted commands against an existing medication
// list, producing a categorized diff. It has no side effects on the
// identity of its input slice: a working copy of the slice is taken
// internally, though records touched by a stop or update are mutated in
// place as value holders within the call.
type Reconciler struct {
	matcher *Matcher
	logger  *zap.Logger
}

// NewReconciler creates a reconciler.
func NewReconciler(logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		matcher: NewMatcher(),
		logger:  logger,
	}
}

// Reconcile applies stop commands first, then adds/updates, then sweeps
// everything untouched into Unchanged.
//
// Stops precede adds by construction: a same-note "stop X, start X"
// deactivates the prior active record and then creates a fresh one,
// never a single record that is both stopped and added.
func (r *Reconciler) Reconcile(commands []*Command, stoppedNames []string, existing []*Record, meta Metadata) *Result {
	res := &Result{}

	working := make([]*Record, len(existing))
	copy(working, existing)

	classified := make(map[*Record]bool)

	for _, raw := range stoppedNames {
		name := Normalize(raw)
		if len(name) < minNameLen {
			continue
		}

		matches := r.matcher.FindAllMatches(name, working)
		switch len(matches) {
		case 0:
			res.Errors = append(res.Errors, fmt.Sprintf("cannot stop %s: not found in current medications", name))

		case 1:
			r.deactivate(matches[0], meta)
			res.Stopped = append(res.Stopped, matches[0])
			classified[matches[0]] = true

		default:
			// Deterministic tie-break: most recent AddedAt wins,
			// list order breaks exact ties.
			target := matches[0]
			for _, m := range matches[1:] {
				if m.AddedAt.After(target.AddedAt) {
					target = m
				}
			}
			r.deactivate(target, meta)
			res.Stopped = append(res.Stopped, target)
			classified[target] = true
			res.Errors = append(res.Errors, fmt.Sprintf(
				"stop %s matched %d active records; stopped the most recent (added %s)",
				name, len(matches), target.AddedAt.Format(time.RFC3339)))
			r.logger.Warn("ambiguous stop command",
				zap.String("name", name),
				zap.Int("matches", len(matches)))
		}
	}

	for _, cmd := range commands {
		if cmd == nil || cmd.Action == ActionStop {
			continue
		}

		name := Normalize(cmd.Name)
		if len(name) < minNameLen {
			// Extraction noise, not worth surfacing.
			continue
		}

		match := r.matcher.FindBestMatch(name, working)
		if match == nil {
			rec := newRecord(cmd, name, meta)
			working = append(working, rec)
			res.Added = append(res.Added, rec)
			classified[rec] = true
			continue
		}

		if classified[match] {
			// Second mention of the same drug in one note; the first
			// command already placed the record in a category.
			continue
		}

		if cmd.Action == ActionContinue {
			res.Unchanged = append(res.Unchanged, match)
			classified[match] = true
			continue
		}

		// add or update against an active record: overwrite dose,
		// overwrite route/frequency only when supplied, preserve
		// creation provenance.
		if dose := cmd.Dose; dose != "" {
			match.Dose = dose
		} else {
			match.Dose = DoseAsPrescribed
		}
		if cmd.Route != "" {
			match.Route = cmd.Route
		}
		if cmd.Frequency != "" {
			match.Frequency = cmd.Frequency
		}
		ts := meta.Timestamp
		match.LastUpdatedBy = meta.Actor
		match.LastUpdatedAt = &ts

		res.Updated = append(res.Updated, match)
		classified[match] = true
	}

	for _, rec := range working {
		if !classified[rec] {
			res.Unchanged = append(res.Unchanged, rec)
		}
	}

	return res
}

// deactivate marks a record inactive and stamps stop provenance. Stop
// provenance is set at most once.
func (r *Reconciler) deactivate(rec *Record, meta Metadata) {
	rec.IsActive = false
	if rec.StoppedAt == nil {
		ts := meta.Timestamp
		rec.StopDate = &ts
		rec.StoppedAt = &ts
		rec.StoppedBy = meta.Actor
	}
}

// newRecord creates a fresh active record from a command under the given
// canonical name.
func newRecord(cmd *Command, name string, meta Metadata) *Record {
	dose := cmd.Dose
	if dose == "" {
		dose = DoseAsPrescribed
	}
	return &Record{
		ID:        uuid.New().String(),
		Name:      name,
		Dose:      dose,
		Route:     cmd.Route,
		Frequency: cmd.Frequency,
		IsActive:  true,
		StartDate: meta.Timestamp,
		AddedBy:   meta.Actor,
		AddedAt:   meta.Timestamp,
	}
}

package medication

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/carenote/medrec/internal/infrastructure/postgres"
	"github.com/carenote/medrec/internal/infrastructure/redpanda"
)

// Repository persists patient medication lists. Records are upserted by
// ID, never deleted: a stopped medication stays on the list as an
// inactive row.
type Repository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewRepository creates a repository.
func NewRepository(pool *pgxpool.Pool, logger *zap.Logger) *Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository{pool: pool, logger: logger}
}

// List returns all medication records for a patient, active first, each
// group ordered by creation time.
func (r *Repository) List(ctx context.Context, patientID string) ([]*Record, error) {
	query := `
		SELECT id, name, dose, route, frequency, is_active,
		       start_date, added_by, added_at,
		       last_updated_by, last_updated_at,
		       stop_date, stopped_by, stopped_at
		FROM patient_medications
		WHERE patient_id = $1
		ORDER BY is_active DESC, added_at ASC
	`

	rows, err := r.pool.Query(ctx, query, patientID)
	if err != nil {
		return nil, fmt.Errorf("query medications: %w", err)
	}
	defer rows.Close()

	var meds []*Record
	for rows.Next() {
		rec := &Record{}
		var route, frequency, lastUpdatedBy, stoppedBy *string
		err := rows.Scan(
			&rec.ID, &rec.Name, &rec.Dose, &route, &frequency, &rec.IsActive,
			&rec.StartDate, &rec.AddedBy, &rec.AddedAt,
			&lastUpdatedBy, &rec.LastUpdatedAt,
			&rec.StopDate, &stoppedBy, &rec.StoppedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan medication: %w", err)
		}
		if route != nil {
			rec.Route = *route
		}
		if frequency != nil {
			rec.Frequency = *frequency
		}
		if lastUpdatedBy != nil {
			rec.LastUpdatedBy = *lastUpdatedBy
		}
		if stoppedBy != nil {
			rec.StoppedBy = *stoppedBy
		}
		meds = append(meds, rec)
	}
	return meds, rows.Err()
}

// AuditEvent is the payload written to the audit outbox for one
// reconciliation.
type AuditEvent struct {
	PatientID string    `json:"patient_id"`
	Actor     string    `json:"actor"`
	Timestamp time.Time `json:"timestamp"`
	Added     []string  `json:"added"`
	Updated   []string  `json:"updated"`
	Stopped   []string  `json:"stopped"`
	Warnings  []string  `json:"warnings,omitempty"`
}

// SaveReconciliation upserts the flattened result for a patient and, in
// the same transaction, writes an audit event to the outbox so the relay
// can publish it. The combined write keeps the medication list and its
// audit trail consistent.
func (r *Repository) SaveReconciliation(ctx context.Context, patientID string, res *Result, meta Metadata) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	upsert := `
		INSERT INTO patient_medications
			(id, patient_id, name, dose, route, frequency, is_active,
			 start_date, added_by, added_at,
			 last_updated_by, last_updated_at,
			 stop_date, stopped_by, stopped_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO UPDATE SET
			dose = EXCLUDED.dose,
			route = EXCLUDED.route,
			frequency = EXCLUDED.frequency,
			is_active = EXCLUDED.is_active,
			last_updated_by = EXCLUDED.last_updated_by,
			last_updated_at = EXCLUDED.last_updated_at,
			stop_date = EXCLUDED.stop_date,
			stopped_by = EXCLUDED.stopped_by,
			stopped_at = EXCLUDED.stopped_at
	`

	for _, rec := range Flatten(res) {
		_, err := tx.Exec(ctx, upsert,
			rec.ID, patientID, rec.Name, rec.Dose,
			nullable(rec.Route), nullable(rec.Frequency), rec.IsActive,
			rec.StartDate, rec.AddedBy, rec.AddedAt,
			nullable(rec.LastUpdatedBy), rec.LastUpdatedAt,
			rec.StopDate, nullable(rec.StoppedBy), rec.StoppedAt,
		)
		if err != nil {
			return fmt.Errorf("upsert medication %s: %w", rec.Name, err)
		}
	}

	event := AuditEvent{
		PatientID: patientID,
		Actor:     meta.Actor,
		Timestamp: meta.Timestamp,
		Added:     names(res.Added),
		Updated:   names(res.Updated),
		Stopped:   names(res.Stopped),
		Warnings:  res.Errors,
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	entry := &postgres.OutboxEntry{
		AggregateID:   patientID,
		AggregateType: "MedicationList",
		EventType:     "MedicationListReconciled",
		Payload:       payload,
		KafkaTopic:    redpanda.TopicAuditTrail,
		KafkaKey:      patientID,
	}
	if err := postgres.WriteEntry(ctx, tx, entry); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	r.logger.Info("reconciliation saved",
		zap.String("patient_id", patientID),
		zap.Int("added", len(res.Added)),
		zap.Int("updated", len(res.Updated)),
		zap.Int("stopped", len(res.Stopped)),
		zap.Int("warnings", len(res.Errors)),
	)
	return nil
}

func names(recs []*Record) []string {
	out := make([]string, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.Name)
	}
	return out
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

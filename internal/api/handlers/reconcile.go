// Package handlers provides HTTP handlers for the reconciliation API.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/carenote/medrec/internal/api/middleware"
	"github.com/carenote/medrec/internal/domain/medication"
	"github.com/carenote/medrec/internal/extract"
	"github.com/carenote/medrec/internal/observability/metrics"
	"github.com/carenote/medrec/internal/observability/tracing"
)

// MedicationStore is the persistence surface the handler needs.
// Satisfied by medication.Repository; faked in tests.
type MedicationStore interface {
	List(ctx context.Context, patientID string) ([]*medication.Record, error)
	SaveReconciliation(ctx context.Context, patientID string, res *medication.Result, meta medication.Metadata) error
}

// ReconcileHandler handles note extraction and reconciliation endpoints
type ReconcileHandler struct {
	store      MedicationStore
	extractor  *extract.Service
	reconciler *medication.Reconciler
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

// NewReconcileHandler creates a new handler
func NewReconcileHandler(store MedicationStore, extractor *extract.Service, reconciler *medication.Reconciler, m *metrics.Metrics, logger *zap.Logger) *ReconcileHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReconcileHandler{
		store:      store,
		extractor:  extractor,
		reconciler: reconciler,
		metrics:    m,
		logger:     logger,
	}
}

// Routes returns the handler routes
func (h *ReconcileHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/notes/extract", h.ExtractNote)
	r.Post("/patients/{patientID}/reconcile", h.Reconcile)
	r.Get("/patients/{patientID}/medications", h.ListMedications)
	return r
}

// ExtractRequest is the request body for extracting a note
type ExtractRequest struct {
	Note           string                 `json:"note"`
	PatientContext extract.PatientContext `json:"patientContext"`
}

// ExtractNote handles POST /notes/extract. It runs the extraction
// pipeline without touching any medication list, for dictation preview.
func (h *ReconcileHandler) ExtractNote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tracer := otel.Tracer("reconcile-handler")
	ctx, span := tracer.Start(ctx, "extract_note")
	defer span.End()

	var req ExtractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Note == "" {
		h.jsonError(w, "note is required", http.StatusBadRequest)
		return
	}

	res := h.extractor.Extract(ctx, req.Note, req.PatientContext)
	span.SetAttributes(
		tracing.ExtractionMethod(res.Method),
		attribute.Int("medications", res.TotalFound),
	)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(res)
}

// ReconcileRequest is the request body for reconciling a note against a
// patient's medication list.
type ReconcileRequest struct {
	Note           string                 `json:"note"`
	PatientContext extract.PatientContext `json:"patientContext"`
	Actor          string                 `json:"actor"`
}

// ReconcileResponse is the reconciliation outcome plus the flattened
// post-reconciliation list.
type ReconcileResponse struct {
	PatientID   string                `json:"patientId"`
	Extraction  *extract.Result       `json:"extraction"`
	Added       []*medication.Record  `json:"added"`
	Updated     []*medication.Record  `json:"updated"`
	Stopped     []*medication.Record  `json:"stopped"`
	Unchanged   []*medication.Record  `json:"unchanged"`
	Medications []*medication.Record  `json:"medications"`
	Warnings    []string              `json:"warnings"`
	Timestamp   time.Time             `json:"timestamp"`
}

// Reconcile handles POST /patients/{patientID}/reconcile
func (h *ReconcileHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tracer := otel.Tracer("reconcile-handler")
	ctx, span := tracer.Start(ctx, "reconcile_note")
	defer span.End()

	patientID := chi.URLParam(r, "patientID")
	span.SetAttributes(tracing.PatientID(patientID))

	var req ReconcileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Note == "" {
		h.jsonError(w, "note is required", http.StatusBadRequest)
		return
	}
	if req.Actor == "" {
		req.Actor = middleware.GetActor(ctx)
	}

	existing, err := h.store.List(ctx, patientID)
	if err != nil {
		h.logger.Error("list medications failed",
			zap.String("patient_id", patientID),
			zap.Error(err))
		h.jsonError(w, "failed to load medication list", http.StatusInternalServerError)
		return
	}

	pctx := req.PatientContext
	pctx.CurrentMedications = existing

	start := time.Now()
	extraction := h.extractor.Extract(ctx, req.Note, pctx)
	span.SetAttributes(tracing.ExtractionMethod(extraction.Method))

	meta := medication.Metadata{Actor: req.Actor, Timestamp: time.Now().UTC()}
	result := h.reconciler.Reconcile(extraction.Medications, extraction.StoppedMedications, existing, meta)

	if err := h.store.SaveReconciliation(ctx, patientID, result, meta); err != nil {
		h.logger.Error("save reconciliation failed",
			zap.String("patient_id", patientID),
			zap.Error(err))
		h.jsonError(w, "failed to save medication list", http.StatusInternalServerError)
		return
	}

	if h.metrics != nil {
		h.metrics.ReconciliationsTotal.Inc()
		h.metrics.ReconciliationDuration.Observe(time.Since(start).Seconds())
		h.metrics.MedicationsAdded.Add(float64(len(result.Added)))
		h.metrics.MedicationsUpdated.Add(float64(len(result.Updated)))
		h.metrics.MedicationsStopped.Add(float64(len(result.Stopped)))
		h.metrics.ReconciliationWarnings.Add(float64(len(result.Errors)))
	}

	h.logger.Info("medication list reconciled",
		zap.String("patient_id", patientID),
		zap.String("request_id", middleware.GetRequestID(ctx)),
		zap.String("method", extraction.Method),
		zap.Int("added", len(result.Added)),
		zap.Int("updated", len(result.Updated)),
		zap.Int("stopped", len(result.Stopped)),
		zap.Int("warnings", len(result.Errors)),
	)

	resp := ReconcileResponse{
		PatientID:   patientID,
		Extraction:  extraction,
		Added:       emptyIfNil(result.Added),
		Updated:     emptyIfNil(result.Updated),
		Stopped:     emptyIfNil(result.Stopped),
		Unchanged:   emptyIfNil(result.Unchanged),
		Medications: medication.Flatten(result),
		Warnings:    result.Errors,
		Timestamp:   meta.Timestamp,
	}
	if resp.Warnings == nil {
		resp.Warnings = []string{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// ListMedications handles GET /patients/{patientID}/medications
func (h *ReconcileHandler) ListMedications(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	patientID := chi.URLParam(r, "patientID")

	records, err := h.store.List(ctx, patientID)
	if err != nil {
		h.logger.Error("list medications failed",
			zap.String("patient_id", patientID),
			zap.Error(err))
		h.jsonError(w, "failed to load medication list", http.StatusInternalServerError)
		return
	}

	resp := map[string]interface{}{
		"patientId":   patientID,
		"medications": emptyIfNil(records),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (h *ReconcileHandler) jsonError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func emptyIfNil(recs []*medication.Record) []*medication.Record {
	if recs == nil {
		return []*medication.Record{}
	}
	return recs
}

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/carenote/medrec/internal/domain/medication"
	"github.com/carenote/medrec/internal/extract"
)

// fakeStore is an in-memory MedicationStore.
type fakeStore struct {
	records []*medication.Record
	saved   *medication.Result
	listErr error
	saveErr error
}

func (f *fakeStore) List(_ context.Context, _ string) ([]*medication.Record, error) {
	return f.records, f.listErr
}

func (f *fakeStore) SaveReconciliation(_ context.Context, _ string, res *medication.Result, _ medication.Metadata) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = res
	return nil
}

func newTestHandler(store *fakeStore) *ReconcileHandler {
	svc := extract.NewService(nil, extract.NewRegexOracle(), nil, nil, nil)
	return NewReconcileHandler(store, svc, medication.NewReconciler(nil), nil, nil)
}

func doRequest(h *ReconcileHandler, method, path, body string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Mount("/", h.Routes())

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestExtractNote(t *testing.T) {
	h := newTestHandler(&fakeStore{})

	body := `{"note":"Medications:\n1. Ampicillin 100mg/kg IV bd\n"}`
	rec := doRequest(h, http.MethodPost, "/notes/extract", body)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var res extract.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("invalid response JSON: %v", err)
	}
	if res.TotalFound != 1 {
		t.Errorf("TotalFound = %d, want 1", res.TotalFound)
	}
	if res.Method != extract.MethodFallback {
		t.Errorf("Method = %q, want fallback without a primary oracle", res.Method)
	}
}

func TestExtractNoteRejectsEmptyBody(t *testing.T) {
	h := newTestHandler(&fakeStore{})

	rec := doRequest(h, http.MethodPost, "/notes/extract", `{"note":""}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}

	rec = doRequest(h, http.MethodPost, "/notes/extract", `not json`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for invalid JSON", rec.Code)
	}
}

func TestReconcileAddsAndStops(t *testing.T) {
	now := time.Now().UTC()
	store := &fakeStore{
		records: []*medication.Record{
			{ID: "m1", Name: "Gentamicin", Dose: "4mg/kg", IsActive: true, AddedAt: now.Add(-24 * time.Hour)},
		},
	}
	h := newTestHandler(store)

	body := `{"note":"Medications:\n1. Ampicillin 100mg/kg IV bd\n\nPlan: stop gentamicin.","actor":"dr.kim"}`
	rec := doRequest(h, http.MethodPost, "/patients/p-1/reconcile", body)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp ReconcileResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response JSON: %v", err)
	}

	if len(resp.Added) != 1 || resp.Added[0].Name != "Ampicillin" {
		t.Errorf("Added = %+v, want one Ampicillin record", resp.Added)
	}
	if len(resp.Stopped) != 1 || resp.Stopped[0].Name != "Gentamicin" {
		t.Errorf("Stopped = %+v, want one Gentamicin record", resp.Stopped)
	}
	if resp.Stopped[0].IsActive {
		t.Error("stopped record still active")
	}
	if len(resp.Medications) != 2 {
		t.Errorf("flattened list has %d records, want 2", len(resp.Medications))
	}
	if store.saved == nil {
		t.Fatal("reconciliation was not persisted")
	}
	if len(store.saved.Added) != 1 || len(store.saved.Stopped) != 1 {
		t.Errorf("persisted result = %+v", store.saved)
	}
}

func TestReconcileListError(t *testing.T) {
	store := &fakeStore{listErr: errors.New("db down")}
	h := newTestHandler(store)

	rec := doRequest(h, http.MethodPost, "/patients/p-1/reconcile", `{"note":"Medications:\n1. Ampicillin 100mg/kg IV bd\n"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestReconcileSaveError(t *testing.T) {
	store := &fakeStore{saveErr: errors.New("tx failed")}
	h := newTestHandler(store)

	rec := doRequest(h, http.MethodPost, "/patients/p-1/reconcile", `{"note":"Medications:\n1. Ampicillin 100mg/kg IV bd\n"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestListMedications(t *testing.T) {
	store := &fakeStore{
		records: []*medication.Record{
			{ID: "m1", Name: "Caffeine", IsActive: true},
		},
	}
	h := newTestHandler(store)

	rec := doRequest(h, http.MethodGet, "/patients/p-1/medications", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp struct {
		PatientID   string               `json:"patientId"`
		Medications []*medication.Record `json:"medications"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response JSON: %v", err)
	}
	if resp.PatientID != "p-1" {
		t.Errorf("patientId = %q", resp.PatientID)
	}
	if len(resp.Medications) != 1 || resp.Medications[0].Name != "Caffeine" {
		t.Errorf("medications = %+v", resp.Medications)
	}
}

func TestListMedicationsEmptyIsArray(t *testing.T) {
	h := newTestHandler(&fakeStore{})

	rec := doRequest(h, http.MethodGet, "/patients/p-2/medications", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"medications":[]`) {
		t.Errorf("empty list not serialized as []: %s", rec.Body.String())
	}
}

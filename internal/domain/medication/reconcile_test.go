package medication

import (
	"strings"
	"testing"
	"time"
)

var (
	t0       = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	t1       = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	testMeta = Metadata{Actor: "dr.shah", Timestamp: time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC)}
)

func existingRecord(name string, addedAt time.Time) *Record {
	return &Record{
		ID:        name + "-" + addedAt.Format("0102"),
		Name:      name,
		Dose:      "10mg",
		IsActive:  true,
		StartDate: addedAt,
		AddedBy:   "dr.rao",
		AddedAt:   addedAt,
	}
}

func TestReconcileAddsNewMedication(t *testing.T) {
	r := NewReconciler(nil)
	cmds := []*Command{{Name: "Ampicillin", Dose: "100mg/kg", Route: "IV", Action: ActionAdd}}

	res := r.Reconcile(cmds, nil, nil, testMeta)

	if len(res.Added) != 1 {
		t.Fatalf("expected 1 added, got %d", len(res.Added))
	}
	rec := res.Added[0]
	if rec.Name != "Ampicillin" || rec.Dose != "100mg/kg" || rec.Route != "IV" {
		t.Errorf("unexpected record: %+v", rec)
	}
	if !rec.IsActive {
		t.Error("new record must be active")
	}
	if rec.AddedBy != testMeta.Actor || !rec.AddedAt.Equal(testMeta.Timestamp) || !rec.StartDate.Equal(testMeta.Timestamp) {
		t.Errorf("creation provenance not stamped: %+v", rec)
	}
	if rec.ID == "" {
		t.Error("new record must get an ID")
	}
}

func TestReconcileStopThenAddOrdering(t *testing.T) {
	r := NewReconciler(nil)
	old := existingRecord("Gentamicin", t0)
	cmds := []*Command{{Name: "Gentamicin", Dose: "5mg/kg", Action: ActionAdd}}

	res := r.Reconcile(cmds, []string{"Gentamicin"}, []*Record{old}, testMeta)

	if len(res.Stopped) != 1 || len(res.Added) != 1 {
		t.Fatalf("expected 1 stopped + 1 added, got %d/%d", len(res.Stopped), len(res.Added))
	}
	if res.Stopped[0] != old {
		t.Error("stop must target the prior record")
	}
	if res.Stopped[0].IsActive {
		t.Error("stopped record must be inactive")
	}
	if res.Added[0] == old {
		t.Error("add must create a fresh record, not revive the stopped one")
	}
	if !res.Added[0].IsActive || res.Added[0].Dose != "5mg/kg" {
		t.Errorf("unexpected added record: %+v", res.Added[0])
	}
	if len(res.Unchanged) != 0 {
		t.Errorf("nothing should be unchanged, got %d", len(res.Unchanged))
	}
}

func TestReconcileContinueIsIdempotent(t *testing.T) {
	r := NewReconciler(nil)
	rec := existingRecord("Caffeine", t0)
	rec.Route = "IV"
	rec.Frequency = "daily"
	cmds := []*Command{{Name: "Caffeine", Dose: "5mg", Action: ActionContinue}}

	for i := 0; i < 2; i++ {
		res := r.Reconcile(cmds, nil, []*Record{rec}, testMeta)
		if len(res.Unchanged) != 1 || res.Unchanged[0] != rec {
			t.Fatalf("run %d: expected the record in unchanged", i)
		}
		if rec.Dose != "10mg" || rec.Route != "IV" || rec.Frequency != "daily" {
			t.Errorf("run %d: continue must not mutate fields: %+v", i, rec)
		}
		if rec.LastUpdatedAt != nil {
			t.Errorf("run %d: continue must not stamp update provenance", i)
		}
	}
}

func TestReconcilePartialUpdatePreservesFields(t *testing.T) {
	r := NewReconciler(nil)
	rec := existingRecord("Caffeine", t0)
	rec.Dose = "5mg"
	rec.Route = "IV"
	rec.Frequency = "daily"
	cmds := []*Command{{Name: "Caffeine", Dose: "10mg", Action: ActionUpdate}}

	res := r.Reconcile(cmds, nil, []*Record{rec}, testMeta)

	if len(res.Updated) != 1 {
		t.Fatalf("expected 1 updated, got %d", len(res.Updated))
	}
	if rec.Dose != "10mg" {
		t.Errorf("dose not overwritten: %q", rec.Dose)
	}
	if rec.Route != "IV" || rec.Frequency != "daily" {
		t.Errorf("partial update blanked fields: route=%q freq=%q", rec.Route, rec.Frequency)
	}
	if rec.AddedBy != "dr.rao" || !rec.AddedAt.Equal(t0) {
		t.Error("creation provenance must be preserved")
	}
	if rec.LastUpdatedBy != testMeta.Actor || rec.LastUpdatedAt == nil {
		t.Error("update provenance not stamped")
	}
}

func TestReconcileAmbiguousStop(t *testing.T) {
	r := NewReconciler(nil)
	older := existingRecord("Dopamine", t0)
	newer := existingRecord("Dopamine", t1)

	res := r.Reconcile(nil, []string{"Dopamine"}, []*Record{older, newer}, testMeta)

	if len(res.Stopped) != 1 || res.Stopped[0] != newer {
		t.Fatal("ambiguous stop must deactivate the most recently added record")
	}
	if !older.IsActive {
		t.Error("older duplicate must stay active")
	}
	if len(res.Errors) != 1 || !strings.Contains(res.Errors[0], "Dopamine") {
		t.Errorf("expected one ambiguity warning, got %v", res.Errors)
	}
	if len(res.Unchanged) != 1 || res.Unchanged[0] != older {
		t.Error("older duplicate should land in unchanged")
	}
}

func TestReconcileUnresolvedStop(t *testing.T) {
	r := NewReconciler(nil)
	rec := existingRecord("Ampicillin", t0)

	res := r.Reconcile(nil, []string{"Vancomycin"}, []*Record{rec}, testMeta)

	if len(res.Stopped) != 0 {
		t.Error("nothing should be stopped")
	}
	if len(res.Errors) != 1 || !strings.Contains(res.Errors[0], "Vancomycin") {
		t.Errorf("expected unresolved-stop warning, got %v", res.Errors)
	}
	if len(res.Unchanged) != 1 {
		t.Error("existing record should sweep into unchanged")
	}
}

func TestReconcileFuzzyUpdateMatch(t *testing.T) {
	r := NewReconciler(nil)
	rec := existingRecord("Ampicillin", t0)
	cmds := []*Command{{Name: "Ampicilin", Dose: "200mg", Action: ActionUpdate}} // typo

	res := r.Reconcile(cmds, nil, []*Record{rec}, testMeta)

	if len(res.Updated) != 1 || res.Updated[0] != rec {
		t.Fatal("typo'd name should fuzzy-match the existing record")
	}
	if len(res.Added) != 0 {
		t.Error("fuzzy match must prevent a duplicate add")
	}
	if rec.Dose != "200mg" {
		t.Errorf("dose not updated: %q", rec.Dose)
	}
}

func TestReconcileDropsMalformedCommands(t *testing.T) {
	r := NewReconciler(nil)
	cmds := []*Command{
		{Name: "", Action: ActionAdd},
		{Name: "ab", Action: ActionAdd},
		{Name: "  ", Action: ActionAdd},
	}

	res := r.Reconcile(cmds, []string{""}, nil, testMeta)

	if len(res.Added) != 0 || len(res.Errors) != 0 {
		t.Errorf("malformed commands must be dropped silently: %+v", res)
	}
}

func TestReconcileDoesNotMutateInputSlice(t *testing.T) {
	r := NewReconciler(nil)
	existing := []*Record{existingRecord("Ampicillin", t0)}
	cmds := []*Command{{Name: "Vancomycin", Dose: "15mg/kg", Action: ActionAdd}}

	r.Reconcile(cmds, nil, existing, testMeta)

	if len(existing) != 1 {
		t.Errorf("input slice length changed: %d", len(existing))
	}
}

func TestReconcileNoCategoryOverlap(t *testing.T) {
	r := NewReconciler(nil)
	existing := []*Record{
		existingRecord("Ampicillin", t0),
		existingRecord("Gentamicin", t0),
		existingRecord("Caffeine", t0),
	}
	cmds := []*Command{
		{Name: "Gentamicin", Dose: "5mg/kg", Action: ActionAdd},
		{Name: "Caffeine", Dose: "10mg", Action: ActionContinue},
		{Name: "Vancomycin", Dose: "15mg/kg", Action: ActionAdd},
	}

	res := r.Reconcile(cmds, []string{"Ampicillin"}, existing, testMeta)

	seen := make(map[*Record]int)
	for _, rec := range Flatten(res) {
		seen[rec]++
	}
	for rec, n := range seen {
		if n > 1 {
			t.Errorf("record %s appears in %d categories", rec.Name, n)
		}
	}
}

func TestFlattenOrdering(t *testing.T) {
	added := existingRecord("A-med", t0)
	updated := existingRecord("B-med", t0)
	stopped := existingRecord("C-med", t0)
	unchanged := existingRecord("D-med", t0)

	res := &Result{
		Added:     []*Record{added},
		Updated:   []*Record{updated},
		Stopped:   []*Record{stopped},
		Unchanged: []*Record{unchanged},
	}

	flat := Flatten(res)
	want := []*Record{added, updated, stopped, unchanged}
	if len(flat) != len(want) {
		t.Fatalf("expected %d records, got %d", len(want), len(flat))
	}
	for i := range want {
		if flat[i] != want[i] {
			t.Errorf("position %d: wrong record %s", i, flat[i].Name)
		}
	}
}

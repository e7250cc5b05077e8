package extract

import (
	"context"
	"errors"
	"testing"

	"github.com/carenote/medrec/internal/domain/medication"
)

// stubOracle is a scriptable primary for service tests.
type stubOracle struct {
	name  string
	ext   *Extraction
	err   error
	calls int
}

func (s *stubOracle) Name() string { return s.name }

func (s *stubOracle) Extract(_ context.Context, _ string, _ PatientContext) (*Extraction, error) {
	s.calls++
	return s.ext, s.err
}

const serviceNote = `Medications:
1. Ampicillin 100mg/kg IV bd
`

func TestServicePrimarySuccess(t *testing.T) {
	primary := &stubOracle{
		name: MethodPrimary,
		ext: &Extraction{
			Commands: []*medication.Command{
				{Name: "Ampicillin", Dose: "100mg/kg", Action: medication.ActionAdd, Confidence: 0.9},
				{Name: "Gentamicin", Dose: "4mg/kg", Action: medication.ActionAdd, Confidence: 0.7},
			},
		},
	}
	svc := NewService(primary, NewRegexOracle(), nil, nil, nil)

	res := svc.Extract(context.Background(), serviceNote, PatientContext{})

	if res.Method != MethodPrimary {
		t.Errorf("Method = %q, want %q", res.Method, MethodPrimary)
	}
	if res.TotalFound != 2 {
		t.Errorf("TotalFound = %d, want 2", res.TotalFound)
	}
	if res.Confidence != 0.8 {
		t.Errorf("Confidence = %v, want mean 0.8", res.Confidence)
	}
	if primary.calls != 1 {
		t.Errorf("primary called %d times, want 1", primary.calls)
	}
}

func TestServiceFallsBackOnError(t *testing.T) {
	primary := &stubOracle{name: MethodPrimary, err: errors.New("connection refused")}
	svc := NewService(primary, NewRegexOracle(), nil, nil, nil)

	res := svc.Extract(context.Background(), serviceNote, PatientContext{})

	if res.Method != MethodFallback {
		t.Errorf("Method = %q, want %q", res.Method, MethodFallback)
	}
	if res.TotalFound != 1 {
		t.Fatalf("fallback found %d medications, want 1", res.TotalFound)
	}
	if res.Medications[0].Name != "Ampicillin" {
		t.Errorf("fallback extracted %q", res.Medications[0].Name)
	}
}

func TestServiceFallsBackOnMalformed(t *testing.T) {
	primary := &stubOracle{name: MethodPrimary, err: ErrMalformedResponse}
	svc := NewService(primary, NewRegexOracle(), nil, nil, nil)

	res := svc.Extract(context.Background(), serviceNote, PatientContext{})
	if res.Method != MethodFallback {
		t.Errorf("Method = %q, want %q", res.Method, MethodFallback)
	}
}

func TestServiceFallsBackOnEmptyPrimaryResult(t *testing.T) {
	primary := &stubOracle{name: MethodPrimary, ext: &Extraction{}}
	svc := NewService(primary, NewRegexOracle(), nil, nil, nil)

	res := svc.Extract(context.Background(), serviceNote, PatientContext{})
	if res.Method != MethodFallback {
		t.Errorf("Method = %q, want %q", res.Method, MethodFallback)
	}
	if res.TotalFound != 1 {
		t.Errorf("fallback found %d medications, want 1", res.TotalFound)
	}
}

func TestServiceFallsBackOnNilExtraction(t *testing.T) {
	// An oracle returning (nil, nil) violates the contract but must not
	// take the pipeline down.
	primary := &stubOracle{name: MethodPrimary}
	svc := NewService(primary, NewRegexOracle(), nil, nil, nil)

	res := svc.Extract(context.Background(), serviceNote, PatientContext{})
	if res.Method != MethodFallback {
		t.Errorf("Method = %q, want %q", res.Method, MethodFallback)
	}
	if res.TotalFound != 1 {
		t.Errorf("fallback found %d medications, want 1", res.TotalFound)
	}
}

func TestServiceNilPrimaryUsesFallback(t *testing.T) {
	svc := NewService(nil, NewRegexOracle(), nil, nil, nil)

	res := svc.Extract(context.Background(), serviceNote, PatientContext{})
	if res.Method != MethodFallback {
		t.Errorf("Method = %q, want %q", res.Method, MethodFallback)
	}
}

func TestServiceNeverReturnsNilSlices(t *testing.T) {
	svc := NewService(nil, NewRegexOracle(), nil, nil, nil)

	res := svc.Extract(context.Background(), "no medications here", PatientContext{})
	if res.Medications == nil || res.StoppedMedications == nil {
		t.Errorf("result slices must be non-nil: %+v", res)
	}
	if res.TotalFound != 0 {
		t.Errorf("TotalFound = %d, want 0", res.TotalFound)
	}
	if res.Confidence != 0 {
		t.Errorf("Confidence = %v, want 0 for empty result", res.Confidence)
	}
}

func TestServiceStopsComeFromFallbackToo(t *testing.T) {
	svc := NewService(nil, NewRegexOracle(), nil, nil, nil)

	res := svc.Extract(context.Background(), "Plan: stop gentamicin.", PatientContext{})
	if len(res.StoppedMedications) != 1 || res.StoppedMedications[0] != "Gentamicin" {
		t.Errorf("StoppedMedications = %v, want [Gentamicin]", res.StoppedMedications)
	}
}

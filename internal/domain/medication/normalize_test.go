package medication

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Ampicillin", "Ampicillin"},
		{"ampicillin", "Ampicillin"},
		{"AMPICILLIN", "Ampicillin"},
		{"Inj. Ampicillin", "Ampicillin"},
		{"inj ampicillin", "Ampicillin"},
		{"Tab. Paracetamol", "Paracetamol"},
		{"Ampicillin 100mg", "Ampicillin"},
		{"Ampicillin 100mg/kg", "Ampicillin"},
		{"Inj. Ampicillin 100mg/kg twice daily", "Ampicillin"},
		{"Gentamicin 5 mg", "Gentamicin"},
		{"Caffeine injection", "Caffeine"},
		{"Vancomycin tablet", "Vancomycin"},
		{"amp", "Ampicillin"},
		{"Gent", "Gentamicin"},
		{"vanco", "Vancomycin"},
		{"dopa", "Dopamine"},
		{"", ""},
		{"   ", ""},
		{"Inj. 100mg", ""},
	}

	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeDeterministic(t *testing.T) {
	inputs := []string{"Inj. Ampicillin 100mg", "ampicillin", "Ampicillin"}
	for _, in := range inputs {
		first := Normalize(in)
		for i := 0; i < 10; i++ {
			if got := Normalize(in); got != first {
				t.Fatalf("Normalize(%q) not deterministic: %q then %q", in, first, got)
			}
		}
		if first != "Ampicillin" {
			t.Errorf("Normalize(%q) = %q, want Ampicillin", in, first)
		}
	}
}

package extract

import (
	"reflect"
	"testing"
)

func TestDetectStopPhrases(t *testing.T) {
	d := NewStopDetector()

	tests := []struct {
		name string
		note string
		want []string
	}{
		{
			name: "imperative stop",
			note: "Plan: stop Gentamicin. Continue feeds.",
			want: []string{"Gentamicin"},
		},
		{
			name: "discontinue with filler word",
			note: "Discontinue vancomycin today given negative cultures.",
			want: []string{"Vancomycin"},
		},
		{
			name: "dc abbreviation",
			note: "D/C dopamine, wean pressors.",
			want: []string{"Dopamine"},
		},
		{
			name: "hold verb",
			note: "Hold caffeine for now.",
			want: []string{"Caffeine"},
		},
		{
			name: "passive voice",
			note: "Gentamicin stopped after 48h of negative cultures.",
			want: []string{"Gentamicin"},
		},
		{
			name: "passive multi-word drug",
			note: "Magnesium sulphate stopped after seizure control.",
			want: []string{"Magnesium sulphate"},
		},
		{
			name: "passive with narrative lead-in",
			note: "Given negative cultures gentamicin discontinued.",
			want: []string{"Gentamicin"},
		},
		{
			name: "colon form",
			note: "Stop: Ampicillin\nAssessment: improving",
			want: []string{"Ampicillin"},
		},
		{
			name: "alias resolved",
			note: "stop vanco, continue rest",
			want: []string{"Vancomycin"},
		},
		{
			name: "multiple stops in order",
			note: "Stop gentamicin. Discontinue ampicillin now.",
			want: []string{"Gentamicin", "Ampicillin"},
		},
		{
			name: "duplicate mentions deduped",
			note: "Stop gentamicin. Gentamicin discontinued per ID.",
			want: []string{"Gentamicin"},
		},
		{
			name: "no stops",
			note: "Continue current medications. Wean oxygen.",
			want: nil,
		},
		{
			name: "short captures discarded",
			note: "stop it now",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := d.Detect(tt.note)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Detect(%q) = %v, want %v", tt.note, got, tt.want)
			}
		})
	}
}

func TestDetectIsDeterministic(t *testing.T) {
	d := NewStopDetector()
	note := "Stop gentamicin. Discontinue vanco today. D/C dopamine."

	first := d.Detect(note)
	for i := 0; i < 10; i++ {
		if got := d.Detect(note); !reflect.DeepEqual(got, first) {
			t.Fatalf("run %d: Detect returned %v, first run returned %v", i, got, first)
		}
	}
}

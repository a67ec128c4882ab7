package processor

import (
	"math"
	"testing"
)

func TestAggregate(t *testing.T) {
	tests := []struct {
		name        string
		recognition []float64
		validation  float64
		want        float64
	}{
		{"empty recognition", nil, 1, 0.3},
		{"weighted", []float64{0.8, 1.0}, 0.5, 0.9*0.7 + 0.5*0.3},
		{"perfect", []float64{1, 1, 1}, 1, 1},
		{"clamped high", []float64{5}, 5, 1},
		{"clamped low", []float64{-2}, 0, 0},
		{"nan collapses", []float64{math.NaN()}, 0.5, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Aggregate(tc.recognition, tc.validation)
			if math.Abs(got-tc.want) > 1e-9 {
				t.Fatalf("Aggregate() = %v, want %v", got, tc.want)
			}
			if got < 0 || got > 1 {
				t.Fatalf("Aggregate() = %v out of [0,1]", got)
			}
		})
	}
}

func TestRecognitionConfidences_FlattensInOrder(t *testing.T) {
	blocks := []TextBlock{
		{Text: "a", TokenConfidences: []float64{0.1, 0.2}},
		{Text: "b"},
		{Text: "c", TokenConfidences: []float64{0.3}},
	}
	got := RecognitionConfidences(blocks)
	want := []float64{0.1, 0.2, 0.3}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

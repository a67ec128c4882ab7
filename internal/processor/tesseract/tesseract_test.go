package tesseract

import (
	"image"
	"testing"

	"github.com/adverant/nexus/sirim-worker/internal/processor"
	"github.com/google/go-cmp/cmp"
	"github.com/otiai10/gosseract/v2"
)

func TestAssembleBlocks_AttachesWordsByCenter(t *testing.T) {
	blockBoxes := []gosseract.BoundingBox{
		{Box: image.Rect(0, 0, 100, 30), Word: " Brand \n"},
		{Box: image.Rect(0, 50, 100, 80), Word: "   "},
		{Box: image.Rect(150, 0, 300, 30), Word: "ACME Corp"},
	}
	wordBoxes := []gosseract.BoundingBox{
		{Box: image.Rect(2, 2, 90, 28), Word: "Brand", Confidence: 91},
		{Box: image.Rect(150, 2, 210, 28), Word: "ACME", Confidence: 80},
		{Box: image.Rect(220, 2, 298, 28), Word: "Corp", Confidence: 120},
		{Box: image.Rect(400, 400, 420, 420), Word: "stray", Confidence: 10},
	}

	got := assembleBlocks(blockBoxes, wordBoxes)
	want := []processor.TextBlock{
		{Text: "Brand", BoundingBox: processor.BoundingBox{Left: 0, Top: 0, Right: 100, Bottom: 30}, TokenConfidences: []float64{0.91}},
		{Text: "ACME Corp", BoundingBox: processor.BoundingBox{Left: 150, Top: 0, Right: 300, Bottom: 30}, TokenConfidences: []float64{0.8, 1}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("assembleBlocks mismatch (-want +got):\n%s", diff)
	}
}

func TestNewEngine_DefaultLanguage(t *testing.T) {
	e := NewEngine(nil)
	if len(e.languages) != 1 || e.languages[0] != "eng" {
		t.Fatalf("languages = %v", e.languages)
	}
	e = NewEngine(&Config{Languages: []string{"eng", "msa"}})
	if len(e.languages) != 2 {
		t.Fatalf("languages = %v", e.languages)
	}
}

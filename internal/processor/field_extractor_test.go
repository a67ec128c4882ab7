package processor

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func block(text string, left, top, right, bottom int) TextBlock {
	return TextBlock{Text: text, BoundingBox: BoundingBox{Left: left, Top: top, Right: right, Bottom: bottom}}
}

// sampleLabel is a typical label: labels in a left column, values to their right
func sampleLabel() []TextBlock {
	return []TextBlock{
		block("SIRIM TA1234567", 10, 0, 300, 40),
		block("Batch No:", 10, 100, 150, 130),
		block("  B-2024-07  ", 200, 100, 400, 130),
		block("Brand", 10, 150, 100, 180),
		block("ACME", 180, 152, 300, 178),
		block("Model", 10, 200, 100, 230),
		block("X-100", 150, 200, 260, 230),
		block("Type", 10, 250, 90, 280),
		block("Socket outlet", 140, 250, 380, 280),
		block("Rating", 10, 300, 110, 330),
		block("13A 250V", 170, 300, 320, 330),
		block("Pack Size", 10, 350, 160, 380),
		block("1 unit", 230, 350, 330, 380),
	}
}

func TestExtract_SampleLabel(t *testing.T) {
	got := NewFieldExtractor().Extract(sampleLabel())
	want := FieldSet{
		SerialNo: StringPtr("TA1234567"),
		BatchNo:  StringPtr("B-2024-07"),
		Brand:    StringPtr("ACME"),
		Model:    StringPtr("X-100"),
		Type:     StringPtr("Socket outlet"),
		Rating:   StringPtr("13A 250V"),
		PackSize: StringPtr("1 unit"),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Extract() mismatch (-want +got):\n%s", diff)
	}
}

func TestExtract_EmptyBlocks(t *testing.T) {
	got := NewFieldExtractor().Extract(nil)
	if diff := cmp.Diff(FieldSet{}, got); diff != "" {
		t.Fatalf("expected all-absent FieldSet (-want +got):\n%s", diff)
	}
}

func TestExtract_SerialIsFirstMatchInBlockOrder(t *testing.T) {
	blocks := []TextBlock{
		block("no serial here", 0, 0, 10, 10),
		block("xxTA7654321yy", 0, 20, 10, 30),
		block("TA1111111", 0, 40, 10, 50),
	}
	got := NewFieldExtractor().Extract(blocks)
	if got.SerialNo == nil || *got.SerialNo != "TA7654321" {
		t.Fatalf("serial = %v, want TA7654321", got.SerialNo)
	}
}

func TestExtract_SerialUnaffectedByPermutingNonMatchingBlocks(t *testing.T) {
	serial := block("TA1234567", 500, 500, 600, 520)
	others := []TextBlock{
		block("BRAND", 0, 0, 50, 20),
		block("TA12", 0, 40, 50, 60),
		block("Model", 0, 80, 50, 100),
	}
	orders := [][]TextBlock{
		{others[0], others[1], others[2], serial},
		{serial, others[2], others[1], others[0]},
		{others[1], serial, others[0], others[2]},
	}
	for i, blocks := range orders {
		got := NewFieldExtractor().Extract(blocks)
		if got.SerialNo == nil || *got.SerialNo != "TA1234567" {
			t.Fatalf("order %d: serial = %v", i, got.SerialNo)
		}
	}
}

func TestExtract_LabelWithoutAdjacentBlockIsAbsent(t *testing.T) {
	blocks := []TextBlock{
		block("BRAND", 0, 0, 100, 30),
		block("far right", 400, 0, 500, 30),
		block("below", 100, 200, 200, 230),
	}
	got := NewFieldExtractor().Extract(blocks)
	if got.Brand != nil {
		t.Fatalf("brand = %q, want absent", *got.Brand)
	}
}

func TestExtract_DuplicateLabelsUseFirst(t *testing.T) {
	blocks := []TextBlock{
		block("MODEL", 0, 0, 100, 30),
		block("MODEL", 0, 100, 100, 130),
		block("second", 150, 100, 250, 130),
		block("first", 150, 0, 250, 30),
	}
	got := NewFieldExtractor().Extract(blocks)
	if got.Model == nil || *got.Model != "first" {
		t.Fatalf("model = %v, want first", got.Model)
	}
}

func TestExtract_FirstAdjacentWinsOverNearest(t *testing.T) {
	blocks := []TextBlock{
		block("rating", 0, 0, 100, 30),
		block("farther", 210, 0, 300, 30),
		block("nearer", 105, 0, 200, 30),
	}
	got := NewFieldExtractor().Extract(blocks)
	if got.Rating == nil || *got.Rating != "farther" {
		t.Fatalf("rating = %v, want farther (first match, not nearest)", got.Rating)
	}
}

func TestExtract_OverlappingBoxesAreAdjacent(t *testing.T) {
	blocks := []TextBlock{
		block("TYPE", 0, 0, 100, 30),
		block("Plug", 60, 5, 160, 35),
	}
	got := NewFieldExtractor().Extract(blocks)
	if got.Type == nil || *got.Type != "Plug" {
		t.Fatalf("type = %v, want Plug", got.Type)
	}
}

func TestExtract_VerticalDistanceMustBeBelowLabelHeight(t *testing.T) {
	blocks := []TextBlock{
		block("PACK", 0, 0, 100, 30),
		block("exactly one height down", 110, 30, 200, 60),
	}
	got := NewFieldExtractor().Extract(blocks)
	if got.PackSize != nil {
		t.Fatalf("pack size = %q, want absent when center distance equals label height", *got.PackSize)
	}
}

func TestExtract_DoesNotMutateInput(t *testing.T) {
	blocks := sampleLabel()
	before := make([]TextBlock, len(blocks))
	copy(before, blocks)

	NewFieldExtractor().Extract(blocks)

	if diff := cmp.Diff(before, blocks); diff != "" {
		t.Fatalf("input mutated (-before +after):\n%s", diff)
	}
}

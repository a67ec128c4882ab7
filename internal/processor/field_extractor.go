/**
 * Field Extractor for SIRIM labels
 *
 * Turns an unordered list of OCR text blocks into a FieldSet:
 * - Serial number by pattern, independent of any label
 * - Labelled fields by locating the label block and taking the first
 *   block spatially adjacent to its right
 *
 * Matching is first-match in block order, not nearest-neighbour. Dense
 * layouts can therefore pick a deterministic but arbitrary neighbour.
 */

package processor

import (
	"math"
	"regexp"
	"strings"
)

// DefaultAdjacencyThreshold is the maximum horizontal gap in pixels between
// a label's right edge and a value's left edge.
const DefaultAdjacencyThreshold = 120

var serialPattern = regexp.MustCompile(`TA\d{7}`)

// Label keywords, matched case-insensitively as substrings
const (
	labelBatch    = "BATCH"
	labelBrand    = "BRAND"
	labelModel    = "MODEL"
	labelType     = "TYPE"
	labelRating   = "RATING"
	labelPackSize = "PACK"
)

// FieldExtractor extracts label fields from text blocks
type FieldExtractor struct {
	threshold int
}

// NewFieldExtractor creates an extractor with the default adjacency threshold
func NewFieldExtractor() *FieldExtractor {
	return &FieldExtractor{threshold: DefaultAdjacencyThreshold}
}

// Extract converts blocks into a FieldSet. It never mutates blocks and
// returns an all-absent FieldSet for an empty list.
func (e *FieldExtractor) Extract(blocks []TextBlock) FieldSet {
	return FieldSet{
		SerialNo: extractSerial(blocks),
		BatchNo:  e.extractByLabel(blocks, labelBatch),
		Brand:    e.extractByLabel(blocks, labelBrand),
		Model:    e.extractByLabel(blocks, labelModel),
		Type:     e.extractByLabel(blocks, labelType),
		Rating:   e.extractByLabel(blocks, labelRating),
		PackSize: e.extractByLabel(blocks, labelPackSize),
	}
}

// extractSerial returns the first serial pattern match in block order
func extractSerial(blocks []TextBlock) *string {
	for _, block := range blocks {
		if match := serialPattern.FindString(block.Text); match != "" {
			return StringPtr(match)
		}
	}
	return nil
}

// extractByLabel finds the first block containing label and returns the
// trimmed text of the first other block adjacent to it
func (e *FieldExtractor) extractByLabel(blocks []TextBlock, label string) *string {
	labelIdx := -1
	for i, block := range blocks {
		if strings.Contains(strings.ToUpper(block.Text), label) {
			labelIdx = i
			break
		}
	}
	if labelIdx < 0 {
		return nil
	}

	labelBox := blocks[labelIdx].BoundingBox
	for i, block := range blocks {
		if i == labelIdx {
			continue
		}
		if e.isAdjacent(labelBox, block.BoundingBox) {
			return StringPtr(strings.TrimSpace(block.Text))
		}
	}
	return nil
}

// isAdjacent reports whether candidate sits to the right of label on the
// same line. Overlapping boxes count as adjacent.
func (e *FieldExtractor) isAdjacent(label, candidate BoundingBox) bool {
	horizontal := math.Abs(float64(label.Right - candidate.Left))
	vertical := math.Abs(label.CenterY() - candidate.CenterY())
	return horizontal < float64(e.threshold) && vertical < float64(label.Height())
}

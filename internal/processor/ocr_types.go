/**
 * OCR Types - Shared data structures for label capture
 *
 * TextBlocks come from the OCR engine (Tesseract locally, or the device's
 * own recognizer when blocks are posted to the API). Everything downstream
 * of recognition works on these values only.
 */

package processor

// BoundingBox represents a block's pixel rectangle, top-left origin
type BoundingBox struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
}

// Height returns the vertical extent of the box
func (b BoundingBox) Height() int {
	return b.Bottom - b.Top
}

// CenterY returns the vertical center of the box
func (b BoundingBox) CenterY() float64 {
	return float64(b.Top+b.Bottom) / 2
}

// TextBlock represents one recognized block of text
type TextBlock struct {
	Text             string      `json:"text"`
	BoundingBox      BoundingBox `json:"boundingBox"`
	TokenConfidences []float64   `json:"tokenConfidences,omitempty"`
}

// FieldSet holds the fields extracted from a label. A nil field means no
// match was found.
type FieldSet struct {
	SerialNo *string `json:"sirimSerialNo,omitempty"`
	BatchNo  *string `json:"batchNo,omitempty" validate:"omitempty,max=200"`
	Brand    *string `json:"brandTrademark,omitempty" validate:"omitempty,max=1024"`
	Model    *string `json:"model,omitempty" validate:"omitempty,max=1500"`
	Type     *string `json:"type,omitempty" validate:"omitempty,max=1500"`
	Rating   *string `json:"rating,omitempty" validate:"omitempty,max=500"`
	PackSize *string `json:"packSize,omitempty" validate:"omitempty,max=1500"`
}

// trackedFieldCount is the number of fields counted towards completeness
const trackedFieldCount = 7

// Filled counts the non-absent fields
func (f FieldSet) Filled() int {
	n := 0
	for _, v := range []*string{f.SerialNo, f.BatchNo, f.Brand, f.Model, f.Type, f.Rating, f.PackSize} {
		if v != nil {
			n++
		}
	}
	return n
}

// ScoredResult is the unit handed to the API and persistence boundary
type ScoredResult struct {
	Success         bool               `json:"success"`
	Fields          *FieldSet          `json:"fields,omitempty"`
	FinalConfidence float64            `json:"finalConfidence"`
	Validation      *ValidationOutcome `json:"validation,omitempty"`
	ErrorMessage    string             `json:"errorMessage,omitempty"`
	ElapsedMs       int64              `json:"elapsedMs"`
}

// StringPtr returns a pointer to s
func StringPtr(s string) *string {
	return &s
}

package processor

import (
	"math"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

// ErrorKind is a structural defect that keeps a record from being validated
type ErrorKind string

const (
	ErrMissingSerialNumber ErrorKind = "MISSING_SERIAL_NUMBER"
	ErrInvalidSerialFormat ErrorKind = "INVALID_SERIAL_FORMAT"
	ErrSerialTooLong       ErrorKind = "SERIAL_TOO_LONG"
	ErrBatchTooLong        ErrorKind = "BATCH_TOO_LONG"
	ErrBrandTooLong        ErrorKind = "BRAND_TOO_LONG"
	ErrModelTooLong        ErrorKind = "MODEL_TOO_LONG"
	ErrTypeTooLong         ErrorKind = "TYPE_TOO_LONG"
	ErrRatingTooLong       ErrorKind = "RATING_TOO_LONG"
	ErrPackSizeTooLong     ErrorKind = "PACK_SIZE_TOO_LONG"
)

// WarningKind is informational and never affects validity
type WarningKind string

const (
	WarnLowConfidenceSerial    WarningKind = "LOW_CONFIDENCE_SERIAL"
	WarnLowConfidenceBatch     WarningKind = "LOW_CONFIDENCE_BATCH"
	WarnPartialFieldExtraction WarningKind = "PARTIAL_FIELD_EXTRACTION"
	WarnImageQualityLow        WarningKind = "IMAGE_QUALITY_LOW"
)

const (
	maxSerialLength = 12
	errorPenalty    = 0.15
	warningPenalty  = 0.05
)

var exactSerialPattern = regexp.MustCompile(`^TA\d{7}$`)

// lengthErrors maps FieldSet struct fields to the error raised when their
// max tag fails
var lengthErrors = map[string]ErrorKind{
	"BatchNo":  ErrBatchTooLong,
	"Brand":    ErrBrandTooLong,
	"Model":    ErrModelTooLong,
	"Type":     ErrTypeTooLong,
	"Rating":   ErrRatingTooLong,
	"PackSize": ErrPackSizeTooLong,
}

// ValidationOutcome is the immutable result of validating a FieldSet
type ValidationOutcome struct {
	IsValid    bool          `json:"isValid"`
	Errors     []ErrorKind   `json:"errors"`
	Warnings   []WarningKind `json:"warnings"`
	Confidence float64       `json:"confidence"`
}

// HasError reports whether kind is among the outcome's errors
func (o ValidationOutcome) HasError(kind ErrorKind) bool {
	for _, e := range o.Errors {
		if e == kind {
			return true
		}
	}
	return false
}

// ValidationEngine applies the structural rules to a FieldSet
type ValidationEngine struct {
	validate *validator.Validate
}

// NewValidationEngine creates a validation engine
func NewValidationEngine() *ValidationEngine {
	return &ValidationEngine{validate: validator.New()}
}

// Validate checks fields and scores their completeness. It is pure and safe
// for concurrent use.
func (v *ValidationEngine) Validate(fields FieldSet) ValidationOutcome {
	errs := make([]ErrorKind, 0)
	warnings := make([]WarningKind, 0)

	if fields.SerialNo == nil || strings.TrimSpace(*fields.SerialNo) == "" {
		errs = append(errs, ErrMissingSerialNumber)
	} else {
		serial := *fields.SerialNo
		if !exactSerialPattern.MatchString(serial) {
			errs = append(errs, ErrInvalidSerialFormat)
		}
		if utf8.RuneCountInString(serial) > maxSerialLength {
			errs = append(errs, ErrSerialTooLong)
		}
	}

	if err := v.validate.Struct(fields); err != nil {
		if fieldErrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range fieldErrs {
				if kind, known := lengthErrors[fe.StructField()]; known && fe.Tag() == "max" {
					errs = append(errs, kind)
				}
			}
		}
	}

	return ValidationOutcome{
		IsValid:    len(errs) == 0,
		Errors:     errs,
		Warnings:   warnings,
		Confidence: validationConfidence(fields.Filled(), len(errs), len(warnings)),
	}
}

// validationConfidence rewards completeness and penalizes each error more
// than each warning
func validationConfidence(filled, errorCount, warningCount int) float64 {
	score := float64(filled)/float64(trackedFieldCount) -
		errorPenalty*float64(errorCount) -
		warningPenalty*float64(warningCount)
	return clamp01(score)
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

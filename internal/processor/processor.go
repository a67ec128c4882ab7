/**
 * Label Processor for the SIRIM capture worker
 *
 * Runs the capture pipeline for one frame:
 *   recognize -> extract fields -> validate -> aggregate confidence
 *
 * Recognition is delegated to a Recognizer (Tesseract in production).
 * Extraction, validation and aggregation are synchronous and touch no shared
 * mutable state, so a single LabelProcessor may serve many goroutines.
 */

package processor

import (
	"context"
	"fmt"
	"time"

	"github.com/adverant/nexus/sirim-worker/internal/errors"
	"github.com/adverant/nexus/sirim-worker/internal/logging"
	"github.com/adverant/nexus/sirim-worker/internal/metrics"
)

// Recognizer turns an image into text blocks
type Recognizer interface {
	Recognize(ctx context.Context, image []byte) ([]TextBlock, error)
}

// ProcessorConfig holds processor configuration
type ProcessorConfig struct {
	Recognizer Recognizer
	Metrics    *metrics.Registry
}

// LabelProcessor handles label capture
type LabelProcessor struct {
	recognizer Recognizer
	extractor  *FieldExtractor
	validation *ValidationEngine
	metrics    *metrics.Registry
	logger     *logging.Logger
}

// NewLabelProcessor creates a new label processor. A nil Recognizer is
// allowed for deployments that only accept pre-recognized blocks.
func NewLabelProcessor(cfg *ProcessorConfig) (*LabelProcessor, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	reg := cfg.Metrics
	if reg == nil {
		reg = metrics.NewRegistry()
	}

	return &LabelProcessor{
		recognizer: cfg.Recognizer,
		extractor:  NewFieldExtractor(),
		validation: NewValidationEngine(),
		metrics:    reg,
		logger:     logging.NewLogger("processor"),
	}, nil
}

// Validate exposes the processor's validation engine
func (p *LabelProcessor) Validate(fields FieldSet) ValidationOutcome {
	return p.validation.Validate(fields)
}

// Process recognizes image and scores the extracted fields
func (p *LabelProcessor) Process(ctx context.Context, image []byte) *ScoredResult {
	startTime := time.Now()

	if p.recognizer == nil {
		return p.fail(startTime, errors.NewRecognitionError(fmt.Errorf("no recognizer configured")))
	}
	if len(image) == 0 {
		return p.fail(startTime, errors.NewRecognitionError(fmt.Errorf("empty image")))
	}

	blocks, err := p.recognizer.Recognize(ctx, image)
	if err != nil {
		if ctx.Err() != nil {
			return p.fail(startTime, ctx.Err())
		}
		return p.fail(startTime, errors.NewRecognitionError(err))
	}

	return p.score(ctx, startTime, blocks)
}

// ProcessBlocks scores blocks recognized elsewhere
func (p *LabelProcessor) ProcessBlocks(ctx context.Context, blocks []TextBlock) *ScoredResult {
	return p.score(ctx, time.Now(), blocks)
}

func (p *LabelProcessor) score(ctx context.Context, startTime time.Time, blocks []TextBlock) *ScoredResult {
	if err := ctx.Err(); err != nil {
		return p.fail(startTime, err)
	}
	fields := p.extractor.Extract(blocks)

	if err := ctx.Err(); err != nil {
		return p.fail(startTime, err)
	}
	validation := p.validation.Validate(fields)
	final := Aggregate(RecognitionConfidences(blocks), validation.Confidence)

	elapsed := time.Since(startTime)
	p.metrics.CaptureLatencySec.Observe(elapsed.Seconds())
	p.metrics.FinalConfidence.Observe(final)

	p.logger.Debug("Label scored",
		"blocks", len(blocks),
		"filled", fields.Filled(),
		"errors", len(validation.Errors),
		"confidence", final,
		"elapsed_ms", elapsed.Milliseconds())

	return &ScoredResult{
		Success:         true,
		Fields:          &fields,
		FinalConfidence: final,
		Validation:      &validation,
		ElapsedMs:       elapsed.Milliseconds(),
	}
}

func (p *LabelProcessor) fail(startTime time.Time, err error) *ScoredResult {
	p.metrics.CaptureFailures.Inc()
	p.logger.Warn("Label processing failed", "error", err)
	return &ScoredResult{
		Success:      false,
		ErrorMessage: errors.UserMessage(err),
		ElapsedMs:    time.Since(startTime).Milliseconds(),
	}
}

/**
 * Tesseract OCR - local recognizer for label captures
 *
 * Produces block-level TextBlocks with per-word confidences, which is the
 * shape the field extractor works on. Words are attached to the block whose
 * rectangle contains the word's center.
 */

package tesseract

import (
	"context"
	"fmt"
	"image"
	"strings"

	"github.com/adverant/nexus/sirim-worker/internal/processor"
	"github.com/otiai10/gosseract/v2"
)

// Engine implements processor.Recognizer using gosseract
type Engine struct {
	clientFactory func() *gosseract.Client
	languages     []string
}

// Config holds Tesseract configuration
type Config struct {
	Languages []string
}

// NewEngine creates a Tesseract-backed recognizer
func NewEngine(cfg *Config) *Engine {
	langs := []string{"eng"}
	if cfg != nil && len(cfg.Languages) > 0 {
		langs = cfg.Languages
	}
	return &Engine{clientFactory: gosseract.NewClient, languages: langs}
}

// Recognize performs OCR on image
func (e *Engine) Recognize(ctx context.Context, img []byte) ([]processor.TextBlock, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	client := e.clientFactory()
	defer client.Close()

	if err := client.SetLanguage(e.languages...); err != nil {
		return nil, fmt.Errorf("set languages: %w", err)
	}
	if err := client.SetImageFromBytes(img); err != nil {
		return nil, fmt.Errorf("failed to set image: %w", err)
	}

	blockBoxes, err := client.GetBoundingBoxes(gosseract.RIL_BLOCK)
	if err != nil {
		return nil, fmt.Errorf("tesseract block layout failed: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	wordBoxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil, fmt.Errorf("tesseract word layout failed: %w", err)
	}

	return assembleBlocks(blockBoxes, wordBoxes), nil
}

// assembleBlocks converts gosseract boxes into TextBlocks, skipping blocks
// with no text
func assembleBlocks(blockBoxes, wordBoxes []gosseract.BoundingBox) []processor.TextBlock {
	blocks := make([]processor.TextBlock, 0, len(blockBoxes))
	rects := make([]image.Rectangle, 0, len(blockBoxes))
	for _, b := range blockBoxes {
		text := strings.TrimSpace(b.Word)
		if text == "" {
			continue
		}
		blocks = append(blocks, processor.TextBlock{
			Text: text,
			BoundingBox: processor.BoundingBox{
				Left:   b.Box.Min.X,
				Top:    b.Box.Min.Y,
				Right:  b.Box.Max.X,
				Bottom: b.Box.Max.Y,
			},
		})
		rects = append(rects, b.Box)
	}

	for _, w := range wordBoxes {
		if strings.TrimSpace(w.Word) == "" {
			continue
		}
		center := image.Pt((w.Box.Min.X+w.Box.Max.X)/2, (w.Box.Min.Y+w.Box.Max.Y)/2)
		for i, r := range rects {
			if center.In(r) {
				blocks[i].TokenConfidences = append(blocks[i].TokenConfidences, normalizeConfidence(w.Confidence))
				break
			}
		}
	}
	return blocks
}

// normalizeConfidence maps Tesseract's 0-100 scale to [0,1]
func normalizeConfidence(c float64) float64 {
	c = c / 100
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

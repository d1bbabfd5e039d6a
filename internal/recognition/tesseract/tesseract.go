// Package tesseract is a local recognition engine backed by libtesseract.
package tesseract

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"

	apperrors "github.com/GriffinCanCode/ocrwatch/internal/errors"
	"github.com/GriffinCanCode/ocrwatch/internal/recognition"
)

// Config holds Tesseract settings.
type Config struct {
	Languages []string // e.g. "eng", "chi_sim"
	Threshold float64  // results below this confidence are dropped; 0 keeps everything
}

// Engine recognizes text lines with Tesseract. A single client is reused and
// calls are serialized because the underlying API is not reentrant.
type Engine struct {
	mu        sync.Mutex
	client    *gosseract.Client
	threshold float64
}

// New creates an engine with the configured languages loaded.
func New(cfg Config) (*Engine, error) {
	client := gosseract.NewClient()
	if len(cfg.Languages) > 0 {
		if err := client.SetLanguage(cfg.Languages...); err != nil {
			_ = client.Close()
			return nil, apperrors.Wrapf(err, apperrors.CodeUnavailable, "set tesseract languages %v", cfg.Languages)
		}
	}
	return &Engine{client: client, threshold: cfg.Threshold}, nil
}

// Recognize returns one result per text line, in reading order.
func (e *Engine) Recognize(ctx context.Context, img []byte) ([]recognition.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.client.SetImageFromBytes(img); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeRecognitionFailed, "set image")
	}
	boxes, err := e.client.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeRecognitionFailed, "tesseract bounding boxes")
	}

	results := make([]recognition.Result, 0, len(boxes))
	for _, b := range boxes {
		text := strings.TrimSpace(b.Word)
		if text == "" {
			continue
		}
		conf := normalizeConfidence(b.Confidence)
		if conf < e.threshold {
			continue
		}
		results = append(results, recognition.Result{Text: text, Box: b.Box, Confidence: conf})
	}
	return results, nil
}

// SetConfidenceThreshold changes the engine-side filter.
func (e *Engine) SetConfidenceThreshold(threshold float64) {
	e.mu.Lock()
	e.threshold = threshold
	e.mu.Unlock()
}

// Close releases the tesseract client.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.client.Close(); err != nil {
		return fmt.Errorf("close tesseract: %w", err)
	}
	return nil
}

// normalizeConfidence maps Tesseract's 0..100 scale onto 0..1.
func normalizeConfidence(c float64) float64 {
	switch {
	case c <= 0:
		return 0
	case c >= 100:
		return 1
	default:
		return c / 100
	}
}

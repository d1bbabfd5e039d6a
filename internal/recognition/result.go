// Package recognition defines recognized text spans and the engines that produce them.
package recognition

import (
	"context"
	"image"
	"math"
)

// Point is a sub-pixel screen coordinate.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Rounded returns the nearest integer device coordinates.
func (p Point) Rounded() (int, int) {
	return int(math.Round(p.X)), int(math.Round(p.Y))
}

// Result is one recognized text span. Results are produced fresh for every
// recognition call and are never mutated afterwards.
type Result struct {
	Text       string          `json:"text"`
	Box        image.Rectangle `json:"box"`
	Points     []image.Point   `json:"points,omitempty"` // quad corners when the engine reports them
	Confidence float64         `json:"confidence"`       // 0..1
}

// Center returns the mean of the quad corners, or the box center when no quad is known.
func (r Result) Center() Point {
	if len(r.Points) == 4 {
		var sx, sy float64
		for _, p := range r.Points {
			sx += float64(p.X)
			sy += float64(p.Y)
		}
		return Point{X: sx / 4, Y: sy / 4}
	}
	return Point{
		X: float64(r.Box.Min.X+r.Box.Max.X) / 2,
		Y: float64(r.Box.Min.Y+r.Box.Max.Y) / 2,
	}
}

// ValidConfidence reports whether c lies in [0,1]. NaN is never valid.
func ValidConfidence(c float64) bool {
	return c >= 0 && c <= 1
}

// Engine turns raw image bytes into located text spans.
type Engine interface {
	Recognize(ctx context.Context, img []byte) ([]Result, error)
}

// ThresholdSetter is implemented by engines that filter their own output by confidence.
type ThresholdSetter interface {
	SetConfidenceThreshold(threshold float64)
}

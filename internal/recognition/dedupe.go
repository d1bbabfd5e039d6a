package recognition

import (
	"bytes"
	"context"
	"image"
	_ "image/jpeg" // JPEG decoder
	_ "image/png"  // PNG decoder
	"log/slog"
	"sync"

	"github.com/corona10/goimagehash"
)

// DefaultMaxHashDistance treats only frames with an identical perceptual hash as unchanged.
const DefaultMaxHashDistance = 0

// Deduper skips recognition for frames that look like the previous one and
// replays the previous results instead. Matching still runs on every frame.
type Deduper struct {
	engine      Engine
	maxDistance int

	mu       sync.Mutex
	lastHash *goimagehash.ImageHash
	last     []Result
}

// NewDeduper wraps engine with perceptual-hash frame de-duplication.
func NewDeduper(engine Engine, maxDistance int) *Deduper {
	if maxDistance < 0 {
		maxDistance = DefaultMaxHashDistance
	}
	return &Deduper{engine: engine, maxDistance: maxDistance}
}

// Recognize returns cached results for a similar frame, otherwise delegates.
func (d *Deduper) Recognize(ctx context.Context, img []byte) ([]Result, error) {
	hash := perceptionHash(img)
	if hash != nil {
		if cached, ok := d.cached(hash); ok {
			return cached, nil
		}
	}

	results, err := d.engine.Recognize(ctx, img)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	d.lastHash = hash
	d.last = append([]Result(nil), results...)
	d.mu.Unlock()
	return results, nil
}

func (d *Deduper) cached(hash *goimagehash.ImageHash) ([]Result, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.lastHash == nil {
		return nil, false
	}
	dist, err := d.lastHash.Distance(hash)
	if err != nil || dist > d.maxDistance {
		return nil, false
	}
	slog.Debug("reusing recognition for similar frame", "distance", dist, "results", len(d.last))
	return append([]Result(nil), d.last...), true
}

// Reset drops the cached frame.
func (d *Deduper) Reset() {
	d.mu.Lock()
	d.lastHash = nil
	d.last = nil
	d.mu.Unlock()
}

// SetConfidenceThreshold forwards to the wrapped engine and invalidates the cache.
func (d *Deduper) SetConfidenceThreshold(threshold float64) {
	if ts, ok := AsThresholdSetter(d.engine); ok {
		ts.SetConfidenceThreshold(threshold)
	}
	d.Reset()
}

// Unwrap returns the wrapped engine.
func (d *Deduper) Unwrap() Engine { return d.engine }

// AsThresholdSetter reports whether e, or every engine it wraps, accepts runtime thresholds.
func AsThresholdSetter(e Engine) (ThresholdSetter, bool) {
	if u, ok := e.(interface{ Unwrap() Engine }); ok {
		if _, ok := AsThresholdSetter(u.Unwrap()); !ok {
			return nil, false
		}
	}
	ts, ok := e.(ThresholdSetter)
	return ts, ok
}

// perceptionHash returns nil when the bytes are not a decodable image.
func perceptionHash(img []byte) *goimagehash.ImageHash {
	decoded, _, err := image.Decode(bytes.NewReader(img))
	if err != nil {
		return nil
	}
	hash, err := goimagehash.PerceptionHash(decoded)
	if err != nil {
		return nil
	}
	return hash
}

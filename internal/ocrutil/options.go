package ocrutil

import (
	"image"
	"time"

	"github.com/GriffinCanCode/ocrwatch/internal/textmatch"
)

// Defaults for one-shot lookups
const (
	DefaultConfidence   = 0.7
	DefaultTimeout      = 10 * time.Second
	DefaultPollInterval = time.Second
)

// Option adjusts a single lookup.
type Option func(*Options)

// Options controls how text is searched for and acted on.
type Options struct {
	Timeout      time.Duration
	PollInterval time.Duration
	Confidence   float64
	Region       *textmatch.Region // nil means whole screen
	Mode         textmatch.Mode
	Offset       image.Point // added to the matched center before acting
	DoubleTap    bool
	Target       *image.Point // reference point for StrategyNearest
}

// DefaultOptions returns the defaults used when no option overrides them.
func DefaultOptions() Options {
	return Options{
		Timeout:      DefaultTimeout,
		PollInterval: DefaultPollInterval,
		Confidence:   DefaultConfidence,
		Mode:         textmatch.Exact,
	}
}

func apply(base Options, opts []Option) Options {
	for _, opt := range opts {
		opt(&base)
	}
	return base
}

// WithTimeout bounds how long a lookup keeps polling. Zero means one attempt.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) { o.Timeout = max(d, 0) }
}

// WithPollInterval sets the delay between attempts.
func WithPollInterval(d time.Duration) Option {
	return func(o *Options) { o.PollInterval = d }
}

// WithConfidence sets the minimum confidence.
func WithConfidence(c float64) Option {
	return func(o *Options) { o.Confidence = c }
}

// WithRegion limits matches to results centered inside the rectangle.
func WithRegion(x1, y1, x2, y2 int) Option {
	return func(o *Options) { o.Region = &textmatch.Region{X1: x1, Y1: y1, X2: x2, Y2: y2} }
}

// WithMode sets the match mode.
func WithMode(m textmatch.Mode) Option {
	return func(o *Options) { o.Mode = m.Normalize() }
}

// WithOffset shifts the tap point from the matched center.
func WithOffset(dx, dy int) Option {
	return func(o *Options) { o.Offset = image.Pt(dx, dy) }
}

// WithDoubleTap taps twice.
func WithDoubleTap() Option {
	return func(o *Options) { o.DoubleTap = true }
}

// WithTarget sets the reference point for StrategyNearest.
func WithTarget(x, y int) Option {
	return func(o *Options) {
		p := image.Pt(x, y)
		o.Target = &p
	}
}

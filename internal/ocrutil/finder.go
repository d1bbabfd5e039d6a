// Package ocrutil provides one-shot helpers that find text on screen and act on it.
package ocrutil

import (
	"context"
	"image"
	"log/slog"
	"math"
	"time"

	apperrors "github.com/GriffinCanCode/ocrwatch/internal/errors"
	"github.com/GriffinCanCode/ocrwatch/internal/recognition"
	"github.com/GriffinCanCode/ocrwatch/internal/textmatch"
	"github.com/GriffinCanCode/ocrwatch/internal/watcher"
)

// Swiper is implemented by devices that can drag between two points.
type Swiper interface {
	Swipe(ctx context.Context, x1, y1, x2, y2 int, duration time.Duration) error
}

// Strategy picks one result when several texts match.
type Strategy string

const (
	StrategyConfidence Strategy = "confidence"
	StrategyNearest    Strategy = "nearest"
	StrategyFirst      Strategy = "first"
)

// Finder runs lookups against one device and one engine.
type Finder struct {
	dev      watcher.Device
	eng      watcher.Recognizer
	defaults Options
}

// New creates a Finder. opts become the defaults for every call.
func New(dev watcher.Device, eng watcher.Recognizer, opts ...Option) *Finder {
	return &Finder{dev: dev, eng: eng, defaults: apply(DefaultOptions(), opts)}
}

// Recognize captures the screen once and returns every result.
func (f *Finder) Recognize(ctx context.Context) ([]recognition.Result, error) {
	img, err := f.dev.Screenshot(ctx)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeCaptureFailed, "screenshot")
	}
	if len(img) == 0 {
		return nil, apperrors.New(apperrors.CodeCaptureFailed, "screenshot returned no data")
	}
	results, err := f.eng.Recognize(ctx, img)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeRecognitionFailed, "recognize")
	}
	return results, nil
}

// Texts returns the text of every result passing the confidence and region filters.
func (f *Finder) Texts(ctx context.Context, opts ...Option) ([]string, error) {
	o := apply(f.defaults, opts)
	results, err := f.Recognize(ctx)
	if err != nil {
		return nil, err
	}
	texts := make([]string, 0, len(results))
	for _, r := range results {
		if r.Confidence < o.Confidence {
			continue
		}
		if o.Region != nil && !o.Region.Contains(r.Center()) {
			continue
		}
		texts = append(texts, r.Text)
	}
	return texts, nil
}

// Locate polls until text appears and returns the first matching result.
func (f *Finder) Locate(ctx context.Context, text string, opts ...Option) (recognition.Result, error) {
	o := apply(f.defaults, opts)
	filter := o.filter(text)

	var found recognition.Result
	err := f.poll(ctx, o, text, func(results []recognition.Result) bool {
		var ok bool
		found, ok = filter.First(results)
		return ok
	})
	return found, err
}

// Position locates text and returns its center shifted by the configured offset.
func (f *Finder) Position(ctx context.Context, text string, opts ...Option) (image.Point, error) {
	o := apply(f.defaults, opts)
	res, err := f.Locate(ctx, text, opts...)
	if err != nil {
		return image.Point{}, err
	}
	return o.target(res), nil
}

// Wait reports whether text appears before the timeout.
func (f *Finder) Wait(ctx context.Context, text string, opts ...Option) (bool, error) {
	_, err := f.Locate(ctx, text, opts...)
	switch {
	case err == nil:
		return true, nil
	case apperrors.IsCode(err, apperrors.CodeNotFound):
		return false, nil
	default:
		return false, err
	}
}

// Tap locates text and taps it, twice with WithDoubleTap.
func (f *Finder) Tap(ctx context.Context, text string, opts ...Option) (recognition.Result, error) {
	o := apply(f.defaults, opts)
	res, err := f.Locate(ctx, text, opts...)
	if err != nil {
		return res, err
	}
	return res, f.tap(ctx, o, res)
}

// TapAny waits for any of texts and taps the result chosen by strategy.
func (f *Finder) TapAny(ctx context.Context, texts []string, strategy Strategy, opts ...Option) (recognition.Result, error) {
	o := apply(f.defaults, opts)
	filter := o.filter(texts...)

	var chosen recognition.Result
	err := f.poll(ctx, o, texts, func(results []recognition.Result) bool {
		matched := filter.All(results)
		if len(matched) == 0 {
			return false
		}
		chosen = pick(matched, strategy, o.Target)
		return true
	})
	if err != nil {
		return chosen, err
	}
	return chosen, f.tap(ctx, o, chosen)
}

// Swipe waits until both texts are visible in the same frame and drags from one to the other.
func (f *Finder) Swipe(ctx context.Context, from, to string, duration time.Duration, opts ...Option) error {
	swiper, ok := f.dev.(Swiper)
	if !ok {
		return apperrors.New(apperrors.CodeUnsupported, "device cannot swipe")
	}
	o := apply(f.defaults, opts)
	fromFilter, toFilter := o.filter(from), o.filter(to)

	var start, end recognition.Result
	err := f.poll(ctx, o, []string{from, to}, func(results []recognition.Result) bool {
		var okFrom, okTo bool
		start, okFrom = fromFilter.First(results)
		end, okTo = toFilter.First(results)
		return okFrom && okTo
	})
	if err != nil {
		return err
	}

	x1, y1 := start.Center().Rounded()
	x2, y2 := end.Center().Rounded()
	if err := swiper.Swipe(ctx, x1, y1, x2, y2, duration); err != nil {
		return apperrors.Wrap(err, apperrors.CodeActionFailed, "swipe")
	}
	slog.Info("swiped", "from", from, "to", to, "x1", x1, "y1", y1, "x2", x2, "y2", y2)
	return nil
}

func (f *Finder) tap(ctx context.Context, o Options, res recognition.Result) error {
	p := o.target(res)
	taps := 1
	if o.DoubleTap {
		taps = 2
	}
	for range taps {
		if err := f.dev.Click(ctx, p.X, p.Y); err != nil {
			return apperrors.Wrap(err, apperrors.CodeActionFailed, "tap")
		}
	}
	slog.Info("tapped text", "text", res.Text, "x", p.X, "y", p.Y, "confidence", res.Confidence, "taps", taps)
	return nil
}

// poll retries capture and recognition until try accepts a frame or the
// timeout passes. At least one attempt is always made.
func (f *Finder) poll(ctx context.Context, o Options, what any, try func([]recognition.Result) bool) error {
	deadline := time.Now().Add(o.Timeout)
	var lastErr error

	for {
		results, err := f.Recognize(ctx)
		if err == nil && try(results) {
			return nil
		}
		if err != nil {
			lastErr = err
			slog.Debug("lookup attempt failed", "text", what, "error", err)
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		timer := time.NewTimer(min(o.PollInterval, remaining))
		select {
		case <-ctx.Done():
			timer.Stop()
			return apperrors.Wrap(ctx.Err(), apperrors.CodeCancelled, "lookup cancelled")
		case <-timer.C:
		}
	}

	notFound := apperrors.Newf(apperrors.CodeNotFound, "text %v not found", what).
		WithMetadata("timeout", o.Timeout.String())
	if lastErr != nil {
		notFound.Cause = lastErr
	}
	return notFound
}

func (o Options) filter(keywords ...string) textmatch.Filter {
	return textmatch.Filter{
		Matcher:    textmatch.NewMatcher(o.Mode, keywords...),
		Region:     o.Region,
		Confidence: o.Confidence,
	}
}

func (o Options) target(res recognition.Result) image.Point {
	x, y := res.Center().Rounded()
	return image.Pt(x, y).Add(o.Offset)
}

func pick(matched []recognition.Result, strategy Strategy, target *image.Point) recognition.Result {
	switch {
	case strategy == StrategyConfidence:
		best := matched[0]
		for _, r := range matched[1:] {
			if r.Confidence > best.Confidence {
				best = r
			}
		}
		return best
	case strategy == StrategyNearest && target != nil:
		best, bestDist := matched[0], math.Inf(1)
		for _, r := range matched {
			c := r.Center()
			if d := math.Hypot(c.X-float64(target.X), c.Y-float64(target.Y)); d < bestDist {
				best, bestDist = r, d
			}
		}
		return best
	default:
		return matched[0]
	}
}

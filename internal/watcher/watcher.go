// Package watcher runs a background loop that captures the screen, recognizes
// text and dispatches actions for registered rules.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/GriffinCanCode/ocrwatch/internal/errors"
	"github.com/GriffinCanCode/ocrwatch/internal/recognition"
	"github.com/GriffinCanCode/ocrwatch/internal/syncx"
	"github.com/GriffinCanCode/ocrwatch/internal/trace"
)

// Option configures a Watcher.
type Option func(*Watcher)

// WithDefaultConfidence sets the floor used by rules without their own.
func WithDefaultConfidence(c float64) Option {
	return func(w *Watcher) { w.defaultConfidence.Set(c) }
}

// WithClock replaces the clock used for cooldown bookkeeping.
func WithClock(now func() time.Time) Option {
	return func(w *Watcher) { w.now = now }
}

// WithStopTimeout bounds how long Stop waits for the loop.
func WithStopTimeout(d time.Duration) Option {
	return func(w *Watcher) { w.stopTimeout = d }
}

// WithSink registers an event sink.
func WithSink(s Sink) Option {
	return func(w *Watcher) { w.sinks.Append(s) }
}

// Watcher owns the rule set, the polling loop and per-rule cooldown state.
type Watcher struct {
	device Device
	engine Recognizer

	now         func() time.Time
	stopTimeout time.Duration

	rules             syncx.List[*Rule]
	lastFired         syncx.Map[uuid.UUID, time.Time]
	defaultConfidence *syncx.Guard[float64]
	sinks             syncx.List[Sink]

	lifecycleMu sync.Mutex
	running     bool
	interval    time.Duration
	stopCh      chan struct{}
	doneCh      chan struct{}
	cancel      context.CancelFunc
}

// New creates a stopped watcher bound to one device and one engine.
func New(device Device, engine Recognizer, opts ...Option) *Watcher {
	w := &Watcher{
		device:            device,
		engine:            engine,
		now:               time.Now,
		stopTimeout:       StopTimeout,
		defaultConfidence: syncx.NewGuard(DefaultConfidence),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// When starts a rule matching text.
func (w *Watcher) When(text string) *RuleBuilder {
	return newBuilder(w, text)
}

// AddSink registers an event sink on a live watcher.
func (w *Watcher) AddSink(s Sink) {
	w.sinks.Append(s)
}

// Device returns the device the watcher drives.
func (w *Watcher) Device() Device { return w.device }

// Engine returns the recognition engine.
func (w *Watcher) Engine() Recognizer { return w.engine }

func (w *Watcher) add(r *Rule) {
	w.rules.Append(r)
	slog.Info("rule registered", "rule_id", r.ID, "keywords", r.Keywords, "mode", r.Mode, "action", r.ActionName)
}

// Start launches the polling loop. Calling it while running is a no-op.
func (w *Watcher) Start(interval time.Duration) {
	w.lifecycleMu.Lock()
	defer w.lifecycleMu.Unlock()

	if w.running {
		slog.Info("watcher already running", "interval", w.interval)
		return
	}
	if interval <= 0 {
		interval = DefaultInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.cancel = cancel
	w.interval = interval
	w.running = true

	go w.loop(ctx, interval, w.stopCh, w.doneCh)
	slog.Info("watcher started", "interval", interval, "rules", w.rules.Len())
}

// Stop signals the loop and waits, bounded, for it to exit. Safe when stopped.
func (w *Watcher) Stop() {
	w.lifecycleMu.Lock()
	defer w.lifecycleMu.Unlock()

	if !w.running {
		return
	}
	close(w.stopCh)

	select {
	case <-w.doneCh:
	case <-time.After(w.stopTimeout):
		slog.Warn("watcher loop did not exit in time", "timeout", w.stopTimeout)
	}
	w.cancel()
	w.running = false
	slog.Info("watcher stopped")
}

// Running reports whether the polling loop is active.
func (w *Watcher) Running() bool {
	w.lifecycleMu.Lock()
	defer w.lifecycleMu.Unlock()
	return w.running
}

// Interval returns the interval of the current or last run.
func (w *Watcher) Interval() time.Duration {
	w.lifecycleMu.Lock()
	defer w.lifecycleMu.Unlock()
	return w.interval
}

// Clear removes every rule. The next cycle sees an empty rule set.
func (w *Watcher) Clear() {
	n := w.rules.Clear()
	w.lastFired.Reset()
	slog.Info("rules cleared", "count", n)
}

// Remove deletes one rule by ID.
func (w *Watcher) Remove(id uuid.UUID) bool {
	_, ok := w.rules.RemoveFunc(func(r *Rule) bool { return r.ID == id })
	if ok {
		w.lastFired.Delete(id)
		slog.Info("rule removed", "rule_id", id)
	}
	return ok
}

// Rules lists the registered rules in evaluation order.
func (w *Watcher) Rules() []RuleInfo {
	snapshot := w.rules.Snapshot()
	out := make([]RuleInfo, 0, len(snapshot))
	for _, r := range snapshot {
		info := RuleInfo{
			ID:              r.ID.String(),
			Keywords:        append([]string(nil), r.Keywords...),
			Mode:            r.Mode,
			Region:          r.Region,
			Confidence:      r.Confidence,
			CooldownSeconds: r.Cooldown.Seconds(),
			Action:          r.ActionName,
		}
		if at, ok := w.lastFired.Load(r.ID); ok {
			info.LastTriggered = &at
		}
		out = append(out, info)
	}
	return out
}

// SetConfidenceThreshold forwards threshold to the engine. Engines without
// runtime thresholds are left untouched and an UNSUPPORTED error is returned.
func (w *Watcher) SetConfidenceThreshold(threshold float64) error {
	ts, ok := recognition.AsThresholdSetter(w.engine)
	if !ok {
		slog.Warn("recognition engine does not support confidence threshold", "threshold", threshold)
		return apperrors.New(apperrors.CodeUnsupported, "engine does not support confidence threshold")
	}
	ts.SetConfidenceThreshold(threshold)
	slog.Info("engine confidence threshold set", "threshold", threshold)
	return nil
}

// SetDefaultConfidence changes the floor for rules without their own.
func (w *Watcher) SetDefaultConfidence(c float64) {
	old := w.defaultConfidence.Swap(c)
	slog.Info("default confidence changed", "old", old, "new", c)
}

// DefaultConfidence returns the watcher-wide confidence floor.
func (w *Watcher) DefaultConfidence() float64 {
	return w.defaultConfidence.Get()
}

func (w *Watcher) loop(ctx context.Context, interval time.Duration, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	for {
		select {
		case <-stopCh:
			return
		default:
		}

		started := time.Now()
		w.runCycle(ctx)

		wait := max(interval-time.Since(started), 0)
		timer := time.NewTimer(wait)
		select {
		case <-stopCh:
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// runCycle runs one Check and keeps any failure inside the cycle.
func (w *Watcher) runCycle(ctx context.Context) {
	ctx, span := trace.StartSpan(ctx, "watcher.cycle")
	log := trace.Logger(ctx)
	defer func() {
		span.End()
		if r := recover(); r != nil {
			log.Error("check cycle panicked", "panic", r)
		}
	}()

	n, err := w.Check(ctx)
	switch {
	case err == nil:
		if n > 0 {
			log.Debug("check cycle complete", "dispatched", n, "duration", span.Duration())
		}
	case apperrors.IsCode(err, apperrors.CodeCaptureFailed):
		log.Warn("screenshot unavailable, skipping cycle", "error", err)
	default:
		log.Error("check cycle failed", "error", err)
	}
}

// Check runs one capture, recognize, match and dispatch pass and returns the
// number of actions dispatched. Action failures are reported through logs
// and events, not through the returned error.
func (w *Watcher) Check(ctx context.Context) (int, error) {
	img, err := guard(func() ([]byte, error) { return w.device.Screenshot(ctx) })
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.CodeCaptureFailed, "screenshot")
	}
	if len(img) == 0 {
		return 0, apperrors.New(apperrors.CodeCaptureFailed, "screenshot returned no data")
	}

	results, err := guard(func() ([]recognition.Result, error) { return w.engine.Recognize(ctx, img) })
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.CodeRecognitionFailed, "recognize")
	}
	if len(results) == 0 {
		return 0, nil
	}

	rules := w.rules.Snapshot()
	floor := w.defaultConfidence.Get()
	dispatched := 0
	for _, rule := range rules {
		res, ok := rule.Match(results, floor)
		if !ok {
			continue
		}
		now := w.now()
		if w.coolingDown(rule, now) {
			trace.Logger(ctx).Debug("rule in cooldown", "rule_id", rule.ID, "text", res.Text)
			continue
		}
		w.dispatch(ctx, rule, res, now)
		dispatched++
	}
	return dispatched, nil
}

func (w *Watcher) coolingDown(rule *Rule, now time.Time) bool {
	if rule.Cooldown <= 0 {
		return false
	}
	last, ok := w.lastFired.Load(rule.ID)
	return ok && now.Sub(last) < rule.Cooldown
}

func (w *Watcher) dispatch(ctx context.Context, rule *Rule, res recognition.Result, now time.Time) {
	log := trace.Logger(ctx)
	x, y := res.Center().Rounded()

	_, err := guard(func() (struct{}, error) { return struct{}{}, rule.action(ctx, res, w.device) })
	w.lastFired.Store(rule.ID, now)

	ev := Event{
		RuleID:     rule.ID.String(),
		Action:     rule.ActionName,
		Text:       res.Text,
		Confidence: res.Confidence,
		X:          x,
		Y:          y,
		At:         now,
	}
	if err != nil {
		err = apperrors.Wrap(err, apperrors.CodeActionFailed, "rule action").WithMetadata("rule_id", ev.RuleID)
		ev.Error = err.Error()
		log.Error("rule action failed", "rule_id", rule.ID, "action", rule.ActionName, "text", res.Text, "error", err)
	} else {
		log.Info("rule triggered", "rule_id", rule.ID, "action", rule.ActionName, "text", res.Text,
			"x", x, "y", y, "confidence", res.Confidence)
	}

	for _, s := range w.sinks.Snapshot() {
		if _, err := guard(func() (struct{}, error) { s.Publish(ctx, ev); return struct{}{}, nil }); err != nil {
			log.Error("event sink failed", "rule_id", rule.ID, "error", err)
		}
	}
}

// guard runs fn and converts a panic into an error.
func guard[T any](fn func() (T, error)) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

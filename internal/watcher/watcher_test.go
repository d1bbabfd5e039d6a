package watcher

import (
	"context"
	"errors"
	"image"
	"math"
	"sync"
	"testing"
	"time"

	apperrors "github.com/GriffinCanCode/ocrwatch/internal/errors"
	"github.com/GriffinCanCode/ocrwatch/internal/recognition"
	"github.com/GriffinCanCode/ocrwatch/internal/textmatch"
)

type click struct{ x, y int }

type fakeDevice struct {
	mu          sync.Mutex
	img         []byte
	err         error
	block       bool
	screenshots int
	clicks      []click
	backs       int
}

func newFakeDevice() *fakeDevice { return &fakeDevice{img: []byte("frame")} }

func (d *fakeDevice) Screenshot(ctx context.Context) ([]byte, error) {
	d.mu.Lock()
	d.screenshots++
	block := d.block
	d.mu.Unlock()
	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.img, d.err
}

func (d *fakeDevice) Click(_ context.Context, x, y int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clicks = append(d.clicks, click{x, y})
	return nil
}

func (d *fakeDevice) PressBack(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.backs++
	return nil
}

func (d *fakeDevice) Clicks() []click {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]click(nil), d.clicks...)
}

func (d *fakeDevice) Backs() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.backs
}

func (d *fakeDevice) Screenshots() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.screenshots
}

type fakeEngine struct {
	mu      sync.Mutex
	results []recognition.Result
	err     error
	panics  int
	calls   int
}

func (e *fakeEngine) Recognize(context.Context, []byte) ([]recognition.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.panics > 0 {
		e.panics--
		panic("engine exploded")
	}
	return append([]recognition.Result(nil), e.results...), e.err
}

func (e *fakeEngine) set(results ...recognition.Result) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.results = results
}

func (e *fakeEngine) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

type thresholdEngine struct {
	fakeEngine
	threshold float64
}

func (e *thresholdEngine) SetConfidenceThreshold(t float64) { e.threshold = t }

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(offset time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = time.Unix(1_700_000_000, 0).Add(offset)
}

// result builds a result whose box is centered on (cx, cy).
func result(text string, conf float64, cx, cy int) recognition.Result {
	return recognition.Result{
		Text:       text,
		Box:        image.Rect(cx-10, cy-5, cx+10, cy+5),
		Confidence: conf,
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestScenarioClickEveryCycle(t *testing.T) {
	dev := newFakeDevice()
	eng := &fakeEngine{}
	eng.set(result("Allow", 0.9, 50, 60))

	w := New(dev, eng)
	w.When("Allow").Click()

	w.Start(5 * time.Millisecond)
	defer w.Stop()

	waitFor(t, func() bool { return len(dev.Clicks()) >= 2 })
	for i, c := range dev.Clicks()[:2] {
		if c != (click{50, 60}) {
			t.Errorf("click %d = %v, want (50,60)", i, c)
		}
	}
}

func TestScenarioCooldown(t *testing.T) {
	dev := newFakeDevice()
	eng := &fakeEngine{}
	eng.set(result("Allow", 0.9, 50, 60))
	clock := &fakeClock{}

	w := New(dev, eng, WithClock(clock.Now))
	w.When("Allow").Cooldown(5 * time.Second).Click()

	ctx := context.Background()
	for _, sec := range []int{0, 1, 2} {
		clock.Set(time.Duration(sec) * time.Second)
		if _, err := w.Check(ctx); err != nil {
			t.Fatalf("Check at t=%d: %v", sec, err)
		}
	}
	if n := len(dev.Clicks()); n != 1 {
		t.Fatalf("clicks after t=0..2 = %d, want 1", n)
	}

	clock.Set(6 * time.Second)
	if _, err := w.Check(ctx); err != nil {
		t.Fatal(err)
	}
	if n := len(dev.Clicks()); n != 2 {
		t.Errorf("clicks after t=6 = %d, want 2", n)
	}
}

func TestCooldownBoundary(t *testing.T) {
	dev := newFakeDevice()
	eng := &fakeEngine{}
	eng.set(result("Allow", 0.9, 50, 60))
	clock := &fakeClock{}

	w := New(dev, eng, WithClock(clock.Now))
	w.When("Allow").Cooldown(5 * time.Second).Click()

	clock.Set(0)
	_, _ = w.Check(context.Background())
	clock.Set(5 * time.Second)
	_, _ = w.Check(context.Background())

	if n := len(dev.Clicks()); n != 2 {
		t.Errorf("clicks = %d, want 2 when elapsed equals the cooldown", n)
	}
}

func TestScenarioRegexDismiss(t *testing.T) {
	dev := newFakeDevice()
	eng := &fakeEngine{}

	w := New(dev, eng)
	w.When(`\d+s`).MatchMode(textmatch.Regex).Dismiss()

	eng.set(result("5s left", 0.9, 10, 10))
	if _, err := w.Check(context.Background()); err != nil {
		t.Fatal(err)
	}
	if dev.Backs() != 1 {
		t.Fatalf("backs = %d, want 1", dev.Backs())
	}

	eng.set(result("five left", 0.9, 10, 10))
	if _, err := w.Check(context.Background()); err != nil {
		t.Fatal(err)
	}
	if dev.Backs() != 1 {
		t.Errorf("backs = %d, want still 1", dev.Backs())
	}
}

func TestZeroResultsDispatchNothing(t *testing.T) {
	dev := newFakeDevice()
	eng := &fakeEngine{}

	w := New(dev, eng)
	w.When("Allow").Click()
	w.When("Skip").Dismiss()

	n, err := w.Check(context.Background())
	if err != nil || n != 0 {
		t.Fatalf("Check = %d, %v; want 0, nil", n, err)
	}
	if len(dev.Clicks()) != 0 || dev.Backs() != 0 {
		t.Error("actions dispatched without results")
	}
	for _, r := range w.Rules() {
		if r.LastTriggered != nil {
			t.Errorf("rule %s has LastTriggered set", r.ID)
		}
	}
}

func TestRegionAndConfidenceFilters(t *testing.T) {
	tests := []struct {
		name  string
		build func(w *Watcher)
		res   recognition.Result
		want  int
	}{
		{"inside region", func(w *Watcher) { w.When("OK").Region(0, 0, 100, 100).Click() }, result("OK", 0.9, 100, 100), 1},
		{"outside region", func(w *Watcher) { w.When("OK").Region(0, 0, 100, 100).Click() }, result("OK", 0.99, 101, 50), 0},
		{"below default floor", func(w *Watcher) { w.When("OK").Click() }, result("OK", 0.69, 10, 10), 0},
		{"rule floor overrides default", func(w *Watcher) { w.When("OK").Confidence(0.5).Click() }, result("OK", 0.6, 10, 10), 1},
		{"rule floor stricter than default", func(w *Watcher) { w.When("OK").Confidence(0.95).Click() }, result("OK", 0.9, 10, 10), 0},
		{"builder defaults to contains", func(w *Watcher) { w.When("OK").Click() }, result("Press OK now", 0.9, 10, 10), 1},
		{"unknown mode is exact", func(w *Watcher) { w.When("OK").MatchMode("fuzzy").Click() }, result("Press OK now", 0.9, 10, 10), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := newFakeDevice()
			eng := &fakeEngine{}
			eng.set(tt.res)
			w := New(dev, eng)
			tt.build(w)

			if _, err := w.Check(context.Background()); err != nil {
				t.Fatal(err)
			}
			if got := len(dev.Clicks()); got != tt.want {
				t.Errorf("clicks = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestFirstMatchingResultWins(t *testing.T) {
	dev := newFakeDevice()
	eng := &fakeEngine{}
	eng.set(
		result("Allow", 0.5, 1, 1),
		result("Allow", 0.8, 20, 20),
		result("Allow", 0.95, 40, 40),
	)

	w := New(dev, eng)
	w.When("Allow").Click()
	_, _ = w.Check(context.Background())

	if c := dev.Clicks(); len(c) != 1 || c[0] != (click{20, 20}) {
		t.Errorf("clicks = %v, want [(20,20)]", c)
	}
}

func TestActionFailureAdvancesCooldown(t *testing.T) {
	dev := newFakeDevice()
	eng := &fakeEngine{}
	eng.set(result("Allow", 0.9, 50, 60))
	clock := &fakeClock{}

	var calls int
	w := New(dev, eng, WithClock(clock.Now))
	w.When("Allow").Cooldown(10 * time.Second).Call(func(context.Context, recognition.Result, Device) error {
		calls++
		return errors.New("boom")
	})
	w.When("Allow").Cooldown(10 * time.Second).Call(func(context.Context, recognition.Result, Device) error {
		calls++
		panic("callback panic")
	})
	w.When("Allow").Click()

	clock.Set(0)
	n, err := w.Check(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 || calls != 2 || len(dev.Clicks()) != 1 {
		t.Fatalf("dispatched=%d calls=%d clicks=%d; want 3, 2, 1", n, calls, len(dev.Clicks()))
	}

	clock.Set(time.Second)
	_, _ = w.Check(context.Background())
	if calls != 2 {
		t.Errorf("failing callbacks re-triggered inside cooldown: calls = %d", calls)
	}
	if len(dev.Clicks()) != 2 {
		t.Errorf("rule after failing ones not evaluated: clicks = %d", len(dev.Clicks()))
	}
	for _, r := range w.Rules() {
		if r.LastTriggered == nil {
			t.Errorf("rule %s (%s) has no LastTriggered", r.ID, r.Action)
		}
	}
}

func TestCaptureFailures(t *testing.T) {
	tests := []struct {
		name string
		img  []byte
		err  error
	}{
		{"error", nil, errors.New("adb offline")},
		{"empty", []byte{}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := newFakeDevice()
			dev.img, dev.err = tt.img, tt.err
			eng := &fakeEngine{}

			w := New(dev, eng)
			w.When("Allow").Click()

			_, err := w.Check(context.Background())
			if !apperrors.IsCode(err, apperrors.CodeCaptureFailed) {
				t.Errorf("err = %v, want CAPTURE_FAILED", err)
			}
			if eng.Calls() != 0 {
				t.Error("engine called without a screenshot")
			}
		})
	}
}

func TestRecognitionFailures(t *testing.T) {
	dev := newFakeDevice()
	eng := &fakeEngine{err: errors.New("model missing")}
	w := New(dev, eng)

	if _, err := w.Check(context.Background()); !apperrors.IsCode(err, apperrors.CodeRecognitionFailed) {
		t.Errorf("err = %v, want RECOGNITION_FAILED", err)
	}

	eng.err = nil
	eng.panics = 1
	if _, err := w.Check(context.Background()); !apperrors.IsCode(err, apperrors.CodeRecognitionFailed) {
		t.Errorf("panic: err = %v, want RECOGNITION_FAILED", err)
	}
}

func TestLoopSurvivesBadCycles(t *testing.T) {
	dev := newFakeDevice()
	eng := &fakeEngine{panics: 2}
	eng.set(result("Allow", 0.9, 5, 5))

	w := New(dev, eng)
	w.When("Allow").Click()
	w.Start(time.Millisecond)
	defer w.Stop()

	waitFor(t, func() bool { return len(dev.Clicks()) > 0 })
}

func TestStartIsIdempotent(t *testing.T) {
	dev := newFakeDevice()
	w := New(dev, &fakeEngine{})

	w.Start(time.Millisecond)
	w.Start(time.Millisecond)
	waitFor(t, func() bool { return dev.Screenshots() > 2 })
	w.Stop()

	if w.Running() {
		t.Fatal("watcher still running after Stop")
	}
	after := dev.Screenshots()
	time.Sleep(20 * time.Millisecond)
	if got := dev.Screenshots(); got != after {
		t.Errorf("a second loop kept running: screenshots %d -> %d", after, got)
	}
}

func TestStopWithoutStart(t *testing.T) {
	w := New(newFakeDevice(), &fakeEngine{})
	w.Stop()
	if w.Running() {
		t.Error("Running() = true")
	}
}

func TestStopInterruptsSleep(t *testing.T) {
	dev := newFakeDevice()
	w := New(dev, &fakeEngine{})

	w.Start(time.Hour)
	waitFor(t, func() bool { return dev.Screenshots() == 1 })

	start := time.Now()
	w.Stop()
	if d := time.Since(start); d > time.Second {
		t.Errorf("Stop took %v during a long sleep", d)
	}
}

func TestStopIsBoundedWhenWedged(t *testing.T) {
	dev := newFakeDevice()
	dev.block = true
	w := New(dev, &fakeEngine{}, WithStopTimeout(20*time.Millisecond))

	w.Start(time.Millisecond)
	waitFor(t, func() bool { return dev.Screenshots() == 1 })

	start := time.Now()
	w.Stop()
	if d := time.Since(start); d > time.Second {
		t.Errorf("Stop blocked for %v", d)
	}
	if w.Running() {
		t.Error("Running() = true after bounded Stop")
	}
}

func TestClearStopsDispatch(t *testing.T) {
	dev := newFakeDevice()
	eng := &fakeEngine{}
	eng.set(result("Allow", 0.9, 50, 60))

	w := New(dev, eng)
	w.When("Allow").Click()
	w.Start(time.Millisecond)
	defer w.Stop()

	waitFor(t, func() bool { return len(dev.Clicks()) > 0 })
	w.Clear()

	// One cycle may already hold the old snapshot; after two more the set is empty.
	base := eng.Calls()
	waitFor(t, func() bool { return eng.Calls() >= base+2 })
	settled := len(dev.Clicks())
	waitFor(t, func() bool { return eng.Calls() >= base+5 })

	if got := len(dev.Clicks()); got != settled {
		t.Errorf("clicks grew after Clear: %d -> %d", settled, got)
	}
	if len(w.Rules()) != 0 {
		t.Error("rules remain after Clear")
	}
}

func TestBuilderKeepsAccumulating(t *testing.T) {
	w := New(newFakeDevice(), &fakeEngine{})
	b := w.When("A").Click().When("B").Dismiss()

	rules := w.Rules()
	if len(rules) != 2 {
		t.Fatalf("rules = %d, want 2", len(rules))
	}
	if len(rules[0].Keywords) != 1 || len(rules[1].Keywords) != 2 {
		t.Errorf("keywords = %v / %v, want [A] / [A B]", rules[0].Keywords, rules[1].Keywords)
	}
	if rules[0].Action != ActionClick || rules[1].Action != ActionDismiss {
		t.Errorf("actions = %s, %s", rules[0].Action, rules[1].Action)
	}
	if ids := b.Added(); len(ids) != 2 || ids[1].String() != rules[1].ID {
		t.Errorf("Added() = %v", ids)
	}
}

func TestRemove(t *testing.T) {
	w := New(newFakeDevice(), &fakeEngine{})
	id := w.When("A").Click().Added()[0]
	w.When("B").Click()

	if !w.Remove(id) {
		t.Fatal("Remove returned false")
	}
	if w.Remove(id) {
		t.Error("second Remove returned true")
	}
	if rules := w.Rules(); len(rules) != 1 || rules[0].Keywords[0] != "B" {
		t.Errorf("rules = %+v", rules)
	}
}

func TestSetConfidenceThreshold(t *testing.T) {
	eng := &thresholdEngine{}
	w := New(newFakeDevice(), eng)
	if err := w.SetConfidenceThreshold(0.4); err != nil {
		t.Fatal(err)
	}
	if eng.threshold != 0.4 {
		t.Errorf("threshold = %v, want 0.4", eng.threshold)
	}

	plain := New(newFakeDevice(), &fakeEngine{})
	if err := plain.SetConfidenceThreshold(0.4); !apperrors.IsCode(err, apperrors.CodeUnsupported) {
		t.Errorf("err = %v, want UNSUPPORTED", err)
	}

	wrapped := New(newFakeDevice(), recognition.NewDeduper(eng, 0))
	if err := wrapped.SetConfidenceThreshold(0.3); err != nil || eng.threshold != 0.3 {
		t.Errorf("deduper did not forward: err=%v threshold=%v", err, eng.threshold)
	}
}

func TestSetDefaultConfidence(t *testing.T) {
	dev := newFakeDevice()
	eng := &fakeEngine{}
	eng.set(result("OK", 0.6, 10, 10))

	w := New(dev, eng)
	w.When("OK").Click()
	_, _ = w.Check(context.Background())
	if len(dev.Clicks()) != 0 {
		t.Fatal("0.6 matched under the 0.7 default")
	}

	w.SetDefaultConfidence(0.5)
	_, _ = w.Check(context.Background())
	if len(dev.Clicks()) != 1 {
		t.Error("lowered default did not apply")
	}
}

func TestEventsPublished(t *testing.T) {
	dev := newFakeDevice()
	eng := &fakeEngine{}
	eng.set(result("Allow", 0.9, 50, 60))

	var got []Event
	w := New(dev, eng, WithSink(SinkFunc(func(_ context.Context, ev Event) { got = append(got, ev) })))
	id := w.When("Allow").Click().Added()[0]
	w.When("Allow").Call(func(context.Context, recognition.Result, Device) error { return errors.New("nope") })

	_, _ = w.Check(context.Background())

	if len(got) != 2 {
		t.Fatalf("events = %d, want 2", len(got))
	}
	if got[0].RuleID != id.String() || got[0].Action != ActionClick || got[0].X != 50 || got[0].Y != 60 || got[0].Error != "" {
		t.Errorf("click event = %+v", got[0])
	}
	if got[1].Error == "" {
		t.Error("failed action event has no error")
	}
}

func TestPanickingSinkDoesNotSkipRules(t *testing.T) {
	dev := newFakeDevice()
	eng := &fakeEngine{}
	eng.set(result("Allow", 0.9, 50, 60))

	var got int
	w := New(dev, eng,
		WithSink(SinkFunc(func(context.Context, Event) { panic("sink closed") })),
		WithSink(SinkFunc(func(context.Context, Event) { got++ })),
	)
	w.When("Allow").Click()
	w.When("Allow").Dismiss()

	n, err := w.Check(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 || len(dev.Clicks()) != 1 || dev.Backs() != 1 {
		t.Errorf("dispatched %d, clicks %d, backs %d; want 2, 1, 1", n, len(dev.Clicks()), dev.Backs())
	}
	if got != 2 {
		t.Errorf("later sink saw %d events, want 2", got)
	}
}

func TestSeconds(t *testing.T) {
	tests := []struct {
		in   float64
		want time.Duration
		ok   bool
	}{
		{0, 0, true},
		{1.5, 1500 * time.Millisecond, true},
		{-1, 0, false},
		{math.NaN(), 0, false},
		{math.Inf(1), 0, false},
		{1e300, 0, false},
		{maxSeconds, 0, false},
	}
	for _, tt := range tests {
		got, ok := Seconds(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("Seconds(%v) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

package watcher

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/GriffinCanCode/ocrwatch/internal/recognition"
	"github.com/GriffinCanCode/ocrwatch/internal/textmatch"
)

// RuleBuilder accumulates rule fields. Every method returns the same
// builder; each Call commits a rule and the builder stays usable, so
// further When/Call chains reuse the accumulated keywords.
type RuleBuilder struct {
	w          *Watcher
	keywords   []string
	mode       textmatch.Mode
	region     *textmatch.Region
	confidence *float64
	cooldown   time.Duration
	added      []uuid.UUID
}

func newBuilder(w *Watcher, text string) *RuleBuilder {
	return &RuleBuilder{w: w, keywords: []string{text}, mode: textmatch.Contains}
}

// When adds another keyword to the OR-list.
func (b *RuleBuilder) When(text string) *RuleBuilder {
	b.keywords = append(b.keywords, text)
	return b
}

// MatchMode sets the comparison mode. Unknown modes behave as exact.
func (b *RuleBuilder) MatchMode(mode textmatch.Mode) *RuleBuilder {
	if !mode.Known() {
		slog.Warn("unknown match mode, falling back to exact", "mode", mode)
	}
	b.mode = mode.Normalize()
	return b
}

// Region restricts matches to results centered inside the inclusive rectangle.
func (b *RuleBuilder) Region(x1, y1, x2, y2 int) *RuleBuilder {
	b.region = &textmatch.Region{X1: x1, Y1: y1, X2: x2, Y2: y2}
	return b
}

// Confidence overrides the watcher-wide confidence floor for this rule.
func (b *RuleBuilder) Confidence(threshold float64) *RuleBuilder {
	b.confidence = &threshold
	return b
}

// Cooldown sets the minimum time between two dispatches of the rule.
func (b *RuleBuilder) Cooldown(d time.Duration) *RuleBuilder {
	b.cooldown = d
	return b
}

// Call commits a rule with a custom action.
func (b *RuleBuilder) Call(action Action) *RuleBuilder {
	return b.commit(ActionCall, action)
}

// Click commits a rule that taps the center of the matched text.
func (b *RuleBuilder) Click() *RuleBuilder {
	return b.commit(ActionClick, func(ctx context.Context, res recognition.Result, dev Device) error {
		x, y := res.Center().Rounded()
		return dev.Click(ctx, x, y)
	})
}

// Dismiss commits a rule that presses back, ignoring where the text is.
func (b *RuleBuilder) Dismiss() *RuleBuilder {
	return b.commit(ActionDismiss, func(ctx context.Context, _ recognition.Result, dev Device) error {
		return dev.PressBack(ctx)
	})
}

// Log commits a rule whose only effect is the dispatch event itself.
func (b *RuleBuilder) Log() *RuleBuilder {
	return b.commit(ActionLog, func(context.Context, recognition.Result, Device) error { return nil })
}

// Added returns the IDs of rules committed through this builder, oldest first.
func (b *RuleBuilder) Added() []uuid.UUID {
	return append([]uuid.UUID(nil), b.added...)
}

func (b *RuleBuilder) commit(name string, action Action) *RuleBuilder {
	r := newRule(b.keywords, b.mode, b.region, b.confidence, b.cooldown, name, action)
	b.w.add(r)
	b.added = append(b.added, r.ID)
	return b
}

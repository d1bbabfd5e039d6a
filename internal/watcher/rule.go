package watcher

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/GriffinCanCode/ocrwatch/internal/recognition"
	"github.com/GriffinCanCode/ocrwatch/internal/textmatch"
)

// Device captures the screen and injects input.
type Device interface {
	Screenshot(ctx context.Context) ([]byte, error)
	Click(ctx context.Context, x, y int) error
	PressBack(ctx context.Context) error
}

// Recognizer turns a screenshot into located text spans.
type Recognizer interface {
	Recognize(ctx context.Context, img []byte) ([]recognition.Result, error)
}

// Action is invoked with the matched result when a rule fires.
type Action func(ctx context.Context, res recognition.Result, dev Device) error

// Rule is a predicate bound to an action. Rules are never mutated after
// registration; cooldown bookkeeping lives in the watcher.
type Rule struct {
	ID         uuid.UUID
	Keywords   []string
	Mode       textmatch.Mode
	Region     *textmatch.Region
	Confidence *float64 // nil inherits the watcher default
	Cooldown   time.Duration
	ActionName string

	action  Action
	matcher *textmatch.Matcher
}

func newRule(keywords []string, mode textmatch.Mode, region *textmatch.Region, confidence *float64, cooldown time.Duration, name string, action Action) *Rule {
	r := &Rule{
		ID:         uuid.New(),
		Keywords:   append([]string(nil), keywords...),
		Mode:       mode.Normalize(),
		Confidence: confidence,
		Cooldown:   max(cooldown, 0),
		ActionName: name,
		action:     action,
	}
	if region != nil {
		reg := *region
		r.Region = &reg
	}
	r.matcher = textmatch.NewMatcher(r.Mode, r.Keywords...)
	return r
}

// floor returns the effective confidence floor.
func (r *Rule) floor(defaultConfidence float64) float64 {
	if r.Confidence != nil {
		return *r.Confidence
	}
	return defaultConfidence
}

// Match returns the first result, in engine order, that passes the rule's
// region, confidence and keyword filters.
func (r *Rule) Match(results []recognition.Result, defaultConfidence float64) (recognition.Result, bool) {
	f := textmatch.Filter{
		Matcher:    r.matcher,
		Region:     r.Region,
		Confidence: r.floor(defaultConfidence),
	}
	return f.First(results)
}

// RuleInfo is the externally visible view of a rule.
type RuleInfo struct {
	ID              string            `json:"id"`
	Keywords        []string          `json:"keywords"`
	Mode            textmatch.Mode    `json:"mode"`
	Region          *textmatch.Region `json:"region,omitempty"`
	Confidence      *float64          `json:"confidence,omitempty"`
	CooldownSeconds float64           `json:"cooldown_seconds"`
	Action          string            `json:"action"`
	LastTriggered   *time.Time        `json:"last_triggered,omitempty"`
}

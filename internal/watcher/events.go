package watcher

import (
	"context"
	"time"
)

// Event describes one dispatch, successful or not.
type Event struct {
	RuleID     string    `json:"rule_id"`
	Action     string    `json:"action"`
	Text       string    `json:"text"`
	Confidence float64   `json:"confidence"`
	X          int       `json:"x"`
	Y          int       `json:"y"`
	Error      string    `json:"error,omitempty"`
	At         time.Time `json:"at"`
}

// Sink receives dispatch events. Publish runs on the polling goroutine and
// must not block for long.
type Sink interface {
	Publish(ctx context.Context, ev Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, ev Event)

// Publish calls f.
func (f SinkFunc) Publish(ctx context.Context, ev Event) { f(ctx, ev) }

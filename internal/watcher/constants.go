package watcher

import (
	"math"
	"time"
)

// Watcher defaults
const (
	// Poll interval used when Start is given a non-positive interval
	DefaultInterval = time.Second

	// Confidence floor for rules that do not set their own
	DefaultConfidence = 0.7

	// Upper bound on how long Stop waits for the loop to exit
	StopTimeout = 5 * time.Second
)

// Built-in action names reported in rule listings and events
const (
	ActionCall    = "call"
	ActionClick   = "click"
	ActionDismiss = "dismiss"
	ActionLog     = "log"
)

// maxSeconds is the first whole-second count a time.Duration cannot hold.
const maxSeconds = float64(math.MaxInt64) / float64(time.Second)

// Seconds converts a non-negative number of seconds to a Duration. It reports
// false for NaN, infinities, negatives and values that would overflow.
func Seconds(s float64) (time.Duration, bool) {
	if !(s >= 0 && s < maxSeconds) {
		return 0, false
	}
	return time.Duration(s * float64(time.Second)), true
}

// Package server provides the HTTP control API and the WebSocket event stream.
package server

import "time"

// Server configuration constants
const (
	// Inbound WebSocket messages allowed per connection per window
	RateLimitMessages = 10
	RateLimitWindow   = time.Second

	// Bound on one event write to a slow WebSocket client
	WriteTimeout = 2 * time.Second

	// Request body limit for the rule API
	MaxBodyBytes = 1 << 20

	// Deadline for a one-shot /api/texts capture
	TextsTimeout = 15 * time.Second

	// Dispatch events kept for /api/events
	HistorySize = 200
)

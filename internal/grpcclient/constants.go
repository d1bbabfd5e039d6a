// Package grpcclient is a recognition engine backed by a remote ocrwatch.v1.Recognizer.
package grpcclient

import "time"

// Client configuration defaults
const (
	// Keepalive configuration
	DefaultKeepaliveTime    = 10 * time.Second
	DefaultKeepaliveTimeout = 3 * time.Second

	// Per-call deadline for Recognize, retries included
	DefaultCallTimeout = 10 * time.Second

	// Deadline for threshold updates
	ThresholdTimeout = 2 * time.Second
)

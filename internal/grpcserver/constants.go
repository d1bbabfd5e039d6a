// Package grpcserver exposes a recognition engine as an ocrwatch.v1.Recognizer gRPC service.
package grpcserver

import "time"

// Server configuration defaults
const (
	// Largest screenshot accepted in one Recognize call
	MaxRecvMsgSize = 32 << 20

	// Keepalive enforcement; must not be stricter than client keepalive
	MinClientPingInterval = 5 * time.Second
	KeepaliveTime         = 30 * time.Second
	KeepaliveTimeout      = 5 * time.Second

	// Graceful stop bound before connections are cut
	ShutdownTimeout = 5 * time.Second
)

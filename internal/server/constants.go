// Package server provides HTTP and WebSocket handlers
package server

import "time"

// Server configuration constants
const (
	// Per-connection rate limiting for incoming WebSocket messages
	RateLimitMessages = 10
	RateLimitWindow   = time.Second

	// Global IP-based rate limiting (prevents multi-connection bypass attacks)
	IPRateLimitMessages        = 30               // Max messages per IP per window
	IPRateLimitWindow          = time.Second      // Sliding window duration
	IPRateLimitCleanupInterval = 5 * time.Minute  // How often to purge stale IP entries
	IPRateLimitEntryTTL        = 10 * time.Minute // TTL for inactive IP entries

	// Outbound queue per observer; events beyond it are dropped for that observer
	ObserverBuffer = 64
	WriteTimeout   = 5 * time.Second

	// Default and maximum sizes for list endpoints
	DefaultEventLimit = 100
	MaxEventLimit     = 500
	DefaultFlashLimit = 100
	MaxFlashLimit     = 1000
)

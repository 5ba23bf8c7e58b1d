package monitor

import "time"

// Monitor configuration constants
const (
	// DefaultRefreshRate is the rendered-frame tick rate in Hz.
	DefaultRefreshRate = 60

	// Command queue depth per detector.
	CommandBuffer = 8

	// How long Close waits for runners to drain.
	ShutdownTimeout = 5 * time.Second
)

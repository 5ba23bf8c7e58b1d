package journal

import "time"

// Flash journal defaults
const (
	DefaultMaxSize    = 50
	DefaultFlushDelay = 2 * time.Second
)

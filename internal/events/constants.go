package events

// Hub defaults
const (
	DefaultMaxEntries  = 500
	DefaultEventBuffer = 100
)

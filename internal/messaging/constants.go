package messaging

import "time"

// Service identity on the wire.
const (
	ServiceName = "flashguard.v1.Control"
	SendMethod  = "/" + ServiceName + "/Send"
)

// Action names carried in the request's "action" field.
const (
	ActionEnable        = "enable"
	ActionDisable       = "disable"
	ActionResetStats    = "resetStats"
	ActionGetStats      = "getStats"
	ActionUpdateStats   = "updateStats"
	ActionContinue      = "continue"
	ActionListDetectors = "listDetectors"
)

// Client configuration defaults
const (
	// Keepalive configuration
	DefaultKeepaliveTime    = 10 * time.Second
	DefaultKeepaliveTimeout = 3 * time.Second

	// Fire-and-forget sends give up after this long.
	NotifyTimeout = 2 * time.Second
)

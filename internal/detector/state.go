package detector

import (
	"fmt"

	"github.com/GriffinCanCode/flashguard/backend/platform/internal/flash"
)

// State is the detector lifecycle state.
type State int

const (
	Idle State = iota
	WarmingUp
	Monitoring
	Warned
	Stopped
)

var stateNames = [...]string{"idle", "warming_up", "monitoring", "warned", "stopped"}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText decodes a state by name.
func (s *State) UnmarshalText(b []byte) error {
	for i, name := range stateNames {
		if name == string(b) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("unknown detector state %q", b)
}

// Warning is the payload shown to the viewer when the threshold is crossed.
type Warning struct {
	Handle               string     `json:"handle"`
	VideoID              string     `json:"videoId"`
	Type                 flash.Kind `json:"type"`
	FlashCount           int        `json:"flashCount"`
	PeakFlashesPerWindow int        `json:"peakFlashesPerWindow"`
	CumulativeFlashes    int        `json:"cumulativeFlashes"`
	TimestampSeconds     float64    `json:"timestampSeconds"`
}

// FlashNotice reports a single detected flash.
type FlashNotice struct {
	Handle        string     `json:"handle"`
	VideoID       string     `json:"videoId"`
	Kind          flash.Kind `json:"kind"`
	TimestampMs   int64      `json:"timestampMs"`
	Luminance     float64    `json:"luminance"`
	RedSaturation float64    `json:"redSaturation"`
}

// Snapshot is a point-in-time view of a detector.
type Snapshot struct {
	Handle       string `json:"handle"`
	VideoID      string `json:"videoId"`
	State        State  `json:"state"`
	Enabled      bool   `json:"enabled"`
	Paused       bool   `json:"paused"`
	WarningShown bool   `json:"warningShown"`
	Analyzed     int    `json:"analyzedFrames"`
	Cumulative   int    `json:"cumulativeFlashes"`
	Peak         int    `json:"peakFlashesPerWindow"`
	General      int    `json:"generalInWindow"`
	Red          int    `json:"redInWindow"`
}

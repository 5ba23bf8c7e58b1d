package monitor

import (
	"context"

	"github.com/GriffinCanCode/flashguard/backend/platform/internal/detector"
	"github.com/GriffinCanCode/flashguard/backend/platform/internal/events"
	"github.com/GriffinCanCode/flashguard/backend/platform/internal/flash"
	"github.com/GriffinCanCode/flashguard/backend/platform/internal/metrics"
	"github.com/GriffinCanCode/flashguard/backend/platform/internal/source"
	"github.com/GriffinCanCode/flashguard/backend/platform/internal/store"
)

// Journal receives flash records for batched persistence.
type Journal interface {
	Add(r store.FlashRecord)
}

// sink fans a detector's effects out to the player, the event hub, the
// journal and metrics.
type sink struct {
	handle  string
	player  source.Player
	hub     *events.Hub
	journal Journal
	metrics *metrics.Metrics
}

var _ detector.Sink = (*sink)(nil)

func (s *sink) Pause(ctx context.Context) error  { return s.player.Pause(ctx) }
func (s *sink) Resume(ctx context.Context) error { return s.player.Play(ctx) }

func (s *sink) Flash(_ context.Context, n detector.FlashNotice) {
	s.hub.Emit(events.Event{Type: events.Flash, Handle: n.Handle, Data: n})
	if s.metrics != nil {
		if n.Kind == flash.Red {
			s.metrics.RedFlashes.Add(1)
		} else {
			s.metrics.GeneralFlashes.Add(1)
		}
	}
	if s.journal != nil {
		s.journal.Add(store.FlashRecord{
			VideoID:       n.VideoID,
			Handle:        n.Handle,
			Kind:          n.Kind.String(),
			TimestampMs:   n.TimestampMs,
			Luminance:     n.Luminance,
			RedSaturation: n.RedSaturation,
		})
	}
}

func (s *sink) Warn(_ context.Context, w detector.Warning) {
	s.hub.Emit(events.Event{Type: events.Warning, Handle: w.Handle, Data: w})
	if s.metrics != nil {
		s.metrics.Warnings.Add(1)
	}
}

func (s *sink) Dismiss(context.Context) {
	s.hub.Emit(events.Event{Type: events.Dismiss, Handle: s.handle})
}

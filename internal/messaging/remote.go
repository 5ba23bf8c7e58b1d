package messaging

import (
	"context"

	apperrors "github.com/GriffinCanCode/flashguard/backend/platform/internal/errors"
	"github.com/GriffinCanCode/flashguard/backend/platform/internal/resilience"
	"github.com/GriffinCanCode/flashguard/backend/platform/internal/stats"
)

// RemoteStats reports detector counters to the daemon that owns them.
// Increments are fire-and-forget; resets wait for the owner's answer.
type RemoteStats struct {
	client *Client
	addr   string
	retry  resilience.RetryConfig
}

// NewRemoteStats forwards counter updates over c to the daemon at addr.
func NewRemoteStats(c *Client, addr string) *RemoteStats {
	return &RemoteStats{client: c, addr: addr, retry: resilience.DefaultRetryConfig()}
}

// Notify sends an updateStats request without waiting for it.
func (r *RemoteStats) Notify(ctx context.Context, name string, delta int64) {
	r.client.Notify(ctx, ActionUpdateStats, map[string]any{"stat": name, "delta": delta})
}

// Reset asks the owner to clear its counters and returns the result.
func (r *RemoteStats) Reset(ctx context.Context) (stats.Counters, error) {
	var ack Ack
	err := resilience.Retry(ctx, r.retry, func() error {
		var err error
		ack, err = r.client.Send(ctx, ActionResetStats, nil)
		return err
	})
	if err != nil {
		return stats.Counters{}, apperrors.Wrapf(err, apperrors.CodeOf(err), "reset stats on %s", r.addr)
	}
	var out stats.Counters
	if err := ack.Decode("stats", &out); err != nil {
		return stats.Counters{}, err
	}
	return out, nil
}

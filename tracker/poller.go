package tracker

import (
	"context"
	"log/slog"
	"time"

	"github.com/ayoisaiah/tally/platform"
)

// Poller periodically reconciles the tracker with the true platform
// state and pumps event-driven state changes into it. Event-driven
// notifications can be missed or duplicated; the fixed-period poll
// re-derives everything, so either path alone keeps the ledger honest.
type Poller struct {
	tracker  *Tracker
	watcher  platform.Watcher
	interval time.Duration
}

// NewPoller creates a poller. The watcher may be nil, in which case
// only the periodic reconciliation runs.
func NewPoller(t *Tracker, w platform.Watcher, interval time.Duration) *Poller {
	return &Poller{
		tracker:  t,
		watcher:  w,
		interval: interval,
	}
}

// Run blocks until ctx is cancelled, polling on the configured period
// and forwarding watcher events as they arrive.
func (p *Poller) Run(ctx context.Context) error {
	var events <-chan platform.State

	if p.watcher != nil {
		ch, err := p.watcher.Watch(ctx)
		if err != nil {
			slog.Warn(
				"activity subscription unavailable, relying on polling",
				slog.Any("error", err),
			)
		} else {
			events = ch
		}
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			err := p.tracker.Poll()
			if err != nil {
				slog.Error("poll failed", slog.Any("error", err))
			}
		case state, ok := <-events:
			if !ok {
				events = nil
				continue
			}

			err := p.tracker.HandleActivity(state)
			if err != nil {
				slog.Error(
					"activity change failed",
					slog.String("state", string(state)),
					slog.Any("error", err),
				)
			}
		}
	}
}

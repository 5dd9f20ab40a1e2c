package interaction

import (
	"context"

	"github.com/jonboulle/clockwork"

	"github.com/zeusync/cubesync/internal/core/observability/log"
)

// RunAutoSpin ticks the controller at the configured interval until ctx is done.
// It returns immediately when auto spin is disabled.
func (c *Controller) RunAutoSpin(ctx context.Context, clk clockwork.Clock) error {
	if !c.cfg.AutoSpin.Enabled {
		return nil
	}
	if clk == nil {
		clk = clockwork.NewRealClock()
	}

	ticker := clk.NewTicker(c.cfg.AutoSpin.Interval)
	defer ticker.Stop()

	last := clk.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.Chan():
			if _, err := c.Tick(now.Sub(last)); err != nil {
				c.logger.Warn("auto spin tick failed", log.Error(err))
			}
			last = now
		}
	}
}

package orchestrator

import (
	"context"
	"time"

	"github.com/alejandrodnm/galebot/internal/domain"
)

type sourceEvent struct {
	ch      <-chan domain.Outcome
	err     error
	attempt int
}

// subscribe (re)opens the outcome stream off the loop, backing off
// exponentially between failed attempts. The first attempt waits delay.
func (o *Orchestrator) subscribe(ctx context.Context, delay time.Duration) {
	base, maxWait := o.cfg.ReconnectBase, o.cfg.ReconnectMax
	go func() {
		wait := delay
		for attempt := 1; ; attempt++ {
			if wait > 0 {
				select {
				case <-time.After(wait):
				case <-ctx.Done():
					return
				}
			}
			ch, err := o.deps.Source.Outcomes(ctx)
			select {
			case o.sourceEvents <- sourceEvent{ch: ch, err: err, attempt: attempt}:
			case <-ctx.Done():
				return
			}
			if err == nil {
				return
			}
			if wait == 0 {
				wait = base
			} else {
				wait *= 2
			}
			if wait > maxWait {
				wait = maxWait
			}
		}
	}()
}

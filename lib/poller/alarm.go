package poller

import (
	"context"
	"time"
)

type alarmClock struct {
	interval time.Duration
	C        chan time.Time
}

func newAlarmClock(interval time.Duration) *alarmClock {
	return &alarmClock{
		interval: interval,
		C:        make(chan time.Time),
	}
}

// Start fires once immediately, then every interval. Wakeups that come due
// while the receiver is still busy are dropped. C is closed when ctx ends.
func (a *alarmClock) Start(ctx context.Context) <-chan time.Time {
	go func() {
		defer close(a.C)

		ticker := time.NewTicker(a.interval)
		defer ticker.Stop()

		select {
		case a.C <- time.Now().UTC():
		case <-ctx.Done():
			return
		}

		for {
			select {
			case t := <-ticker.C:
				select {
				case a.C <- t.UTC():
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return a.C
}

package mempool

import (
	"time"

	"github.com/benbjohnson/clock"
)

// Clock is the pool's injectable time source, letting tests substitute a
// deterministic clock for wall time. It is satisfied by clock.Clock
// (wall time) and *clock.Mock (deterministic tests), both from
// github.com/benbjohnson/clock.
type Clock interface {
	Now() time.Time
	Ticker(d time.Duration) *clock.Ticker
}

// realClock adapts clock.Clock to Clock; clock.Clock already implements
// Ticker via its own method set, this alias just documents the contract.
type realClock struct {
	clock.Clock
}

// NewRealClock returns a Clock backed by the actual wall clock.
func NewRealClock() Clock {
	return realClock{clock.New()}
}

// scheduler drives one periodic task off a Clock-produced ticker and can
// be stopped without leaking the underlying goroutine.
type scheduler struct {
	ticker *clock.Ticker
	stopCh chan struct{}
	doneCh chan struct{}
}

// startScheduler runs fn every interval on cl until stop() is called. fn
// runs on a single goroutine, so runs never overlap; ticks that arrive
// while fn is still running are not queued beyond the one tick the
// ticker's channel buffers, and the rest are dropped.
func startScheduler(cl Clock, interval time.Duration, fn func()) *scheduler {
	s := &scheduler{
		ticker: cl.Ticker(interval),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	go func() {
		defer close(s.doneCh)
		for {
			select {
			case <-s.stopCh:
				return
			case <-s.ticker.C:
				fn()
			}
		}
	}()
	return s
}

// stop cancels the ticker and blocks until the scheduler goroutine has
// exited. Any invocation of fn already in progress is allowed to finish.
func (s *scheduler) stop() {
	s.ticker.Stop()
	close(s.stopCh)
	<-s.doneCh
}

package surge

import (
	"sync"
	"time"
)

// livenessTimer wraps time.Timer with the one extra bit the spec's
// restart rule needs: whether the previous wait already fired, so a
// session never re-arms a timer that would outlive it.
//
// Most callers restart it from the owning session's I/O strand, but
// WSSession's dedicated read goroutine also calls restart directly
// before a blocking read; the mutex makes that, and Stop from the
// session's teardown path, safe to call concurrently with a firing.
type livenessTimer struct {
	mu      sync.Mutex
	timer   *time.Timer
	fired   bool
	stopped bool
}

// newLivenessTimer arms a timer for d and invokes onFire when it expires
// (on its own goroutine — callers post onto the appropriate strand from
// inside onFire).
func newLivenessTimer(d time.Duration, onFire func()) *livenessTimer {
	lt := &livenessTimer{}
	lt.timer = time.AfterFunc(d, func() {
		lt.mu.Lock()
		if lt.stopped {
			lt.mu.Unlock()
			return
		}
		lt.fired = true
		lt.mu.Unlock()
		onFire()
	})
	return lt
}

// restart re-arms the timer for d unless the timer has been stopped. If
// the previous wait already fired, a new wait is armed; if it is still
// pending, it is cancelled and replaced, pushing the deadline out. If the
// pending wait fires concurrently and cannot be cancelled, restart leaves
// it alone and arms nothing. Either way at most one wait is outstanding.
func (lt *livenessTimer) restart(d time.Duration, onFire func()) {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	if lt.stopped {
		return
	}
	if lt.timer != nil && !lt.fired {
		// A previous wait is still outstanding (we raced restart calls);
		// Stop it so its firing doesn't double-invoke onFire, then
		// re-arm below as usual. Stop returning false here means the
		// timer had already fired concurrently and onFire is (or will
		// be) running — in that case skip re-arming here and let the
		// in-flight firing's own restart call (if any) re-arm.
		if !lt.timer.Stop() {
			return
		}
	}
	lt.fired = false
	lt.timer = time.AfterFunc(d, func() {
		lt.mu.Lock()
		if lt.stopped {
			lt.mu.Unlock()
			return
		}
		lt.fired = true
		lt.mu.Unlock()
		onFire()
	})
}

// stop cancels any pending wait. Idempotent; safe to call from any
// goroutine.
func (lt *livenessTimer) stop() {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	lt.stopped = true
	if lt.timer != nil {
		lt.timer.Stop()
	}
}

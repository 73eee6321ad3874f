package reactor

import "time"

// RegisterTimer arms a one-shot timer firing at now+delay, invoking cb from
// inside the main fiber's critical section (cb must not suspend). Returns
// the zero TimerHandle and false if the timer pool is exhausted.
func (r *Reactor) RegisterTimer(delay time.Duration, cb TimerCallback) (TimerHandle, bool) {
	if delay < 0 {
		delay = 0
	}
	return r.timers.insert(r.clock.deadline(delay), 0, cb)
}

// RegisterRecurringTimer arms a timer that re-arms itself for now+interval
// every time it fires, until cancelled.
func (r *Reactor) RegisterRecurringTimer(interval time.Duration, cb TimerCallback) (TimerHandle, bool) {
	if interval <= 0 {
		interval = time.Nanosecond
	}
	return r.timers.insert(r.clock.deadline(interval), int64(interval), cb)
}

// CancelTimer removes a pending timer. A no-op (returns false) if the
// handle is stale or the timer already fired.
func (r *Reactor) CancelTimer(h TimerHandle) bool {
	return r.timers.cancel(h)
}

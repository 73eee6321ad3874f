package reactor

import "time"

// Wait parks the calling fiber on ctx's dir until the poller reports
// readiness, or timeoutMs elapses (0 means wait indefinitely). Returns
// ErrDirectionBusy if dir already has a waiter or callback registered.
func (r *Reactor) Wait(ctx *FdContext, dir Direction, timeoutMs int) error {
	st := ctx.state(dir)
	if !st.isNone() {
		return ErrDirectionBusy
	}

	st.fiber = r.current.handle()
	st.waiting = true

	var timeout time.Duration
	if timeoutMs > 0 {
		timeout = time.Duration(timeoutMs) * time.Millisecond
	}
	err := r.Suspend(timeout)
	st.clear()
	return err
}

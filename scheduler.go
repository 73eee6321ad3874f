package reactor

import "time"

// switchToNext is the scheduler's core loop. It accounts for the time just
// spent in the outgoing fiber, drains whatever timers are currently due
// (inline, on whichever goroutine happens to be holding the baton — that is
// always safe, since at most one goroutine ever runs at a time), and then
// either hands off to the next ready fiber or falls into the idle callback
// chain until something becomes ready.
//
// The main and idle fibers (slots 0 and 1) never get a real context switch:
// neither ever needs to suspend mid-body (timer callbacks run inside a
// critical section and cannot call a suspension primitive; idle polling
// legitimately blocks the whole driving goroutine), so their "bodies" are
// just mainTick/idleTick, called directly from here. Only genuinely spawned
// fibers ever go through fibril.switchTo.
func (r *Reactor) switchToNext() {
	r.dispatchNext(false)
}

// switchToNextFinal is switchToNext's counterpart for a fiber's own last
// action, called once its body has already returned and its slot has
// already been pushed onto the free list (see runFiberBody). The outgoing
// fibril must not block waiting to be resumed again — nothing will ever
// resume it — so this hands off with switchToFinal instead of switchTo,
// and records no further state afterward (the outgoing goroutine is about
// to return and must not keep touching reactor state once some other
// fiber may already be running concurrently with its last few
// instructions).
func (r *Reactor) switchToNextFinal() {
	r.dispatchNext(true)
}

func (r *Reactor) dispatchNext(final bool) {
	r.accountHogger(r.current)

	for {
		r.mainTick()

		if r.table.readyQueueLen() > 0 {
			break
		}

		if r.stopping && r.liveFiberCount() == 0 {
			r.returnToDriver(final)
			return
		}

		r.idleTick()
	}

	id, _ := r.table.popReady()
	next := r.table.get(id)

	outgoing := r.activeFib
	switchStart := r.clock.now()
	r.current = next
	next.state = StateRunning
	next.runStart = switchStart
	setFiberRunStartTime(time.Now().UnixNano())
	r.activeFib = next.fib

	if final {
		// Record before handing off: once switchToFinal sends the baton,
		// `next` may already be running concurrently with this goroutine's
		// remaining teardown, so nothing after the handoff may touch
		// reactor state.
		if r.metrics != nil {
			r.metrics.RecordTick()
			r.metrics.SwitchLatency.Record(time.Duration(r.clock.now() - switchStart))
		}
		if outgoing != next.fib {
			outgoing.switchToFinal(next.fib)
		}
		return
	}

	if outgoing != next.fib {
		outgoing.switchTo(next.fib)
	}

	if r.metrics != nil {
		r.metrics.RecordTick()
		r.metrics.SwitchLatency.Record(time.Duration(r.clock.now() - switchStart))
	}
}

// returnToDriver hands control back to whatever called Start, unwinding the
// bootstrap switch made at the top of the run loop. Only reachable once
// Stop has been requested and every non-special fiber has drained. final
// mirrors dispatchNext's: true when called from a fiber's own terminal
// handoff, in which case the outgoing fibril must not block on being
// resumed again.
func (r *Reactor) returnToDriver(final bool) {
	outgoing := r.activeFib
	r.current = r.table.get(mainFiberID)
	r.activeFib = r.driverFib
	if outgoing == r.driverFib {
		return
	}
	if final {
		outgoing.switchToFinal(r.driverFib)
		return
	}
	outgoing.switchTo(r.driverFib)
}

// accountHogger records how long the fiber just switched out of had been
// running, and emits a rate-limited warning if it exceeded
// HoggerWarningThreshold. Special fibers are exempt: main only ever runs
// inside mainTick's critical section, and idle is expected to run for a
// while (that's its job).
func (r *Reactor) accountHogger(n *fiberNode) {
	if n == nil || n.flags&FlagCallbackSet == 0 || n.flags&FlagSpecial != 0 {
		return
	}
	if n.runStart == 0 {
		return
	}
	elapsed := time.Duration(r.clock.now() - n.runStart)
	threshold := r.opts.HoggerWarningThreshold
	if threshold <= 0 || elapsed < threshold {
		return
	}
	if r.diag == nil || !r.diag.allow(n.bodyIdentity) {
		return
	}
	logger := r.logger
	if logger == nil {
		logger = getGlobalLogger()
	}
	logger.Log(LogEntry{
		Level:    LevelWarn,
		Category: "hogger",
		FiberID:  int64(n.id),
		Message:  "fiber exceeded hogger warning threshold",
		Context: map[string]any{
			"elapsed":   elapsed.String(),
			"threshold": threshold.String(),
			"body":      n.bodyIdentity,
		},
	})
}

// mainTick drains main's pending exception (staged by ThrowIn when a fiber
// body returns an error), then every timer due at the current time, inside
// a critical section: timer callbacks must never call a suspension
// primitive.
func (r *Reactor) mainTick() {
	mainNode := r.table.get(mainFiberID)
	if mainNode.flags&FlagHasException != 0 {
		mainNode.flags &^= FlagHasException
		if err := mainNode.exc.take(); err != nil && err != ErrReactorExit && err != ErrFiberGroupExtinction {
			if r.mainErr == nil {
				r.mainErr = err
			}
		}
	}

	r.EnterCriticalSection()
	defer r.LeaveCriticalSection()

	now := r.clock.now()
	for {
		node, ok := r.timers.pop(now)
		if !ok {
			break
		}
		node.cb(r)
		if node.interval > 0 && !node.cancelled {
			r.timers.reinsertRecurring(node, now)
		} else {
			r.timers.release(node)
		}
	}
	if r.metrics != nil {
		r.metrics.Queue.UpdateReady(r.table.readyQueueLen())
		r.metrics.Queue.UpdateTimers(r.timers.Len())
	}
}

// idleTick runs the registered idle callbacks with a timeout computed from
// the nearest pending timer. With zero callbacks it sleeps for that
// timeout (returning at once when no timer is pending); with one callback
// this is a direct call (the common case: the poller alone); with more
// than one, each is invoked with a zero timeout so none can starve the
// others by blocking.
func (r *Reactor) idleTick() {
	// No fiber is running while idle: a zero run-start time keeps the hang
	// detector from charging idle time to the fiber that last ran.
	setFiberRunStartTime(0)
	timeout := r.computeIdleTimeout()
	if r.metrics != nil {
		r.metrics.Queue.UpdateReady(r.table.readyQueueLen())
	}
	switch len(r.idleCallbacks) {
	case 0:
		if timeout > 0 {
			time.Sleep(timeout)
		}
		return
	case 1:
		r.idleCallbacks[0](timeout)
	default:
		for _, cb := range r.idleCallbacks {
			cb(0)
		}
	}
}

// computeIdleTimeout returns how long the idle fiber may block before the
// nearest timer needs servicing, or a negative duration if there is none
// pending.
func (r *Reactor) computeIdleTimeout() time.Duration {
	if r.timers.Len() == 0 {
		return -1
	}
	if r.timers.nextHint < 0 {
		r.timers.recomputeHint()
	}
	if r.timers.nextHint >= (1 << 61) {
		return -1
	}
	return time.Duration(r.timers.nextHint * r.timers.resolution)
}

// pollIdle is the default idle callback installed when
// Options.RegisterDefaultIdler is set: it blocks in the I/O poller for up
// to timeout, and opportunistically runs a GC pass at this safe point.
func (r *Reactor) pollIdle(timeout time.Duration) {
	ms := -1
	if timeout >= 0 {
		ms = int(timeout / time.Millisecond)
	}
	_, _ = r.poller.Poll(ms)

	if r.opts.GCInterval > 0 && time.Since(r.lastGC) >= r.opts.GCInterval {
		r.RequestGCCollection()
	}
}

// liveFiberCount returns the number of non-special fibers still occupying a
// slot (spawned, not yet Done). Used by switchToNext to decide whether
// Start may return once Stop has been requested.
func (r *Reactor) liveFiberCount() int {
	n := 0
	for i := range r.table.slots {
		s := &r.table.slots[i]
		if s.flags&FlagSpecial != 0 {
			continue
		}
		if s.flags&FlagCallbackSet != 0 && s.state != StateDone {
			n++
		}
	}
	return n
}

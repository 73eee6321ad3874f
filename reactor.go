package reactor

import (
	"fmt"
	"os"
	"runtime"
	"time"
)

// Reactor is a single-threaded cooperative fiber runtime: a fiber
// scheduler, a cascading timer queue, and an edge-triggered I/O poller,
// all driven from one run loop on one OS thread.
//
// A Reactor is not safe for concurrent use: exactly one OS thread drives
// Start, and every other method must be called from a fiber running on
// that reactor (or, for Setup/Spawn-before-Start, from the same goroutine
// that will call Start).
type Reactor struct {
	opts Options

	table *fiberTable
	slab  *fiberSlab

	slabSize int

	timers *ctq
	poller *FastPoller
	clock  *clock

	current *fiberNode

	// driverFib is the fibril identity of whatever goroutine called Start;
	// it is never set/spawned like a real fiber's, since Start's own call
	// stack plays that role directly (see scheduler.go).
	driverFib *fibril
	// activeFib is the fibril of whichever real goroutine currently holds
	// the baton: driverFib, or some spawned fiber's own.
	activeFib *fibril

	criticalDepth int
	running       bool
	stopping      bool

	idleCallbacks []func(timeout time.Duration)

	metrics *Metrics
	diag    *diagnosticsLimiter
	logger  Logger

	lastGC time.Time

	// mainErr holds the first non-terminal error thrown into the main
	// fiber, drained by mainTick each scheduler pass; Start returns it.
	mainErr error

	faultGuard   bool
	hangDetector *hangDetector
}

// Setup allocates a Reactor's fiber table, timer queue, and poller
// according to opts, without starting the run loop.
func Setup(options ...Option) (*Reactor, error) {
	opts, err := resolveOptions(options)
	if err != nil {
		return nil, err
	}
	sealFLSRegistry()

	slabSize := roundUp(opts.FiberStackSize, os.Getpagesize())
	slab, err := newFiberSlab(opts.NumFibers, slabSize)
	if err != nil {
		return nil, err
	}

	table := newFiberTable(opts.NumFibers, slab, slabSize)

	poller := &FastPoller{}
	if err := poller.Init(); err != nil {
		_ = slab.close()
		return nil, err
	}

	clk := newClock()
	timers := newCTQ(int64(opts.TimerGranularity), 4, 16, opts.NumTimers, clk.now())

	// The default no-op Options.Logger defers to the process-wide logger
	// set by SetStructuredLogger (as it stands at Setup).
	logger := opts.Logger
	if _, ok := logger.(*NoOpLogger); ok {
		logger = getGlobalLogger()
	}

	r := &Reactor{
		opts:      opts,
		table:     table,
		slab:      slab,
		slabSize:  slabSize,
		timers:    timers,
		poller:    poller,
		clock:     clk,
		current:   table.get(mainFiberID),
		driverFib: newFibril(),
		logger:    logger,
		diag:      newDiagnosticsLimiter(),
	}
	r.activeFib = r.driverFib
	if opts.MetricsEnabled {
		r.metrics = NewMetrics()
	}
	if opts.RegisterDefaultIdler {
		r.idleCallbacks = append(r.idleCallbacks, r.pollIdle)
	}

	resumeWaitingFiber = func(handle FiberHandle) { r.Resume(handle, false) }

	table.get(mainFiberID).state = StateRunning
	table.get(idleFiberID).state = StateSleeping

	if opts.HangDetectorTimeout > 0 {
		enableFaultGuard()
		r.faultGuard = true
		hd, err := startHangDetector(opts.HangDetectorTimeout, r.IsIdle, r.logger)
		if err != nil {
			_ = poller.Close()
			_ = slab.close()
			return nil, err
		}
		r.hangDetector = hd
	}

	return r, nil
}

// Teardown releases the poller and guard-paged slab. Call once, after
// Start has returned.
func (r *Reactor) Teardown() error {
	if r.hangDetector != nil {
		r.hangDetector.stop()
	}
	if err := r.poller.Close(); err != nil {
		return err
	}
	return r.slab.close()
}

func (r *Reactor) lookup(handle FiberHandle) *fiberNode { return r.table.lookup(handle) }

// Spawn creates a new fiber running body, scheduling it on the ready
// queue (appended, or prepended if immediate is true). Returns
// ErrOutOfFibers if the free list is exhausted.
func (r *Reactor) Spawn(body FiberBody, immediate bool) (FiberHandle, error) {
	id, ok := r.table.popFree()
	if !ok {
		return FiberHandle{}, ErrOutOfFibers
	}
	n := r.table.get(id)
	n.incarnation++
	n.reset()
	n.flags |= FlagCallbackSet
	n.body = body
	n.bodyIdentity = fiberBodyIdentity(body)
	n.fib.reset()
	n.fib.set(func() { r.runFiberBody(n) })

	// n.state stays StateStarting (set by reset() above) even though the
	// fiber is already on the ready queue: it has never been switched into,
	// and that distinction is what lets IterateFibers tell a never-run
	// fiber apart from one cycling through Sleeping/Scheduled.
	if immediate {
		r.table.schedulePrepend(id)
	} else {
		r.table.scheduleAppend(id)
	}
	return n.handle(), nil
}

func fiberBodyIdentity(body FiberBody) string {
	return fmt.Sprintf("%p", body)
}

// runFiberBody is the entry point every spawned fiber's goroutine runs.
// On return, the slot's incarnation is bumped (invalidating outstanding
// handles) and the slot is returned to the free list.
func (r *Reactor) runFiberBody(n *fiberNode) {
	if r.faultGuard {
		// debug.SetPanicOnFault is per-goroutine: Setup's call only covers
		// the goroutine that called Setup, never the fresh goroutine each
		// fibril.set spawns to run this function. Arm it again here so
		// guardFiberFault's recover actually has something to catch.
		enableFaultGuard()
		defer r.guardFiberFault(n)
	}
	err := n.body(r)
	n.state = StateDone
	if err != nil && err != ErrReactorExit && err != ErrFiberGroupExtinction {
		r.ThrowIn(r.table.get(mainFiberID).handle(), err)
	}
	n.incarnation++
	r.table.pushFree(n.id)
	// This is the fiber's last action: use the non-returning handoff so
	// its goroutine can actually exit instead of blocking on a resume
	// that will never come (see fibril.go, scheduler.go).
	r.switchToNextFinal()
}

// Yield appends the current fiber to the ready queue and switches.
func (r *Reactor) Yield() {
	r.assert(r.criticalDepth == 0, "Yield called inside a critical section")
	r.table.scheduleAppend(r.current.id)
	r.current.state = StateScheduled
	r.switchToNext()
}

// Suspend removes the current fiber from the ready queue and switches,
// returning ReactorTimeout if timeout elapses before some other resume.
// timeout <= 0 means wait indefinitely.
func (r *Reactor) Suspend(timeout time.Duration) error {
	if r.criticalDepth != 0 {
		return ErrCriticalSection
	}
	n := r.current
	// A self-targeted ThrowIn (e.g. Stop() reaching the calling fiber's own
	// slot) never places the current fiber on the ready queue (see ThrowIn);
	// its staged exception must still surface here, synchronously, rather
	// than wait for a dispatch that will never come.
	if err := n.exc.take(); err != nil {
		n.flags &^= FlagHasException
		return err
	}
	n.state = StateSleeping
	n.resumedByTimeout = false

	if timeout > 0 {
		self := n.handle()
		h, _ := r.timers.insert(r.clock.deadline(timeout), 0, func(rr *Reactor) {
			target := rr.lookup(self)
			if target == nil {
				return
			}
			// If some other resumer already scheduled the fiber, the
			// timeout lost the race and is a no-op.
			if rr.Resume(self, false) {
				target.resumedByTimeout = true
			}
		})
		n.suspendTimer = h
	}

	r.switchToNext()

	if !n.suspendTimer.IsZero() {
		r.timers.cancel(n.suspendTimer)
		n.suspendTimer = TimerHandle{}
	}

	if err := n.exc.take(); err != nil {
		n.flags &^= FlagHasException
		return err
	}
	if n.resumedByTimeout {
		n.resumedByTimeout = false
		return ErrReactorTimeout
	}
	return nil
}

// Sleep suspends the current fiber for the given duration, equivalent to
// Suspend(d) with the timeout branch always taken.
func (r *Reactor) Sleep(d time.Duration) {
	if d <= 0 {
		d = time.Nanosecond
	}
	_ = r.Suspend(d)
}

// Resume validates handle and moves the target fiber to the ready queue
// (prepended if immediate). Returns false if the handle is stale or the
// fiber is already scheduled.
func (r *Reactor) Resume(handle FiberHandle, immediate bool) bool {
	n := r.lookup(handle)
	if n == nil {
		return false
	}
	if n.flags&FlagScheduled != 0 {
		return false
	}
	if immediate {
		r.table.schedulePrepend(n.id)
	} else {
		r.table.scheduleAppend(n.id)
	}
	n.state = StateScheduled
	return true
}

// ThrowIn stages err on the target fiber's exception buffer; the error is
// returned from the target's current suspension point on next resume.
// Returns false if the handle is stale. The main and idle fibers are never
// placed on the ready queue (they have no real context switch to resume
// into); their staged exception is drained inline by mainTick instead.
// Likewise, a fiber throwing into itself is never (re-)scheduled: it is
// already the one running, and Suspend drains a self-staged exception
// synchronously on its next suspension attempt instead.
func (r *Reactor) ThrowIn(handle FiberHandle, err error) bool {
	n := r.lookup(handle)
	if n == nil {
		return false
	}
	n.exc.stage(err, false)
	n.flags |= FlagHasException
	if n.flags&FlagSpecial != 0 || n == r.current {
		return true
	}
	if n.flags&FlagScheduled == 0 {
		r.table.scheduleAppend(n.id)
		// Only a Sleeping fiber reaches this branch (a never-run Starting
		// fiber is already on the ready queue via Spawn, so FlagScheduled
		// would already be set and this branch skipped).
		n.state = StateScheduled
	}
	return true
}

// EnterCriticalSection increments the suspension-forbidding nesting
// counter.
func (r *Reactor) EnterCriticalSection() { r.criticalDepth++ }

// LeaveCriticalSection decrements it.
func (r *Reactor) LeaveCriticalSection() {
	if r.criticalDepth > 0 {
		r.criticalDepth--
	}
}

// CurrentHandle returns the handle of the fiber currently running.
func (r *Reactor) CurrentHandle() FiberHandle { return r.current.handle() }

// IsMain reports whether the current fiber is the reactor's main fiber.
func (r *Reactor) IsMain() bool { return r.current.id == mainFiberID }

// IsIdle reports whether the current fiber is the reactor's idle fiber.
func (r *Reactor) IsIdle() bool { return r.current.id == idleFiberID }

// RegisterIdleCallback adds fn to the set invoked by the idle fiber when
// the ready queue is empty and no timer is imminent.
func (r *Reactor) RegisterIdleCallback(fn func(timeout time.Duration)) {
	r.idleCallbacks = append(r.idleCallbacks, fn)
}

// IterateFibers returns a snapshot of every live, non-special fiber
// handle and its current state. Not safe to call while spawning fibers
// concurrently with iteration (there is no concurrency in this model, but
// do not spawn from within the callback either).
func (r *Reactor) IterateFibers() []struct {
	Handle FiberHandle
	State  FiberState
} {
	var out []struct {
		Handle FiberHandle
		State  FiberState
	}
	for i := range r.table.slots {
		n := &r.table.slots[i]
		if n.flags&FlagSpecial != 0 {
			continue
		}
		if n.flags&FlagCallbackSet == 0 {
			continue
		}
		if n.state == StateDone {
			continue
		}
		out = append(out, struct {
			Handle FiberHandle
			State  FiberState
		}{Handle: n.handle(), State: n.state})
	}
	return out
}

// RequestGCCollection forces a runtime.GC() pass; ordinarily invoked
// automatically by the idle loop every GCInterval.
func (r *Reactor) RequestGCCollection() {
	runtime.GC()
	r.lastGC = time.Now()
}

// Metrics returns the reactor's metrics collector, or nil if
// MetricsEnabled was false at Setup.
func (r *Reactor) Metrics() *Metrics { return r.metrics }

// Start pins the calling goroutine to its OS thread and drives the
// scheduler loop until Stop is called and every fiber has drained. It
// returns the first error thrown into the main fiber, if any.
//
// The calling goroutine's own call stack plays the role of the reactor's
// "driver" fibril for the duration of the run: switchToNext switches real
// fiber goroutines in and out of it directly, so Start only needs to make
// one top-level call.
func (r *Reactor) Start() error {
	if r.running {
		return ErrAlreadyRunning
	}
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	r.running = true
	defer func() { r.running = false }()

	r.switchToNext()

	mainNode := r.table.get(mainFiberID)
	mainNode.state = StateRunning
	r.current = mainNode
	r.activeFib = r.driverFib

	return r.mainErr
}

// Stop requests the run loop to unwind: every non-special sleeping fiber
// is thrown ErrReactorExit, then Start returns once they have drained.
func (r *Reactor) Stop() {
	if r.stopping {
		return
	}
	r.stopping = true
	for i := range r.table.slots {
		n := &r.table.slots[i]
		if n.flags&FlagSpecial != 0 {
			continue
		}
		if n.flags&FlagCallbackSet == 0 || n.state != StateSleeping {
			continue
		}
		r.ThrowIn(n.handle(), ErrReactorExit)
	}
}

package reactor

import (
	"fmt"
	"os"
	"runtime"
	"runtime/debug"
	"sync/atomic"
	"time"
)

// hangDetectorInstalled enforces the one-hang-detector-per-process
// constraint: fiberRunClock is a package-level word precisely so the detector
// goroutine can read it without taking any lock the reactor thread might
// hold, which only works if there is exactly one reactor driving it.
var hangDetectorInstalled atomic.Bool

// hangDetector periodically compares fiberRunStartTime against the
// wall-clock and aborts the process if a non-idle fiber has been running
// longer than timeout without yielding.
//
// A real fiber runtime delivers this check from a POSIX real-time signal
// handler so it fires even if the offending fiber is spinning without ever
// touching the scheduler. Go gives user code no portable way to install
// such a handler (os/signal only ever sees signals the runtime doesn't
// consume itself, and a busy-looping goroutine on a locked OS thread still
// leaves every other goroutine, including a watchdog's, schedulable) so
// this is realised as an ordinary ticking goroutine instead — a deliberate
// narrowing from "async, lockstep with the faulting thread" to "polled,
// within one tick's latency of the deadline" (see DESIGN.md).
type hangDetector struct {
	timeout time.Duration
	isIdle  func() bool
	logger  Logger

	ticker *time.Ticker
	done   chan struct{}
}

// startHangDetector installs the process-wide hang detector. Returns an
// error if one is already running.
func startHangDetector(timeout time.Duration, isIdle func() bool, logger Logger) (*hangDetector, error) {
	if timeout <= 0 {
		return nil, nil
	}
	if !hangDetectorInstalled.CompareAndSwap(false, true) {
		return nil, &AssertionFailure{Message: "reactor: a hang detector is already running in this process"}
	}

	interval := timeout / 4
	if interval <= 0 {
		interval = time.Millisecond
	}

	d := &hangDetector{
		timeout: timeout,
		isIdle:  isIdle,
		logger:  logger,
		ticker:  time.NewTicker(interval),
		done:    make(chan struct{}),
	}
	go d.run()
	return d, nil
}

func (d *hangDetector) run() {
	for {
		select {
		case <-d.done:
			return
		case <-d.ticker.C:
			d.check()
		}
	}
}

func (d *hangDetector) check() {
	if d.isIdle != nil && d.isIdle() {
		return
	}
	start := fiberRunStartTime()
	if start == 0 {
		return
	}
	elapsed := time.Duration(time.Now().UnixNano() - start)
	if elapsed < d.timeout {
		return
	}

	buf := make([]byte, 1<<16)
	n := runtime.Stack(buf, true)

	if d.logger != nil {
		d.logger.Log(LogEntry{
			Level:    LevelError,
			Category: "hangdetector",
			Message:  "fiber exceeded hang timeout, terminating process",
			Context: map[string]any{
				"elapsed": elapsed.String(),
				"timeout": d.timeout.String(),
			},
		})
	}
	fmt.Fprintf(os.Stderr, "reactor: hang detected (elapsed=%s timeout=%s)\n%s\n", elapsed, d.timeout, buf[:n])
	os.Exit(2)
}

// stop halts the detector and frees the process-wide slot.
func (d *hangDetector) stop() {
	if d == nil {
		return
	}
	d.ticker.Stop()
	close(d.done)
	hangDetectorInstalled.Store(false)
}

// guardFiberFault recovers a panic raised while running a fiber body that
// touched its own guard page (or any other access violation covered by
// debug.SetPanicOnFault, which runFiberBody arms on each fiber's own
// goroutine), logs it with n's stack descriptor in hand (the faulting
// address is not available, so the descriptor only marks the fiber as a
// guard-page candidate), and terminates the process — the closest
// portable equivalent of the fault-handler dump the spec describes, since
// Go has no user-installable SIGSEGV handler.
func (r *Reactor) guardFiberFault(n *fiberNode) {
	rec := recover()
	if rec == nil {
		return
	}

	inGuard := false
	if r.slab != nil {
		desc := r.slab.descriptorFor(int(n.id), r.slabSize)
		// addr is unavailable from a recovered panic value in portable Go;
		// the descriptor is still logged so an operator can correlate the
		// crash address reported by the OS/core dump against this fiber's
		// guard range.
		inGuard = desc.guardSize > 0
	}

	buf := make([]byte, 1<<16)
	n2 := runtime.Stack(buf, false)

	if r.logger != nil {
		r.logger.Log(LogEntry{
			Level:    LevelError,
			Category: "fault",
			FiberID:  int64(n.id),
			Message:  "fiber body faulted",
			Context: map[string]any{
				"recovered":       fmt.Sprint(rec),
				"guard_candidate": inGuard,
			},
		})
	}
	fmt.Fprintf(os.Stderr, "reactor: fault in fiber %d: %v\n%s\n", n.id, rec, buf[:n2])
	os.Exit(2)
}

// enableFaultGuard arms debug.SetPanicOnFault so a subset of invalid memory
// accesses (notably a fiber overrunning into its guard page) become
// recoverable panics instead of an immediate, undiagnosable runtime fatal
// error. It affects only the calling goroutine and is idempotent.
func enableFaultGuard() {
	debug.SetPanicOnFault(true)
}

package reactor

import "sync/atomic"

// FiberState represents where a fiber sits in its lifecycle.
//
// State Machine:
//
//	Starting → Running ⇄ Sleeping ⇄ Scheduled → Done → Starting (slot reuse)
//
// Only the reactor's single OS thread ever transitions a fiber's state;
// no CAS is required for the field itself. The one exception is the
// reactor-wide fiberRunStartTime clock (fiberRunClock, below), which the
// hang-detector goroutine reads concurrently — that one word is atomic.
type FiberState uint8

const (
	// StateStarting is the state of a freshly spawned fiber that has not
	// yet been switched into for the first time.
	StateStarting FiberState = iota
	// StateRunning is the state of the fiber currently executing.
	StateRunning
	// StateSleeping is the state of a fiber blocked on a sync primitive, an
	// FD wait, or a raw suspend with no ready-queue membership.
	StateSleeping
	// StateScheduled is the state of a fiber sitting on the ready queue,
	// waiting for switchToNext to pop it.
	StateScheduled
	// StateDone is the state of a fiber whose body has returned or
	// propagated an error to the main fiber; the slot is free for reuse.
	StateDone
)

// String returns a human-readable representation of the state.
func (s FiberState) String() string {
	switch s {
	case StateStarting:
		return "Starting"
	case StateRunning:
		return "Running"
	case StateSleeping:
		return "Sleeping"
	case StateScheduled:
		return "Scheduled"
	case StateDone:
		return "Done"
	default:
		return "Unknown"
	}
}

// FiberFlags is a bit set of auxiliary fiber attributes, independent of
// FiberState.
type FiberFlags uint16

const (
	// FlagCallbackSet is set once a slot has been given a body by Spawn.
	FlagCallbackSet FiberFlags = 1 << iota
	// FlagSpecial marks the main fiber (slot 0) and the idle fiber (slot 1);
	// special fibers are never freed and IterateFibers skips them.
	FlagSpecial
	// FlagScheduled is set while the slot is on the ready queue (a freshly
	// spawned fiber has it while still StateStarting); kept as a flag
	// because membership checks on the hot resume() path are cheaper as a
	// bit test.
	FlagScheduled
	// FlagSleeping is defined but never set: StateSleeping alone records
	// that a fiber is sleeping.
	FlagSleeping
	// FlagHasException indicates the fiber's exception buffer holds a
	// pending error that must be raised on next resume.
	FlagHasException
	// FlagExceptionBT is defined but never set: ThrowIn stages errors
	// without capturing a stack trace.
	FlagExceptionBT
	// FlagGCEnabled is defined but never set or consulted;
	// RequestGCCollection runs regardless of it.
	FlagGCEnabled
)

// fiberRunClock is the reactor-wide, signal-safe "when did the running
// fiber start executing" word. It is a package-level atomic rather than a
// Reactor field because the hang-detector goroutine (signals.go) must
// read it without taking any lock the reactor thread might hold, and at
// most one Reactor may install a hang detector per process (see
// SPEC_FULL.md §9 resolved Open Question).
var fiberRunClock atomic.Int64

// fiberRunStartTime returns the wall-clock Unix nanosecond timestamp at
// which the currently running fiber was switched in, or 0 while the
// reactor is idle or before any fiber has run.
func fiberRunStartTime() int64 { return fiberRunClock.Load() }

func setFiberRunStartTime(ns int64) { fiberRunClock.Store(ns) }

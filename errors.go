// Package reactor error kinds, modelled as sentinel/struct errors with
// cause-chain support so callers can use [errors.Is] and [errors.As].
package reactor

import (
	"errors"
	"fmt"
)

// Sentinel error kinds that carry no extra data.
var (
	// ErrOutOfFibers is returned by Spawn when the fiber table's free list
	// is empty.
	ErrOutOfFibers = errors.New("reactor: out of fibers")

	// ErrReactorTimeout is raised at a fiber's suspension point when its
	// Suspend/Sleep deadline fires before it is otherwise resumed.
	ErrReactorTimeout = errors.New("reactor: suspension timed out")

	// ErrReactorExit is injected into every sleeping non-special fiber when
	// Stop is called. Fiber bodies should treat it as "unwind and return".
	ErrReactorExit = errors.New("reactor: reactor is stopping")

	// ErrFiberGroupExtinction is injected into every live member of a
	// FiberGroup when Kill is called.
	ErrFiberGroupExtinction = errors.New("reactor: fiber group killed")

	// ErrShortRead is returned by fd-reading helpers that expect a
	// terminator or an exact byte count and instead observe EOF first.
	ErrShortRead = errors.New("reactor: short read (EOF before terminator)")

	// ErrCriticalSection is returned by Suspend (and so by Sleep and the
	// sync primitives' waits) when called while the critical-section
	// counter is non-zero.
	ErrCriticalSection = errors.New("reactor: suspend attempted inside a critical section")

	// ErrHandleInvalid names a FiberHandle whose incarnation no longer
	// matches its slot. No function in this package returns it: Resume,
	// ThrowIn and FLSSlot.Set report a stale handle by returning false.
	ErrHandleInvalid = errors.New("reactor: fiber handle is stale or invalid")

	// ErrAlreadyRunning is returned by Start when called on a reactor that
	// is already inside its run loop.
	ErrAlreadyRunning = errors.New("reactor: already running")

	// ErrNotRunning names an operation attempted outside an active run
	// loop. No function in this package returns it; timers, for one, may
	// be registered before Start.
	ErrNotRunning = errors.New("reactor: not running")
)

// AssertionFailure represents a fatal internal invariant violation. Unlike
// the other error kinds, it is never meant to be recovered from by a fiber
// body: Reactor.assert writes it to stderr and terminates the process, or
// panics with it under go test (see assert.go).
type AssertionFailure struct {
	Message string
}

// Error implements the error interface.
func (e *AssertionFailure) Error() string {
	return "reactor: assertion failed: " + e.Message
}

// OSError wraps a syscall failure with the operation and fd that produced
// it, preserving the underlying errno for [errors.Is] against e.g.
// [syscall.EAGAIN].
type OSError struct {
	Op    string
	FD    int
	Cause error
}

// Error implements the error interface.
func (e *OSError) Error() string {
	return fmt.Sprintf("reactor: %s(fd=%d): %v", e.Op, e.FD, e.Cause)
}

// Unwrap returns the underlying errno-carrying error.
func (e *OSError) Unwrap() error {
	return e.Cause
}

// WrapOSError builds an [*OSError] if cause is non-nil, else returns nil —
// a convenience for `if err := ...; err != nil { return WrapOSError(...) }`
// call sites in the poller.
func WrapOSError(op string, fd int, cause error) error {
	if cause == nil {
		return nil
	}
	return &OSError{Op: op, FD: fd, Cause: cause}
}

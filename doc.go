// Package reactor implements a single-threaded cooperative fiber runtime:
// a scheduler that multiplexes many lightweight fibers onto one OS thread,
// a cascading (hierarchical hashed) timer wheel, and an edge-triggered
// readiness poller, all driven from one run loop.
//
// # Architecture
//
// A [Reactor] owns a fixed-size fiber table, a cascading timer queue
// ([ctq]), and a platform poller ([FastPoller]). Collaborators call
// [Reactor.Spawn] to create fibers, and [Reactor.Suspend], [Reactor.Sleep],
// [Reactor.Yield] to cooperatively hand control back to the scheduler. The
// scheduler drains expired timers and readiness events from inside the
// main fiber and resumes the fibers they target — there are no thread
// hops.
//
// # Context switching
//
// Real fiber runtimes swap the CPU stack pointer in hand-written assembly.
// Go offers no portable equivalent, so switching here is realised as a
// baton handed between two parked goroutines over an unbuffered channel
// (see fibril.go): exactly one goroutine runs at a time, which preserves
// the single-active-fiber invariant the rest of the package depends on.
//
// # Platform support
//
// The readiness poller is edge-triggered and implemented with epoll on
// Linux and kqueue on Darwin/BSD. Windows is out of scope: IOCP's
// completion model is not a readiness model and cannot be wrapped without
// changing the contract of [Reactor.Wait].
//
// # Thread safety
//
// A [Reactor] is not safe for concurrent use. Exactly one OS thread drives
// [Reactor.Start]; every other operation (Spawn, Resume, ThrowIn,
// RegisterTimer, ...) must be called from a fiber running on that reactor.
//
// # Usage
//
//	r, err := reactor.Setup()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer r.Teardown()
//
//	r.Spawn(func(r *reactor.Reactor) error {
//	    r.Sleep(100 * time.Millisecond)
//	    fmt.Println("Hello after 100ms")
//	    r.Stop()
//	    return nil
//	}, false)
//
//	if err := r.Start(); err != nil {
//	    log.Fatal(err)
//	}
package reactor

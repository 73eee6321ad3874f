package reactor

// fibril is the context-switch primitive the rest of the package builds
// on. A real fiber runtime swaps the CPU stack pointer in hand-written
// per-architecture assembly (fibril_set/fibril_switch); Go has no portable
// equivalent, since goroutine stacks are managed by the runtime and are
// not addressable memory. Here a fibril is realised as a parked goroutine
// rendezvousing with its switcher over an unbuffered channel: at most one
// side of the channel is ever runnable, which reproduces the
// single-active-fiber invariant the scheduler depends on.
type fibril struct {
	resume chan struct{}
	done   chan struct{}
	fn     func()
	armed  bool // true from set() until the next reset() observes done
}

// newFibril allocates an unset fibril.
func newFibril() *fibril {
	return &fibril{
		resume: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// set arms the fibril with an entry function and spawns the goroutine that
// will run it, blocked immediately on the first resume.
func (f *fibril) set(fn func()) {
	f.fn = fn
	f.armed = true
	go func() {
		<-f.resume
		f.fn()
		close(f.done)
	}()
}

// switchTo hands control to other and blocks until some other fibril
// switches back to f. Exactly one of the two goroutines is runnable at any
// instant: the sender never observes other's receive buffered (the
// channel is unbuffered), so this is a synchronous handoff, not a signal.
func (f *fibril) switchTo(other *fibril) {
	other.resume <- struct{}{}
	<-f.resume
}

// switchToFinal hands control to other without waiting to be resumed
// again. Used for a fiber's last handoff, once its body has already
// returned: nothing will ever resume f again (its slot's channels are
// replaced wholesale by the next Spawn into that slot, see reset()), so
// blocking on f.resume the way switchTo does would park this goroutine
// forever. The caller's entry function returns immediately after this
// call, letting its goroutine close f.done and exit.
func (f *fibril) switchToFinal(other *fibril) {
	other.resume <- struct{}{}
}

// reset returns the fibril to the unset state; it must be set again
// before the next switchTo. If the fibril was previously armed, its
// goroutine's exit is observed on done first, so the old goroutine is
// guaranteed to have returned (past its final switchToFinal handoff)
// before its channels are replaced out from under it — without this, a
// slot freed by a finishing fiber and immediately reused by Spawn would
// race the dying goroutine's close(f.done) against this function's own
// writes to f.done/f.resume.
func (f *fibril) reset() {
	if f.armed {
		<-f.done
	}
	f.resume = make(chan struct{})
	f.done = make(chan struct{})
	f.fn = nil
	f.armed = false
}

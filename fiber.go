package reactor

// FiberId is the slot index of a fiber within a Reactor's fiber table.
type FiberId uint16

// FiberHandle uniquely identifies a fiber at a point in time: the slot
// index plus the incarnation counter that was current when the handle was
// issued. A handle is valid iff its incarnation matches the slot's current
// incarnation — once a fiber's body returns and its slot is recycled, every
// handle issued against the old incarnation becomes permanently invalid.
type FiberHandle struct {
	id          FiberId
	incarnation uint16
}

// IsZero reports whether h is the zero FiberHandle. The zero handle never
// names a spawned fiber (Spawn bumps the incarnation before issuing a
// handle), but it is the main fiber's own handle, slot 0 at incarnation 0.
func (h FiberHandle) IsZero() bool { return h.id == 0 && h.incarnation == 0 }

// FiberBody is a spawned fiber's entry point. Returning a non-nil error
// unwinds the fiber and delivers the error to the main fiber via ThrowIn;
// the first such error becomes Start's return value.
type FiberBody func(r *Reactor) error

const (
	mainFiberID FiberId = 0
	idleFiberID FiberId = 1
)

// fiberNode is one slot in the fiber table: both fiber state and the
// intrusive doubly-linked list node shared by the free list and ready
// queue. Only one of those lists ever owns a given slot at a time.
type fiberNode struct {
	id          FiberId
	incarnation uint16

	state FiberState
	flags FiberFlags

	body FiberBody
	fib  *fibril

	// fls is this fiber's fiber-local storage area, a fixed-size slab
	// bump-allocated from (see fls.go).
	fls []byte

	// exc is the inline exception buffer (see exception.go).
	exc exceptionBuffer

	// suspendTimer is the one-shot TimerHandle registered by Suspend/Sleep
	// for a finite timeout, so it can be cancelled on early resume.
	suspendTimer TimerHandle

	// resumedByTimeout is set by the suspend timer's callback when it is
	// the one that resumes the fiber, and consulted by Suspend to decide
	// whether to return ErrReactorTimeout.
	resumedByTimeout bool

	// err is cleared on spawn and otherwise unused: ThrowIn stages the
	// injected error in exc.
	err error

	// runStart is the monotonic nanosecond timestamp at which this fiber
	// was last switched in; used for hogger-threshold accounting.
	runStart int64

	// bodyIdentity names the fiber body for rate-limited hogger/hang
	// diagnostics (see diagnostics.go); derived once at spawn time.
	bodyIdentity string

	// prev/next implement the intrusive doubly-linked list (free list or
	// ready queue); zero means "no neighbour", since slot 0 (main) is
	// never itself placed on the free list.
	prev, next FiberId
	linked     bool
}

func (n *fiberNode) handle() FiberHandle {
	return FiberHandle{id: n.id, incarnation: n.incarnation}
}

func (n *fiberNode) reset() {
	n.state = StateStarting
	n.flags = 0
	n.body = nil
	n.err = nil
	n.resumedByTimeout = false
	n.suspendTimer = TimerHandle{}
	n.bodyIdentity = ""
	for i := range n.fls {
		n.fls[i] = 0
	}
	n.exc.clear()
}

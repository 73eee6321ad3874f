package reactor

import (
	"sync"
	"unsafe"
)

// defaultFLSSize is the default size, in bytes, of the fiber-local storage
// area carved out of every fiber's control-block slab.
const defaultFLSSize = 512

// flsRegistry assigns byte offsets to typed FLS slots at package
// init-time, since Go has no literal compile-time constant-folding
// registry for arbitrary types. Registration after any Reactor has been
// created is rejected: offsets must be stable for the lifetime of every
// allocated FLS area.
var flsRegistry struct {
	mu     sync.Mutex
	offset int
	sealed bool
}

// FLSSlot identifies one fiber-local storage slot, reserved once at
// init-time via NewFLSSlot and addressed by every fiber's FLS area at the
// same offset thereafter.
type FLSSlot[T any] struct {
	offset int
}

// NewFLSSlot reserves a new fiber-local storage slot for type T, aligned
// to T's natural alignment within the shared FLS area. Must be called from
// an init function, before any Reactor is set up.
func NewFLSSlot[T any]() FLSSlot[T] {
	flsRegistry.mu.Lock()
	defer flsRegistry.mu.Unlock()

	if flsRegistry.sealed {
		panic("reactor: NewFLSSlot called after a Reactor was set up")
	}

	var zero T
	size := int(unsafe.Sizeof(zero))
	align := size
	if align > 8 {
		align = 8
	}
	if align < 1 {
		align = 1
	}
	if rem := flsRegistry.offset % align; rem != 0 {
		flsRegistry.offset += align - rem
	}
	off := flsRegistry.offset
	flsRegistry.offset += size
	if flsRegistry.offset > defaultFLSSize {
		panic("reactor: fiber-local storage area exhausted; increase defaultFLSSize or register fewer slots")
	}
	return FLSSlot[T]{offset: off}
}

// sealFLSRegistry freezes the registry the first time a Reactor is set up.
func sealFLSRegistry() {
	flsRegistry.mu.Lock()
	defer flsRegistry.mu.Unlock()
	flsRegistry.sealed = true
}

// Get reads the slot's value out of the given fiber's FLS area.
func (s FLSSlot[T]) Get(r *Reactor, handle FiberHandle) (T, bool) {
	var zero T
	n := r.lookup(handle)
	if n == nil {
		return zero, false
	}
	return *(*T)(flsPointer(n.fls, s.offset)), true
}

// Set writes the slot's value into the given fiber's FLS area. Returns
// false if the handle is stale or the target is the special main/idle
// fiber: writes are accepted only for non-special fibers, even though
// every slot, the special ones included, has an FLS area.
func (s FLSSlot[T]) Set(r *Reactor, handle FiberHandle, value T) bool {
	n := r.lookup(handle)
	if n == nil || n.flags&FlagSpecial != 0 {
		return false
	}
	*(*T)(flsPointer(n.fls, s.offset)) = value
	return true
}

// CurrentGet reads the slot's value from the currently running fiber.
func (s FLSSlot[T]) CurrentGet(r *Reactor) T {
	v, _ := s.Get(r, r.current.handle())
	return v
}

// CurrentSet writes the slot's value into the currently running fiber.
func (s FLSSlot[T]) CurrentSet(r *Reactor, value T) {
	s.Set(r, r.current.handle(), value)
}

// flsPointer computes the address of the slot at offset within area,
// bounds-checked by the caller's registration-time reservation (NewFLSSlot
// never hands out an offset beyond defaultFLSSize).
func flsPointer(area []byte, offset int) unsafe.Pointer {
	return unsafe.Pointer(&area[offset])
}

//go:build linux || darwin

package reactor

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// addrOf returns the starting address of b as a uintptr, for guard-page
// bounds comparisons only; the slab itself is never resized or moved for
// the lifetime of the fiberSlab that owns it.
func addrOf(b []byte) uintptr {
	if len(b) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&b[0]))
}

// stackDescriptor records the layout of one fiber's guard-paged
// control-block slab, consulted by the fault handlers (signals.go) to
// decide whether a faulting address lies within the guard page.
//
// The slab does not back the fiber's actual execution stack — Go manages
// goroutine stacks internally and they are not addressable memory. What it
// backs is the fiber's FLS area (the whole per-fiber slab); the exception
// buffer lives in the fiber table slot and this descriptor is computed on
// demand. It is real guard-paged memory, just repurposed to FLS storage
// rather than to a stack a goroutine could overflow into.
type stackDescriptor struct {
	base      uintptr
	size      int
	guardBase uintptr
	guardSize int
}

// contains reports whether addr falls within the data region (excluding
// the guard page).
func (d *stackDescriptor) contains(addr uintptr) bool {
	return addr >= d.base && addr < d.base+uintptr(d.size)
}

// inGuardPage reports whether addr falls within the unmapped guard page
// immediately following the data region.
func (d *stackDescriptor) inGuardPage(addr uintptr) bool {
	return addr >= d.guardBase && addr < d.guardBase+uintptr(d.guardSize)
}

// fiberSlab is a guard-paged mmap'd region sized to hold every fiber's
// control-block slab contiguously, with one unmapped guard page after the
// data region. Fiber slot i owns the fixed range [i*slabSize,
// (i+1)*slabSize) (see slabFor); the mapping itself is fixed-size for the
// reactor's lifetime.
type fiberSlab struct {
	mem       []byte
	guardAddr uintptr
	pageSize  int
}

// newFiberSlab maps numFibers*slabSize bytes rounded up to whole pages,
// plus one trailing unmapped guard page.
func newFiberSlab(numFibers, slabSize int) (*fiberSlab, error) {
	pageSize := unix.Getpagesize()
	dataBytes := roundUp(numFibers*slabSize, pageSize)

	mem, err := unix.Mmap(-1, 0, dataBytes+pageSize,
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, WrapOSError("mmap", -1, err)
	}

	guard := mem[dataBytes:]
	if err := unix.Mprotect(guard, unix.PROT_NONE); err != nil {
		_ = unix.Munmap(mem)
		return nil, WrapOSError("mprotect", -1, err)
	}

	return &fiberSlab{
		mem:       mem[:dataBytes],
		guardAddr: addrOf(guard),
		pageSize:  pageSize,
	}, nil
}

// slabFor returns the byte region reserved for fiber index i.
func (s *fiberSlab) slabFor(i, slabSize int) []byte {
	start := i * slabSize
	return s.mem[start : start+slabSize : start+slabSize]
}

// descriptorFor builds the stackDescriptor for fiber index i.
func (s *fiberSlab) descriptorFor(i, slabSize int) stackDescriptor {
	base := addrOf(s.slabFor(i, slabSize))
	return stackDescriptor{
		base:      base,
		size:      slabSize,
		guardBase: s.guardAddr,
		guardSize: s.pageSize,
	}
}

// close unmaps the slab; safe to call once at reactor Teardown.
func (s *fiberSlab) close() error {
	full := s.mem[:cap(s.mem)]
	if err := unix.Munmap(full); err != nil {
		return WrapOSError("munmap", -1, err)
	}
	return nil
}

func roundUp(n, multiple int) int {
	if multiple == 0 {
		return n
	}
	rem := n % multiple
	if rem == 0 {
		return n
	}
	return n + multiple - rem
}

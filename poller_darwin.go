//go:build darwin

package reactor

import (
	"golang.org/x/sys/unix"
)

// maxFDs bounds direct-indexed FD lookup; grows dynamically beyond this if
// a caller registers a higher fd.
const maxFDs = 65536

// FastPoller manages I/O event registration using kqueue, always
// edge-triggered (EV_CLEAR). Driven exclusively by the reactor's own
// thread, so unlike the multi-goroutine poller this design descends from,
// no locking is required around the fds slice.
type FastPoller struct {
	kq       int32
	eventBuf [256]unix.Kevent_t
	fds      []*FdContext
	closed   bool
}

// Init initializes the kqueue instance.
func (p *FastPoller) Init() error {
	if p.closed {
		return ErrPollerClosed
	}
	kq, err := unix.Kqueue()
	if err != nil {
		return WrapOSError("kqueue", -1, err)
	}
	unix.CloseOnExec(kq)
	p.kq = int32(kq)
	p.fds = make([]*FdContext, maxFDs)
	return nil
}

// Close closes the kqueue instance.
func (p *FastPoller) Close() error {
	p.closed = true
	if p.kq > 0 {
		return unix.Close(int(p.kq))
	}
	return nil
}

func (p *FastPoller) grow(fd int) {
	if fd < len(p.fds) {
		return
	}
	newFds := make([]*FdContext, fd*2+1)
	copy(newFds, p.fds)
	p.fds = newFds
}

// RegisterFD registers a file descriptor for both directions,
// edge-triggered.
func (p *FastPoller) RegisterFD(fd int) (*FdContext, error) {
	if p.closed {
		return nil, ErrPollerClosed
	}
	if fd < 0 {
		return nil, ErrFDOutOfRange
	}
	p.grow(fd)
	if p.fds[fd] != nil {
		return nil, ErrFDAlreadyRegistered
	}

	ctx := &FdContext{fd: fd}
	p.fds[fd] = ctx

	kevents := []unix.Kevent_t{
		{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: unix.EV_ADD | unix.EV_ENABLE | unix.EV_CLEAR},
		{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_ADD | unix.EV_ENABLE | unix.EV_CLEAR},
	}
	if _, err := unix.Kevent(int(p.kq), kevents, nil, nil); err != nil {
		p.fds[fd] = nil
		return nil, WrapOSError("kevent_add", fd, err)
	}
	return ctx, nil
}

// DeregisterFD removes a file descriptor from monitoring. If fdIsClosing
// is true the EV_DELETE call is skipped, since closing the fd already
// drops its kevents.
func (p *FastPoller) DeregisterFD(fd int, ctx *FdContext, fdIsClosing bool) error {
	if fd < 0 || fd >= len(p.fds) {
		return ErrFDOutOfRange
	}
	if p.fds[fd] != ctx || ctx == nil {
		return ErrFDNotRegistered
	}
	p.fds[fd] = nil
	if fdIsClosing || p.closed {
		return nil
	}
	kevents := []unix.Kevent_t{
		{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: unix.EV_DELETE},
		{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_DELETE},
	}
	_, _ = unix.Kevent(int(p.kq), kevents, nil, nil)
	return nil
}

// RegisterCallback installs a non-suspending callback for one direction
// of ctx, replacing any existing waiter or callback on that direction.
func (p *FastPoller) RegisterCallback(ctx *FdContext, dir Direction, cb IOCallback, opaque any, oneShot bool) error {
	st := ctx.state(dir)
	st.clear()
	st.callback = cb
	st.opaque = opaque
	st.oneShot = oneShot
	return nil
}

// Poll drains ready events and dispatches them, returning the number of
// events processed.
func (p *FastPoller) Poll(timeoutMs int) (int, error) {
	if p.closed {
		return 0, ErrPollerClosed
	}

	var ts *unix.Timespec
	if timeoutMs >= 0 {
		ts = &unix.Timespec{
			Sec:  int64(timeoutMs / 1000),
			Nsec: int64((timeoutMs % 1000) * 1000000),
		}
	}

	n, err := unix.Kevent(int(p.kq), nil, p.eventBuf[:], ts)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, WrapOSError("kevent_wait", int(p.kq), err)
	}

	for i := 0; i < n; i++ {
		fd := int(p.eventBuf[i].Ident)
		if fd < 0 || fd >= len(p.fds) {
			continue
		}
		ctx := p.fds[fd]
		if ctx == nil {
			continue
		}
		events := keventToEvents(&p.eventBuf[i])
		switch p.eventBuf[i].Filter {
		case unix.EVFILT_READ:
			dispatchDirection(&ctx.read, events)
		case unix.EVFILT_WRITE:
			dispatchDirection(&ctx.write, events)
		}
	}
	return n, nil
}

func keventToEvents(kev *unix.Kevent_t) IOEvents {
	var events IOEvents
	switch kev.Filter {
	case unix.EVFILT_READ:
		events |= EventRead
	case unix.EVFILT_WRITE:
		events |= EventWrite
	}
	if kev.Flags&unix.EV_ERROR != 0 {
		events |= EventError
	}
	if kev.Flags&unix.EV_EOF != 0 {
		events |= EventHangup
	}
	return events
}

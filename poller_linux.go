//go:build linux

package reactor

import (
	"golang.org/x/sys/unix"
)

// maxFDs bounds direct-indexed FD lookup.
const maxFDs = 65536

// FastPoller manages I/O event registration using epoll, always
// edge-triggered (EPOLLET). It is driven exclusively by the reactor's own
// thread, so unlike the multi-goroutine poller this design descends from,
// no locking is required around the fds array.
type FastPoller struct {
	epfd     int32
	eventBuf [256]unix.EpollEvent
	fds      [maxFDs]*FdContext
	closed   bool
}

// Init initializes the epoll instance.
func (p *FastPoller) Init() error {
	if p.closed {
		return ErrPollerClosed
	}
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return WrapOSError("epoll_create1", -1, err)
	}
	p.epfd = int32(epfd)
	return nil
}

// Close closes the epoll instance.
func (p *FastPoller) Close() error {
	p.closed = true
	if p.epfd > 0 {
		return unix.Close(int(p.epfd))
	}
	return nil
}

// RegisterFD registers a file descriptor for both directions,
// edge-triggered. The caller configures individual directions afterwards
// via Wait or RegisterCallback.
func (p *FastPoller) RegisterFD(fd int) (*FdContext, error) {
	if p.closed {
		return nil, ErrPollerClosed
	}
	if fd < 0 || fd >= maxFDs {
		return nil, ErrFDOutOfRange
	}
	if p.fds[fd] != nil {
		return nil, ErrFDAlreadyRegistered
	}

	ctx := &FdContext{fd: fd}
	p.fds[fd] = ctx

	ev := &unix.EpollEvent{
		Events: unix.EPOLLIN | unix.EPOLLOUT | unix.EPOLLET | unix.EPOLLRDHUP,
		Fd:     int32(fd),
	}
	if err := unix.EpollCtl(int(p.epfd), unix.EPOLL_CTL_ADD, fd, ev); err != nil {
		p.fds[fd] = nil
		return nil, WrapOSError("epoll_ctl_add", fd, err)
	}
	return ctx, nil
}

// DeregisterFD removes a file descriptor from monitoring. If fdIsClosing
// is true the EPOLL_CTL_DEL is skipped, since closing the fd already
// drops it from every epoll set it was added to.
func (p *FastPoller) DeregisterFD(fd int, ctx *FdContext, fdIsClosing bool) error {
	if fd < 0 || fd >= maxFDs {
		return ErrFDOutOfRange
	}
	if p.fds[fd] != ctx || ctx == nil {
		return ErrFDNotRegistered
	}
	p.fds[fd] = nil
	if fdIsClosing || p.closed {
		return nil
	}
	if err := unix.EpollCtl(int(p.epfd), unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return WrapOSError("epoll_ctl_del", fd, err)
	}
	return nil
}

// Wait is implemented as a Reactor method (poller_wait.go), which parks the
// calling fiber on ctx's direction state and resumes it from Poll's
// dispatch loop.

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
// fds with at least one event.
func (p *FastPoller) Poll(timeoutMs int) (int, error) {
	if p.closed {
		return 0, ErrPollerClosed
	}

	n, err := unix.EpollWait(int(p.epfd), p.eventBuf[:], timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, WrapOSError("epoll_wait", int(p.epfd), err)
	}

	for i := 0; i < n; i++ {
		fd := int(p.eventBuf[i].Fd)
		if fd < 0 || fd >= maxFDs {
			continue
		}
		ctx := p.fds[fd]
		if ctx == nil {
			continue
		}
		p.dispatch(ctx, epollToEvents(p.eventBuf[i].Events))
	}
	return n, nil
}

func (p *FastPoller) dispatch(ctx *FdContext, events IOEvents) {
	if events&(EventRead|EventError|EventHangup) != 0 {
		dispatchDirection(&ctx.read, events)
	}
	if events&(EventWrite|EventError) != 0 {
		dispatchDirection(&ctx.write, events)
	}
}

func epollToEvents(epollEvents uint32) IOEvents {
	var events IOEvents
	if epollEvents&unix.EPOLLIN != 0 {
		events |= EventRead
	}
	if epollEvents&unix.EPOLLOUT != 0 {
		events |= EventWrite
	}
	if epollEvents&unix.EPOLLERR != 0 {
		events |= EventError
	}
	if epollEvents&(unix.EPOLLHUP|unix.EPOLLRDHUP) != 0 {
		events |= EventHangup
	}
	return events
}

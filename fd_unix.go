//go:build linux || darwin

package reactor

import (
	"golang.org/x/sys/unix"
)

// closeFD closes a file descriptor.
func closeFD(fd int) error {
	return unix.Close(fd)
}

// readFD reads from a file descriptor.
func readFD(fd int, buf []byte) (int, error) {
	return unix.Read(fd, buf)
}

// writeFD writes to a file descriptor.
func writeFD(fd int, buf []byte) (int, error) {
	return unix.Write(fd, buf)
}

// setNonblock puts fd into non-blocking mode, required before registering
// it with the poller: edge-triggered readiness only tells the caller when
// to retry, the retry itself must never block.
func setNonblock(fd int) error {
	return unix.SetNonblock(fd, true)
}

// ReadExact reads len(buf) bytes from fd, suspending the calling fiber on
// read-readiness between retries. If EOF arrives after some but not all
// bytes were read it returns the count read and ErrShortRead; EOF before
// any byte returns (0, nil).
func (r *Reactor) ReadExact(ctx *FdContext, buf []byte, timeout int) (int, error) {
	var total int
	for total < len(buf) {
		n, err := readFD(ctx.fd, buf[total:])
		if n > 0 {
			total += n
			continue
		}
		if n == 0 && err == nil {
			if total > 0 {
				return total, ErrShortRead
			}
			return 0, nil
		}
		if err == unix.EAGAIN {
			if werr := r.Wait(ctx, DirRead, timeout); werr != nil {
				return total, werr
			}
			continue
		}
		return total, WrapOSError("read", ctx.fd, err)
	}
	return total, nil
}

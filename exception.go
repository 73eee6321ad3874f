package reactor

import "runtime"

// captureStack fills buf (reusing its backing array) with the calling
// goroutine's current stack trace.
func captureStack(buf []byte) []byte {
	if cap(buf) == 0 {
		buf = make([]byte, 4096)
	} else {
		buf = buf[:cap(buf)]
	}
	for {
		n := runtime.Stack(buf, false)
		if n < len(buf) {
			return buf[:n]
		}
		buf = make([]byte, len(buf)*2)
	}
}

// exceptionBuffer is the inline, non-allocating home for an error pending
// delivery to a fiber. Only one exception may be outstanding per fiber at
// a time: ThrowIn overwrites whatever was staged before the target next
// resumes.
type exceptionBuffer struct {
	err        error
	hasBT      bool
	stackTrace []byte
}

func (b *exceptionBuffer) stage(err error, captureTrace bool) {
	b.err = err
	b.hasBT = captureTrace
	if captureTrace {
		b.stackTrace = captureStack(b.stackTrace[:0])
	} else {
		b.stackTrace = b.stackTrace[:0]
	}
}

func (b *exceptionBuffer) take() error {
	err := b.err
	b.err = nil
	b.hasBT = false
	return err
}

func (b *exceptionBuffer) clear() {
	b.err = nil
	b.hasBT = false
	b.stackTrace = b.stackTrace[:0]
}

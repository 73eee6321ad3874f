package reactor

import (
	"fmt"
	"os"
	"testing"
)

// assert terminates the process with a logged AssertionFailure if cond is
// false; under go test it panics with the AssertionFailure instead, so the
// failure is reported rather than killing the test binary. Used for
// internal invariants that would otherwise corrupt
// scheduler state silently (a stale free-list link, a ready-queue entry
// with no body) rather than anything a caller could sensibly recover from.
func (r *Reactor) assert(cond bool, message string) {
	if cond {
		return
	}
	err := &AssertionFailure{Message: message}
	logger := r.logger
	if logger == nil {
		logger = getGlobalLogger()
	}
	logger.Log(LogEntry{
		Level:    LevelError,
		Category: "assert",
		Message:  err.Error(),
	})
	fmt.Fprintln(os.Stderr, err.Error())
	if testing.Testing() {
		panic(err)
	}
	os.Exit(1)
}

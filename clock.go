package reactor

import "time"

// clock is the reactor's monotonic time source, calibrated once at Setup
// so every expiry computed by the CTQ shares one origin. Trimmed down from
// the teacher's marks/measures surface (not needed here — the CTQ only
// ever wants "nanoseconds since this reactor started").
type clock struct {
	origin time.Time
}

func newClock() *clock {
	return &clock{origin: time.Now()}
}

// now returns the current monotonic timestamp, in nanoseconds since the
// clock was created.
func (c *clock) now() int64 {
	return int64(time.Since(c.origin))
}

// deadline converts a time.Duration-from-now into an absolute clock
// timestamp.
func (c *clock) deadline(d time.Duration) int64 {
	return c.now() + int64(d)
}

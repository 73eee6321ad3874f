package reactor

import (
	"time"

	"github.com/joeycumines/go-catrate"
)

// diagnosticsLimiter rate-limits repeated hogger warnings per
// fiber-body-identity category, so a fiber that hogs the loop on every
// tick cannot flood the log. Grounded on catrate's multi-window sliding
// limiter, keyed here per category with two windows: at most one warning
// per second and three per ten seconds.
type diagnosticsLimiter struct {
	limiter *catrate.Limiter
}

func newDiagnosticsLimiter() *diagnosticsLimiter {
	return &diagnosticsLimiter{
		limiter: catrate.NewLimiter(map[time.Duration]int{
			time.Second:      1,
			10 * time.Second: 3,
		}),
	}
}

// allow reports whether a diagnostic for category should be emitted now.
func (d *diagnosticsLimiter) allow(category string) bool {
	_, ok := d.limiter.Allow(category)
	return ok
}

// Package clock provides the injected time source used by every component that needs "now".
package clock

import (
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
)

// Clock is the time capability shared by the server and clients.
type Clock = clockwork.Clock

// Real returns the wall clock.
func Real() Clock {
	return clockwork.NewRealClock()
}

// OffsetClock is a client-side clock corrected toward the authoritative server clock.
// The offset is replaced on every Sync and held unchanged between syncs.
type OffsetClock struct {
	base     Clock
	offsetNs atomic.Int64
	synced   atomic.Bool
}

// NewOffsetClock wraps base with a zero offset.
func NewOffsetClock(base Clock) *OffsetClock {
	if base == nil {
		base = Real()
	}
	return &OffsetClock{base: base}
}

// Sync records offset = serverTime - local now and returns it.
func (c *OffsetClock) Sync(serverTime time.Time) time.Duration {
	offset := serverTime.Sub(c.base.Now())
	c.offsetNs.Store(int64(offset))
	c.synced.Store(true)
	return offset
}

// Now returns local now plus the last measured offset.
func (c *OffsetClock) Now() time.Time {
	return c.base.Now().Add(c.Offset())
}

// Offset returns the last measured offset.
func (c *OffsetClock) Offset() time.Duration {
	return time.Duration(c.offsetNs.Load())
}

// Synced reports whether at least one server time has been applied.
func (c *OffsetClock) Synced() bool {
	return c.synced.Load()
}

// Base returns the uncorrected clock, used for local tickers.
func (c *OffsetClock) Base() Clock {
	return c.base
}

package mock

import (
	"context"
	"sync"
	"time"

	"ldpos_chain/slot"
)

// Clock is a manually driven slot clock, useful for testing.
// WaitForSlot and Sleep fast-forward the clock instead of blocking.
type Clock struct {
	mtx      sync.Mutex
	now      int64
	interval time.Duration
}

var _ slot.Clock = (*Clock)(nil)

func NewClock(interval time.Duration, now int64) *Clock {
	return &Clock{interval: interval, now: now}
}

func (c *Clock) Now() int64 {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.now
}

// SetNow moves the clock to the given millisecond timestamp.
func (c *Clock) SetNow(timestamp int64) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.now = timestamp
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.now += d.Milliseconds()
}

func (c *Clock) Interval() time.Duration { return c.interval }

func (c *Clock) CurrentSlot() int64 { return c.SlotOf(c.Now()) }

func (c *Clock) SlotOf(timestamp int64) int64 { return timestamp / c.interval.Milliseconds() }

func (c *Clock) StartOf(slot int64) int64 { return slot * c.interval.Milliseconds() }

func (c *Clock) WaitForSlot(ctx context.Context, slot int64) bool {
	if ctx.Err() != nil {
		return false
	}
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if target := slot * c.interval.Milliseconds(); target > c.now {
		c.now = target
	}
	return true
}

func (c *Clock) Sleep(ctx context.Context, d time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	c.Advance(d)
	return true
}

package slot

import (
	"context"
	"time"
)

// Clock 把墙上时钟映射到锻造slot。
// slot编号 = 毫秒时间戳 / forgingInterval，slot的起点对齐interval边界
type Clock interface {
	// Now returns the current wallclock as a unix timestamp in milliseconds.
	Now() int64

	// Interval returns the forging interval.
	Interval() time.Duration

	// CurrentSlot returns the slot covering Now.
	CurrentSlot() int64

	// SlotOf returns the slot covering the given millisecond timestamp.
	SlotOf(timestamp int64) int64

	// StartOf returns the first millisecond of the given slot.
	StartOf(slot int64) int64

	// WaitForSlot 协作式地等到指定slot的起点，到达返回true，
	// ctx先取消则返回false
	WaitForSlot(ctx context.Context, slot int64) bool

	// Sleep 可取消的休眠，睡满返回true
	Sleep(ctx context.Context, d time.Duration) bool
}

// NewClock returns a Clock backed by the system wallclock. pollInterval
// bounds how long a WaitForSlot stays inside a single timer.
func NewClock(interval, pollInterval time.Duration) Clock {
	return &systemClock{
		interval:     interval,
		pollInterval: pollInterval,
	}
}

type systemClock struct {
	interval     time.Duration
	pollInterval time.Duration
}

func (c *systemClock) Now() int64 {
	return time.Now().UnixNano() / int64(time.Millisecond)
}

func (c *systemClock) Interval() time.Duration { return c.interval }

func (c *systemClock) CurrentSlot() int64 { return c.SlotOf(c.Now()) }

func (c *systemClock) SlotOf(timestamp int64) int64 {
	return timestamp / c.interval.Milliseconds()
}

func (c *systemClock) StartOf(slot int64) int64 {
	return slot * c.interval.Milliseconds()
}

// WaitForSlot 以timePollInterval为步长轮询而不是一觉睡到位，
// 进程挂起或时钟跳变之后能较快回到正确的slot节奏
func (c *systemClock) WaitForSlot(ctx context.Context, slot int64) bool {
	target := c.StartOf(slot)
	for {
		remaining := time.Duration(target-c.Now()) * time.Millisecond
		if remaining <= 0 {
			return true
		}
		step := c.pollInterval
		if remaining < step {
			step = remaining
		}
		if step <= 0 {
			step = time.Millisecond
		}
		if !c.Sleep(ctx, step) {
			return false
		}
	}
}

func (c *systemClock) Sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

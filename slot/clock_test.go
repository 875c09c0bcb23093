package slot

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlotMath(t *testing.T) {
	c := NewClock(30*time.Second, 200*time.Millisecond)

	assert.EqualValues(t, 0, c.SlotOf(0))
	assert.EqualValues(t, 0, c.SlotOf(29999))
	assert.EqualValues(t, 1, c.SlotOf(30000))
	assert.EqualValues(t, 3, c.SlotOf(90000))
	assert.EqualValues(t, 90000, c.StartOf(3))

	now := c.Now()
	assert.GreaterOrEqual(t, c.CurrentSlot(), c.SlotOf(now))
}

func TestWaitForSlot(t *testing.T) {
	c := NewClock(50*time.Millisecond, 10*time.Millisecond)

	next := c.CurrentSlot() + 1
	require.True(t, c.WaitForSlot(context.Background(), next))
	assert.GreaterOrEqual(t, c.Now(), c.StartOf(next))

	// 已经过去的slot不等待
	require.True(t, c.WaitForSlot(context.Background(), next-1))
}

func TestWaitForSlotCancelled(t *testing.T) {
	c := NewClock(time.Hour, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	assert.False(t, c.WaitForSlot(ctx, c.CurrentSlot()+1))
}

func TestSleepCancelled(t *testing.T) {
	c := NewClock(time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, c.Sleep(ctx, 50*time.Millisecond))
	assert.True(t, c.Sleep(context.Background(), time.Millisecond))
}

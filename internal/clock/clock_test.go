package clock

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
)

func TestOffsetClock_Sync(t *testing.T) {
	local := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	fake := clockwork.NewFakeClockAt(local)
	c := NewOffsetClock(fake)

	assert.False(t, c.Synced())
	assert.Equal(t, local, c.Now())

	server := local.Add(90 * time.Second)
	offset := c.Sync(server)

	assert.True(t, c.Synced())
	assert.Equal(t, 90*time.Second, offset)
	assert.Equal(t, server, c.Now())

	fake.Advance(10 * time.Second)
	assert.Equal(t, server.Add(10*time.Second), c.Now())
}

func TestOffsetClock_NegativeOffset(t *testing.T) {
	local := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	fake := clockwork.NewFakeClockAt(local)
	c := NewOffsetClock(fake)

	c.Sync(local.Add(-3 * time.Minute))
	assert.Equal(t, -3*time.Minute, c.Offset())
	assert.Equal(t, local.Add(-3*time.Minute), c.Now())
}

func TestOffsetClock_ResyncReplacesOffset(t *testing.T) {
	local := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	fake := clockwork.NewFakeClockAt(local)
	c := NewOffsetClock(fake)

	c.Sync(local.Add(time.Hour))
	c.Sync(local.Add(2 * time.Second))
	assert.Equal(t, 2*time.Second, c.Offset())
}

func TestNewOffsetClock_DefaultsToReal(t *testing.T) {
	c := NewOffsetClock(nil)
	assert.WithinDuration(t, time.Now(), c.Now(), time.Second)
}

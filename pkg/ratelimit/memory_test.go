package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }
func newTestLimiter(c *clock) *MemoryLimiter {
	l := NewMemoryLimiter(time.Second, 2)
	l.now = c.now
	return l
}

func TestMemoryLimiter_BurstThenRefill(t *testing.T) {
	c := &clock{t: time.Unix(1000, 0)}
	l := newTestLimiter(c)

	assert.True(t, l.Allow("p1"))
	assert.True(t, l.Allow("p1"))
	assert.False(t, l.Allow("p1"))
	assert.True(t, l.Allow("p2"), "keys have separate buckets")

	c.advance(1500 * time.Millisecond)
	assert.True(t, l.Allow("p1"))
	assert.False(t, l.Allow("p1"))

	// The half second carried over counts toward the next token.
	c.advance(500 * time.Millisecond)
	assert.True(t, l.Allow("p1"))
}

func TestMemoryLimiter_RefillIsCapped(t *testing.T) {
	c := &clock{t: time.Unix(1000, 0)}
	l := newTestLimiter(c)
	l.Allow("p1")

	c.advance(time.Hour)

	assert.True(t, l.Allow("p1"))
	assert.True(t, l.Allow("p1"))
	assert.False(t, l.Allow("p1"))
}

func TestMemoryLimiter_SweepDropsIdleBuckets(t *testing.T) {
	c := &clock{t: time.Unix(1000, 0)}
	l := newTestLimiter(c)
	l.Allow("p1")
	c.advance(time.Second)
	l.Allow("p2")

	c.advance(time.Second)
	l.sweep()

	assert.Equal(t, 1, l.size())
}

func TestMemoryLimiter_RunStopsOnCancel(t *testing.T) {
	l := NewMemoryLimiter(time.Second, 1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		l.Run(ctx, time.Millisecond)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

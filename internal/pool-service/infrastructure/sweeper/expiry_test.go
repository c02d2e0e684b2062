package sweeper

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"ride-pool/pkg/logger"
)

type fakePurger struct {
	mu    sync.Mutex
	calls []time.Time
	err   error
}

func (f *fakePurger) PurgeExpired(_ context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, now)
	return 2, f.err
}

func (f *fakePurger) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestSweeper_PurgesOnEveryTick(t *testing.T) {
	purger := &fakePurger{}
	s := New(purger, 20*time.Millisecond, logger.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 70*time.Millisecond)
	defer cancel()
	s.Start(ctx)

	assert.GreaterOrEqual(t, purger.count(), 2)
}

func TestSweeper_KeepsRunningAfterError(t *testing.T) {
	purger := &fakePurger{err: errors.New("db down")}
	s := New(purger, 20*time.Millisecond, logger.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 70*time.Millisecond)
	defer cancel()
	s.Start(ctx)

	assert.GreaterOrEqual(t, purger.count(), 2)
}

func TestSweeper_PassesCurrentTime(t *testing.T) {
	purger := &fakePurger{}
	s := New(purger, time.Hour, logger.NewNop())
	fixed := time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	s.tick(context.Background())

	assert.Equal(t, []time.Time{fixed}, purger.calls)
}

func TestSweeper_StopsOnContextCancel(t *testing.T) {
	s := New(&fakePurger{}, time.Hour, logger.NewNop())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop on context cancel")
	}
}

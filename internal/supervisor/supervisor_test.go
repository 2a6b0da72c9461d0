package supervisor

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestRegisterStartsWorker(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var ran int32
	s := New(zap.NewNop(), nil)
	s.Register(ctx, "w1", func(ctx context.Context, heartbeat func()) error {
		atomic.StoreInt32(&ran, 1)
		heartbeat()
		<-ctx.Done()
		return ctx.Err()
	})

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&ran) == 1 }, time.Second, 10*time.Millisecond)
}

func TestHungWorkerIsRespawned(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var starts int32
	s := New(zap.NewNop(), nil)
	s.Register(ctx, "w1", func(ctx context.Context, heartbeat func()) error {
		atomic.AddInt32(&starts, 1)
		// Never calls heartbeat again after the initial one recorded at
		// registration; blocks until cancelled to simulate a hang.
		<-ctx.Done()
		return ctx.Err()
	})

	s.mu.Lock()
	w := s.workers["w1"]
	w.lastBeat = time.Now().Add(-HangTimeout - time.Second)
	s.mu.Unlock()

	s.checkHangs(ctx)

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&starts) >= 2 }, time.Second, 10*time.Millisecond)
}

func TestRespawnBudgetEscalates(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var escalated int32
	s := New(zap.NewNop(), func(name string) { atomic.StoreInt32(&escalated, 1) })
	s.Register(ctx, "w1", func(ctx context.Context, heartbeat func()) error {
		<-ctx.Done()
		return ctx.Err()
	})

	now := time.Now()
	s.mu.Lock()
	w := s.workers["w1"]
	s.mu.Unlock()

	for i := 0; i < MaxRespawnsInWindow+1; i++ {
		s.respawn(ctx, w, now)
	}

	assert.Equal(t, int32(1), atomic.LoadInt32(&escalated))
}

func TestShutdownCancelsAllWorkers(t *testing.T) {
	ctx := context.Background()
	s := New(zap.NewNop(), nil)

	done := make(chan struct{})
	s.Register(ctx, "w1", func(ctx context.Context, heartbeat func()) error {
		<-ctx.Done()
		close(done)
		return ctx.Err()
	})

	s.Shutdown()
	assert.Eventually(t, func() bool {
		select {
		case <-done:
			return true
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)
}

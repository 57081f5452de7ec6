package stats

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/courtside/go/internal/games"
	"github.com/mcdev12/courtside/go/internal/livegame/session"
	"github.com/mcdev12/courtside/go/internal/models"
)

func fastConfig() ForwarderConfig {
	return ForwarderConfig{
		Workers:         1,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		MaxElapsed:      time.Second,
	}
}

func startForwarder(t *testing.T, target Target, cfg ForwarderConfig) *Forwarder {
	t.Helper()
	f := NewForwarder(target, cfg)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.Start(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return f
}

func newStore(t *testing.T) *games.MemoryStore {
	t.Helper()
	s, err := games.NewMemoryStore(games.Fixtures{
		Teams:   []models.Team{{ID: "home"}},
		Players: []models.Player{{ID: "P1", TeamID: "home"}},
	})
	require.NoError(t, err)
	return s
}

func points(s *games.MemoryStore, id string) int {
	p, _ := s.Player(id)
	return p.Points
}

func TestForwarder_DeliversToStore(t *testing.T) {
	store := newStore(t)
	f := startForwarder(t, StoreTarget(store), fastConfig())

	f.Forward(session.PlayerStatDelta{EventID: "e1", GameID: "g1", PlayerID: "P1", PointsAdded: 3})
	f.Forward(session.PlayerStatDelta{EventID: "e2", GameID: "g1", PlayerID: "P1", PointsAdded: 2})

	require.Eventually(t, func() bool { return points(store, "P1") == 5 }, time.Second, 5*time.Millisecond)
}

func TestForwarder_ReplayedEventCreditedOnce(t *testing.T) {
	store := newStore(t)
	f := startForwarder(t, StoreTarget(store), fastConfig())

	d := session.PlayerStatDelta{EventID: "e1", GameID: "g1", PlayerID: "P1", PointsAdded: 3}
	f.Forward(d)
	f.Forward(d)

	require.Eventually(t, func() bool { return f.Pending() == 0 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 3, points(store, "P1"))
}

func TestForwarder_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	var mu sync.Mutex
	var delivered []string

	target := TargetFunc(func(ctx context.Context, d session.PlayerStatDelta) error {
		if calls.Add(1) < 3 {
			return session.ErrTransientStorage
		}
		mu.Lock()
		delivered = append(delivered, d.EventID)
		mu.Unlock()
		return nil
	})
	f := startForwarder(t, target, fastConfig())

	f.Forward(session.PlayerStatDelta{EventID: "e1", PlayerID: "P1", PointsAdded: 1})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(delivered) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(3), calls.Load())
}

func TestForwarder_ExhaustedRetryBudgetRequeues(t *testing.T) {
	var calls atomic.Int32
	var delivered atomic.Int32
	target := TargetFunc(func(ctx context.Context, d session.PlayerStatDelta) error {
		// fails across several retry rounds before the store recovers
		if calls.Add(1) <= 12 {
			return session.ErrTransientStorage
		}
		delivered.Add(1)
		return nil
	})
	cfg := ForwarderConfig{
		Workers:         1,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		MaxElapsed:      5 * time.Millisecond,
	}
	f := startForwarder(t, target, cfg)

	f.Forward(session.PlayerStatDelta{EventID: "e1", PlayerID: "P1", PointsAdded: 2})

	require.Eventually(t, func() bool { return delivered.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, f.Pending())
	assert.Greater(t, calls.Load(), int32(12))
}

func TestForwarder_UnknownPlayerIsNotRetried(t *testing.T) {
	store := newStore(t)
	var calls atomic.Int32
	target := TargetFunc(func(ctx context.Context, d session.PlayerStatDelta) error {
		calls.Add(1)
		return StoreTarget(store).Deliver(ctx, d)
	})
	f := startForwarder(t, target, fastConfig())

	f.Forward(session.PlayerStatDelta{EventID: "e1", PlayerID: "ghost", PointsAdded: 2})
	f.Forward(session.PlayerStatDelta{EventID: "e2", PlayerID: "P1", PointsAdded: 2})

	require.Eventually(t, func() bool { return points(store, "P1") == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(2), calls.Load())
}

func TestForwarder_ForwardDoesNotBlock(t *testing.T) {
	block := make(chan struct{})
	target := TargetFunc(func(ctx context.Context, d session.PlayerStatDelta) error {
		select {
		case <-block:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	f := startForwarder(t, target, fastConfig())
	defer close(block)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			f.Forward(session.PlayerStatDelta{EventID: "e", PlayerID: "P1", PointsAdded: 1})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Forward blocked on a stalled target")
	}
	assert.GreaterOrEqual(t, f.Pending(), 999)
}

func TestStoreTarget_PermanentOnNotFound(t *testing.T) {
	err := StoreTarget(newStore(t)).Deliver(context.Background(), session.PlayerStatDelta{EventID: "e1", PlayerID: "ghost", PointsAdded: 1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, session.ErrNotFound))
}

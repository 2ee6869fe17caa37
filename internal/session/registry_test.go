package session

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestRegistry(timeout time.Duration) (*Registry, *time.Time) {
	r := NewRegistry(timeout, 0)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	r.nowFunc = func() time.Time { return now }
	return r, &now
}

func TestTouch_CreatesThenIncrements(t *testing.T) {
	r, now := newTestRegistry(time.Hour)

	s1 := r.Touch("79001234567")
	require.Equal(t, 1, s1.TurnCount)
	require.Equal(t, *now, s1.LastActivityAt)

	*now = now.Add(time.Minute)
	s2 := r.Touch("79001234567")
	require.Same(t, s1, s2, "a second touch within the timeout must not create a new session")
	require.Equal(t, 2, s2.TurnCount)
	require.Equal(t, *now, s2.LastActivityAt)
	require.Equal(t, 1, r.Len())
}

func TestTouch_LastActivityMonotone(t *testing.T) {
	r, now := newTestRegistry(time.Hour)

	s := r.Touch("user")
	first := s.LastActivityAt

	// clock goes backwards (NTP step); last activity must not regress
	*now = now.Add(-time.Minute)
	s = r.Touch("user")
	require.False(t, s.LastActivityAt.Before(first))
}

func TestTouch_ExpiredSessionIsFresh(t *testing.T) {
	r, now := newTestRegistry(time.Hour)

	s := r.Touch("user")
	s.RecordMatch(42)
	require.True(t, s.MarkGreeted())

	*now = now.Add(2 * time.Hour)
	fresh := r.Touch("user")
	require.NotSame(t, s, fresh)
	require.Equal(t, 1, fresh.TurnCount)
	require.Zero(t, fresh.LastMatched(), "expired session must not carry over the last matched FAQ")
	require.False(t, fresh.Greeted())
}

func TestMarkGreeted_ExactlyOnce(t *testing.T) {
	r := NewRegistry(time.Hour, 0)
	s := r.Touch("user")

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		flips int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.MarkGreeted() {
				mu.Lock()
				flips++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, flips, "only one concurrent caller may win the greeting")
	require.True(t, s.Greeted())
}

func TestGet_NeverCreates(t *testing.T) {
	r, now := newTestRegistry(time.Hour)

	_, ok := r.Get("nobody")
	require.False(t, ok)
	require.Equal(t, 0, r.Len())

	r.Touch("user")
	s, ok := r.Get("user")
	require.True(t, ok)
	require.Equal(t, 1, s.TurnCount, "Get must not bump the turn count")

	*now = now.Add(2 * time.Hour)
	_, ok = r.Get("user")
	require.False(t, ok, "expired session must be reported as absent")
}

func TestSweep_EvictsOnlyExpired(t *testing.T) {
	r, now := newTestRegistry(time.Hour)

	r.Touch("old")
	*now = now.Add(45 * time.Minute)
	r.Touch("recent")

	*now = now.Add(30 * time.Minute) // "old" is 75m stale, "recent" 30m
	require.Equal(t, 1, r.Sweep(*now))
	require.Equal(t, 1, r.Len())

	_, ok := r.Get("recent")
	require.True(t, ok)
}

func TestRateLimit(t *testing.T) {
	r := NewRegistry(time.Hour, 2)
	s := r.Touch("user")

	require.True(t, s.Allow())
	require.True(t, s.Allow())
	require.False(t, s.Allow(), "third message within the hour must be limited")
}

func TestRateLimit_Disabled(t *testing.T) {
	r := NewRegistry(time.Hour, 0)
	s := r.Touch("user")
	for i := 0; i < 100; i++ {
		require.True(t, s.Allow())
	}
}

func TestTouch_ConcurrentUsers(t *testing.T) {
	r := NewRegistry(time.Hour, 0)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			userID := fmt.Sprintf("user-%d", n%10)
			for j := 0; j < 20; j++ {
				r.Touch(userID)
			}
		}(i)
	}
	wg.Wait()

	require.Equal(t, 10, r.Len(), "one live session per user id")

	stats := r.Stats()
	require.Equal(t, 10, stats["active_sessions"])
	require.Equal(t, 1000, stats["total_turns"])
}

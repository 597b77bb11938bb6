package sweeper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/auditlog/internal/config"
	"github.com/gyaneshwarpardhi/auditlog/internal/event"
	"github.com/gyaneshwarpardhi/auditlog/internal/store"
)

var now = time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

func seedAt(t *testing.T, st *store.MemoryStore, clock *time.Time, at time.Time, msg string) {
	t.Helper()
	*clock = at
	_, err := st.Append(context.Background(), &event.Event{Type: "t", Message: msg, Severity: event.SeverityInfo})
	require.NoError(t, err)
}

func newSweeper(t *testing.T, days int) (*Sweeper, *store.MemoryStore, *time.Time) {
	t.Helper()
	clock := now
	st := store.NewMemory(store.WithClock(func() time.Time { return clock }))
	cfg := config.Default()
	cfg.Retention.Days = days
	s := New(st, config.Static{C: cfg}, nil)
	s.now = func() time.Time { return now }
	return s, st, &clock
}

func TestSweepRemovesExpired(t *testing.T) {
	s, st, clock := newSweeper(t, 1)
	seedAt(t, st, clock, now.Add(-48*time.Hour), "two days old")
	seedAt(t, st, clock, now.Add(-time.Hour), "fresh")
	seedAt(t, st, clock, now, "now")

	n, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	left, err := st.Find(context.Background(), store.Filter{}, 10, 0)
	require.NoError(t, err)
	require.Len(t, left, 2)
	for _, e := range left {
		assert.NotEqual(t, "two days old", e.Message)
	}
}

func TestSweepIsIdempotent(t *testing.T) {
	s, st, clock := newSweeper(t, 30)
	seedAt(t, st, clock, now.Add(-31*24*time.Hour), "old")

	first, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, first)

	second, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 0, second)
}

func TestSweepUnavailableStore(t *testing.T) {
	s, st, _ := newSweeper(t, 30)
	st.Drop()
	_, err := s.Sweep(context.Background())
	assert.True(t, errors.Is(err, store.ErrUnavailable))
}

func TestCutoffFollowsLiveConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Retention.Days = 7
	s := New(store.NewMemory(), config.Static{C: cfg}, nil)
	s.now = func() time.Time { return now }
	assert.Equal(t, now.Add(-7*24*time.Hour), s.Cutoff())
}

func TestServeSweepsOnStartAndStops(t *testing.T) {
	s, st, clock := newSweeper(t, 1)
	seedAt(t, st, clock, now.Add(-72*time.Hour), "old")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()

	require.Eventually(t, func() bool {
		n, err := st.Count(context.Background(), store.Filter{})
		return err == nil && n == 0
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/auditlog/internal/config"
	"github.com/gyaneshwarpardhi/auditlog/internal/event"
)

// fakeClock hands out a settable time.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

var epoch = time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)

type factory func(t *testing.T, clock *fakeClock) Store

func backends() map[string]factory {
	return map[string]factory{
		"memory": func(t *testing.T, clock *fakeClock) Store {
			return NewMemory(WithClock(clock.Now))
		},
		"sqlite": func(t *testing.T, clock *fakeClock) Store {
			s, err := Open(context.Background(), config.StoreConf{
				Driver:      "sqlite",
				DSN:         filepath.Join(t.TempDir(), "audit.db"),
				AutoMigrate: true,
			}, WithClock(clock.Now))
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}
}

func appendAt(t *testing.T, s Store, clock *fakeClock, at time.Time, typ, msg string, sev event.Severity, actor string) event.Event {
	t.Helper()
	clock.Set(at)
	e := event.Event{Type: typ, Message: msg, Severity: sev, SourceAddress: "192.0.2.1", Actor: actor}
	_, err := s.Append(context.Background(), &e)
	require.NoError(t, err)
	return e
}

func TestStoreConformance(t *testing.T) {
	for name, newStore := range backends() {
		t.Run(name, func(t *testing.T) {
			t.Run("append assigns increasing ids and clock time", func(t *testing.T) {
				clock := &fakeClock{now: epoch}
				s := newStore(t, clock)
				a := appendAt(t, s, clock, epoch, "login", "one", event.SeverityInfo, "alice")
				b := appendAt(t, s, clock, epoch, "login", "two", event.SeverityInfo, "alice")
				assert.Greater(t, b.ID, a.ID)
				assert.True(t, a.Timestamp.Equal(epoch))
			})

			t.Run("find orders newest first with id tie-break", func(t *testing.T) {
				clock := &fakeClock{now: epoch}
				s := newStore(t, clock)
				old := appendAt(t, s, clock, epoch.Add(-time.Hour), "a", "old", event.SeverityInfo, "x")
				tie1 := appendAt(t, s, clock, epoch, "a", "tie1", event.SeverityInfo, "x")
				tie2 := appendAt(t, s, clock, epoch, "a", "tie2", event.SeverityInfo, "x")

				got, err := s.Find(context.Background(), Filter{}, 10, 0)
				require.NoError(t, err)
				require.Len(t, got, 3)
				assert.Equal(t, []int64{tie2.ID, tie1.ID, old.ID}, []int64{got[0].ID, got[1].ID, got[2].ID})
				assert.Equal(t, "192.0.2.1", got[0].SourceAddress)
				assert.Equal(t, event.SeverityInfo, got[0].Severity)
			})

			t.Run("filters combine as a conjunction", func(t *testing.T) {
				clock := &fakeClock{now: epoch}
				s := newStore(t, clock)
				appendAt(t, s, clock, epoch, "login_failed", "user alice", event.SeverityWarning, "Guest")
				appendAt(t, s, clock, epoch, "login_failed", "user bob", event.SeverityError, "Guest")
				appendAt(t, s, clock, epoch, "file_changed", "wp-config.php", event.SeverityWarning, "admin")
				ctx := context.Background()

				cases := []struct {
					name string
					f    Filter
					want int64
				}{
					{"type", Filter{Type: "login_failed"}, 2},
					{"severity", Filter{Severity: "warning"}, 2},
					{"type and severity", Filter{Type: "login_failed", Severity: "warning"}, 1},
					{"search message case-insensitive", Filter{Search: "ALICE"}, 1},
					{"search actor", Filter{Search: "admin"}, 1},
					{"search type", Filter{Search: "changed"}, 1},
					{"unknown severity", Filter{Severity: "critical"}, 0},
				}
				for _, tc := range cases {
					n, err := s.Count(ctx, tc.f)
					require.NoError(t, err, tc.name)
					assert.Equal(t, tc.want, n, tc.name)
					items, err := s.Find(ctx, tc.f, 10, 0)
					require.NoError(t, err, tc.name)
					assert.Len(t, items, int(tc.want), tc.name)
				}
			})

			t.Run("search folds non-ascii case", func(t *testing.T) {
				clock := &fakeClock{now: epoch}
				s := newStore(t, clock)
				appendAt(t, s, clock, epoch, "login_failed", "Échec de connexion", event.SeverityWarning, "Ørjan")
				appendAt(t, s, clock, epoch, "login", "connexion réussie", event.SeverityInfo, "x")

				for _, term := range []string{"échec", "ÉCHEC", "ørjan", "RÉUSSIE"} {
					n, err := s.Count(context.Background(), Filter{Search: term})
					require.NoError(t, err, term)
					assert.EqualValues(t, 1, n, term)
				}
			})

			t.Run("search escapes like metacharacters", func(t *testing.T) {
				clock := &fakeClock{now: epoch}
				s := newStore(t, clock)
				appendAt(t, s, clock, epoch, "t", "100% done", event.SeverityInfo, "x")
				appendAt(t, s, clock, epoch, "t", "1000 done", event.SeverityInfo, "x")
				appendAt(t, s, clock, epoch, "t", "a_b", event.SeverityInfo, "x")
				appendAt(t, s, clock, epoch, "t", "axb", event.SeverityInfo, "x")

				n, err := s.Count(context.Background(), Filter{Search: "0%"})
				require.NoError(t, err)
				assert.EqualValues(t, 1, n)
				n, err = s.Count(context.Background(), Filter{Search: "a_b"})
				require.NoError(t, err)
				assert.EqualValues(t, 1, n)
			})

			t.Run("time bounds are inclusive from and exclusive to", func(t *testing.T) {
				clock := &fakeClock{now: epoch}
				s := newStore(t, clock)
				appendAt(t, s, clock, epoch.Add(-time.Second), "t", "before", event.SeverityInfo, "x")
				appendAt(t, s, clock, epoch, "t", "at from", event.SeverityInfo, "x")
				appendAt(t, s, clock, epoch.Add(time.Hour), "t", "at to", event.SeverityInfo, "x")

				items, err := s.Find(context.Background(), Filter{From: epoch, To: epoch.Add(time.Hour)}, 10, 0)
				require.NoError(t, err)
				require.Len(t, items, 1)
				assert.Equal(t, "at from", items[0].Message)
			})

			t.Run("pagination", func(t *testing.T) {
				clock := &fakeClock{now: epoch}
				s := newStore(t, clock)
				for i := 0; i < 5; i++ {
					appendAt(t, s, clock, epoch.Add(time.Duration(i)*time.Minute), "t", "m", event.SeverityInfo, "x")
				}
				page, err := s.Find(context.Background(), Filter{}, 2, 4)
				require.NoError(t, err)
				assert.Len(t, page, 1)
				beyond, err := s.Find(context.Background(), Filter{}, 2, 10)
				require.NoError(t, err)
				assert.Empty(t, beyond)
			})

			t.Run("delete older than is idempotent", func(t *testing.T) {
				clock := &fakeClock{now: epoch}
				s := newStore(t, clock)
				appendAt(t, s, clock, epoch.Add(-48*time.Hour), "t", "old", event.SeverityInfo, "x")
				appendAt(t, s, clock, epoch, "t", "new", event.SeverityInfo, "x")

				ctx := context.Background()
				n, err := s.DeleteOlderThan(ctx, epoch.Add(-24*time.Hour))
				require.NoError(t, err)
				assert.EqualValues(t, 1, n)
				n, err = s.DeleteOlderThan(ctx, epoch.Add(-24*time.Hour))
				require.NoError(t, err)
				assert.EqualValues(t, 0, n)

				left, err := s.Find(ctx, Filter{}, 10, 0)
				require.NoError(t, err)
				require.Len(t, left, 1)
				assert.Equal(t, "new", left[0].Message)
			})

			t.Run("migrate is idempotent", func(t *testing.T) {
				s := newStore(t, &fakeClock{now: epoch})
				require.NoError(t, s.Migrate(context.Background()))
				require.NoError(t, s.Migrate(context.Background()))
				assert.True(t, s.Exists(context.Background()))
			})
		})
	}
}

func TestSQLiteUnprovisioned(t *testing.T) {
	ctx := context.Background()
	s, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "bare.db"))
	require.NoError(t, err)
	defer s.Close()

	assert.False(t, s.Exists(ctx))
	_, err = s.Append(ctx, &event.Event{Type: "t", Severity: event.SeverityInfo})
	assert.ErrorIs(t, err, ErrUnavailable)
	_, err = s.Count(ctx, Filter{})
	assert.ErrorIs(t, err, ErrUnavailable)

	require.NoError(t, s.Migrate(ctx))
	assert.True(t, s.Exists(ctx))
}

func TestMemoryDrop(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	_, err := m.Append(ctx, &event.Event{Type: "t"})
	require.NoError(t, err)

	m.Drop()
	assert.False(t, m.Exists(ctx))
	_, err = m.Append(ctx, &event.Event{Type: "t"})
	assert.ErrorIs(t, err, ErrUnavailable)
	_, err = m.DeleteOlderThan(ctx, time.Now())
	assert.ErrorIs(t, err, ErrUnavailable)

	require.NoError(t, m.Migrate(ctx))
	n, err := m.Count(ctx, Filter{})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), config.StoreConf{Driver: "oracle"})
	assert.Error(t, err)
}

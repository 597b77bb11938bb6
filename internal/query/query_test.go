package query

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/auditlog/internal/config"
	"github.com/gyaneshwarpardhi/auditlog/internal/event"
	"github.com/gyaneshwarpardhi/auditlog/internal/store"
)

type stepClock struct{ now time.Time }

func (c *stepClock) Now() time.Time { return c.now }

func seed(t *testing.T, s store.Store, e event.Event) event.Event {
	t.Helper()
	_, err := s.Append(context.Background(), &e)
	require.NoError(t, err)
	return e
}

func TestRunPagination(t *testing.T) {
	st := store.NewMemory()
	for i := 0; i < 45; i++ {
		seed(t, st, event.Event{Type: "t", Message: fmt.Sprint(i), Severity: event.SeverityInfo})
	}
	eng := New(st, nil, nil)
	ctx := context.Background()

	res := eng.Run(ctx, Params{})
	assert.EqualValues(t, 45, res.Total)
	assert.Equal(t, 3, res.TotalPages)
	assert.Equal(t, 1, res.Page)
	assert.Equal(t, DefaultPerPage, res.PerPage)
	assert.Len(t, res.Items, 20)

	last := eng.Run(ctx, Params{Page: 3})
	assert.Len(t, last.Items, 5)

	beyond := eng.Run(ctx, Params{Page: 4})
	assert.Empty(t, beyond.Items)
	assert.NotNil(t, beyond.Items)
	assert.EqualValues(t, 45, beyond.Total)
	assert.Equal(t, 3, beyond.TotalPages)
}

func TestRunClamps(t *testing.T) {
	eng := New(store.NewMemory(), nil, nil)
	cases := []struct {
		name        string
		in          Params
		wantPage    int
		wantPerPage int
	}{
		{"negative page", Params{Page: -3}, 1, DefaultPerPage},
		{"huge per page", Params{PerPage: 500}, 1, MaxPerPage},
		{"negative per page", Params{PerPage: -1}, 1, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := eng.Run(context.Background(), tc.in)
			assert.Equal(t, tc.wantPage, res.Page)
			assert.Equal(t, tc.wantPerPage, res.PerPage)
		})
	}
	assert.Equal(t, 1, ClampPerPage(0))
	assert.Equal(t, 100, ClampPerPage(101))
}

func TestEmptyStoreHasOnePage(t *testing.T) {
	res := New(store.NewMemory(), nil, nil).Run(context.Background(), Params{})
	assert.EqualValues(t, 0, res.Total)
	assert.Equal(t, 1, res.TotalPages)
	assert.NotNil(t, res.Items)
	assert.False(t, res.Degraded)
}

func TestUnavailableStoreIsDegraded(t *testing.T) {
	st := store.NewMemory()
	st.Drop()
	res := New(st, nil, nil).Run(context.Background(), Params{})
	assert.True(t, res.Degraded)
	assert.Empty(t, res.Items)
	assert.Equal(t, 1, res.TotalPages)
}

func TestFilterByTypeAndSearch(t *testing.T) {
	st := store.NewMemory()
	want := seed(t, st, event.Event{Type: "login_failed", Message: "user alice", Severity: event.SeverityWarning, Actor: "Guest"})
	seed(t, st, event.Event{Type: "login_failed", Message: "user bob", Severity: event.SeverityWarning, Actor: "Guest"})
	seed(t, st, event.Event{Type: "file_changed", Message: "user alice edited", Severity: event.SeverityInfo, Actor: "admin"})

	res := New(st, nil, nil).Run(context.Background(), Params{Type: "login_failed", Search: "Alice"})
	require.Len(t, res.Items, 1)
	assert.Equal(t, want.ID, res.Items[0].ID)
}

func TestSeverityFilter(t *testing.T) {
	st := store.NewMemory()
	seed(t, st, event.Event{Type: "login_failed", Message: "user alice", Severity: event.SeverityWarning})
	eng := New(st, nil, nil)

	assert.Len(t, eng.Run(context.Background(), Params{Severity: "warning"}).Items, 1)
	assert.Empty(t, eng.Run(context.Background(), Params{Severity: "error"}).Items)
	assert.Empty(t, eng.Run(context.Background(), Params{Severity: "critical"}).Items)
}

func TestDateBoundsCoverWholeDays(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	clock := &stepClock{}
	st := store.NewMemory(store.WithClock(clock.Now))
	at := func(s string) {
		ts, err := time.ParseInLocation("2006-01-02 15:04:05", s, loc)
		require.NoError(t, err)
		clock.now = ts
		seed(t, st, event.Event{Type: "t", Message: s, Severity: event.SeverityInfo})
	}
	at("2025-03-09 23:59:59")
	at("2025-03-10 00:00:00")
	at("2025-03-11 23:59:59")
	at("2025-03-12 00:00:00")

	cfg := config.Default()
	cfg.Store.Timezone = "America/New_York"
	eng := New(st, config.Static{C: cfg}, nil)

	res := eng.Run(context.Background(), Params{DateFrom: "2025-03-10", DateTo: "2025-03-11"})
	require.Len(t, res.Items, 2)
	assert.Equal(t, "2025-03-11 23:59:59", res.Items[0].Message)
	assert.Equal(t, "2025-03-10 00:00:00", res.Items[1].Message)

	ignored := eng.Run(context.Background(), Params{DateFrom: "10/03/2025"})
	assert.Len(t, ignored.Items, 4)
}

func TestSummary(t *testing.T) {
	st := store.NewMemory()
	for _, sev := range []event.Severity{event.SeverityInfo, event.SeverityInfo, event.SeverityError} {
		seed(t, st, event.Event{Type: "t", Severity: sev})
	}
	sum := New(st, nil, nil).Summary(context.Background(), 2)
	assert.EqualValues(t, 3, sum.Total)
	assert.EqualValues(t, 2, sum.BySeverity[event.SeverityInfo])
	assert.EqualValues(t, 0, sum.BySeverity[event.SeverityWarning])
	assert.Len(t, sum.Recent, 2)
}

// Property: N writes with no filters and perPage >= N return exactly N items,
// newest first with id descending on ties.
func TestOrderingProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("results are sorted by timestamp then id, descending", prop.ForAll(
		func(offsets []int) bool {
			base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
			clock := &stepClock{}
			st := store.NewMemory(store.WithClock(clock.Now))
			for _, off := range offsets {
				clock.now = base.Add(time.Duration(off) * time.Second)
				e := event.Event{Type: "t", Severity: event.SeverityInfo}
				if _, err := st.Append(context.Background(), &e); err != nil {
					return false
				}
			}
			res := New(st, nil, nil).Run(context.Background(), Params{PerPage: MaxPerPage})
			if len(res.Items) != len(offsets) {
				return false
			}
			for i := 1; i < len(res.Items); i++ {
				prev, cur := res.Items[i-1], res.Items[i]
				if cur.Timestamp.After(prev.Timestamp) {
					return false
				}
				if cur.Timestamp.Equal(prev.Timestamp) && cur.ID > prev.ID {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(30, gen.IntRange(0, 5)),
	))

	properties.TestingRun(t)
}

package writer

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/auditlog/internal/auth"
	"github.com/gyaneshwarpardhi/auditlog/internal/clientip"
	"github.com/gyaneshwarpardhi/auditlog/internal/event"
	"github.com/gyaneshwarpardhi/auditlog/internal/store"
)

type recordingBus struct {
	mu     sync.Mutex
	events []event.Event
	full   bool
}

func (b *recordingBus) Publish(e event.Event) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.full {
		return false
	}
	b.events = append(b.events, e)
	return true
}

func TestWriteDefaults(t *testing.T) {
	st := store.NewMemory()
	bus := &recordingBus{}
	w := New(st, bus, nil, nil)

	rec, err := w.Write(context.Background(), event.Input{Type: " login ", Message: "m", Severity: "CRITICAL"}, Origin{})
	require.NoError(t, err)
	assert.False(t, rec.Degraded)
	assert.NotZero(t, rec.ID)
	assert.Equal(t, "login", rec.Event.Type)
	assert.Equal(t, event.SeverityInfo, rec.Event.Severity)
	assert.Equal(t, event.NullAddress, rec.Event.SourceAddress)
	assert.Equal(t, event.AnonymousActor, rec.Event.Actor)
	assert.False(t, rec.Event.Timestamp.IsZero())

	require.Len(t, bus.events, 1)
	assert.Equal(t, rec.ID, bus.events[0].ID)
}

func TestWriteMissingType(t *testing.T) {
	w := New(store.NewMemory(), nil, nil, nil)
	_, err := w.Write(context.Background(), event.Input{Type: "   "}, Origin{})
	assert.ErrorIs(t, err, ErrMissingType)
}

func TestWriteUnavailableStoreIsSilent(t *testing.T) {
	st := store.NewMemory()
	st.Drop()
	bus := &recordingBus{}
	w := New(st, bus, nil, nil)

	rec, err := w.Write(context.Background(), event.Input{Type: "login"}, Origin{})
	require.NoError(t, err)
	assert.True(t, rec.Degraded)
	assert.Empty(t, bus.events)
}

func TestWriteFullBusKeepsEvent(t *testing.T) {
	st := store.NewMemory()
	w := New(st, &recordingBus{full: true}, nil, nil)

	rec, err := w.Write(context.Background(), event.Input{Type: "login"}, Origin{})
	require.NoError(t, err)
	assert.False(t, rec.Degraded)
	n, err := st.Count(context.Background(), store.Filter{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestWriteRequestEnrichment(t *testing.T) {
	w := New(store.NewMemory(), nil, clientip.New([]string{"X-Forwarded-For", "remote_addr"}), nil)

	r := httptest.NewRequest("POST", "/events", nil)
	r.RemoteAddr = "10.0.0.1:5000"
	r.Header.Set("X-Forwarded-For", "198.51.100.7, 10.0.0.1")
	r = r.WithContext(auth.WithIdentity(r.Context(), auth.Identity{Actor: "alice", Role: "operator"}))

	rec, err := w.WriteRequest(r, event.Input{Type: "login_failed", Message: "user alice", Severity: "warning"})
	require.NoError(t, err)
	assert.Equal(t, "198.51.100.7", rec.Event.SourceAddress)
	assert.Equal(t, "alice", rec.Event.Actor)
	assert.Equal(t, event.SeverityWarning, rec.Event.Severity)
}

func TestWriteInvalidOriginAddress(t *testing.T) {
	w := New(store.NewMemory(), nil, nil, nil)
	rec, err := w.Write(context.Background(), event.Input{Type: "cli"}, Origin{Address: "localhost", Actor: "ops"})
	require.NoError(t, err)
	assert.Equal(t, event.NullAddress, rec.Event.SourceAddress)
	assert.Equal(t, "ops", rec.Event.Actor)
}

package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gyaneshwarpardhi/auditlog/internal/event"
)

// MemoryStore keeps events in process. It starts provisioned.
type MemoryStore struct {
	mu          sync.RWMutex
	events      []event.Event
	nextID      int64
	provisioned bool
	opts        options
}

var _ Store = (*MemoryStore)(nil)

// NewMemory returns an empty, provisioned MemoryStore.
func NewMemory(opts ...Option) *MemoryStore {
	return &MemoryStore{provisioned: true, opts: buildOptions(opts)}
}

// Drop discards all events and marks the table unprovisioned.
func (m *MemoryStore) Drop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = nil
	m.provisioned = false
}

// Migrate implements Store.
func (m *MemoryStore) Migrate(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.provisioned = true
	return nil
}

// Exists implements Store.
func (m *MemoryStore) Exists(context.Context) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.provisioned
}

// Append implements Store.
func (m *MemoryStore) Append(_ context.Context, e *event.Event) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.provisioned {
		return 0, ErrUnavailable
	}
	m.nextID++
	e.ID = m.nextID
	e.Timestamp = m.opts.stamp()
	m.events = append(m.events, *e)
	return e.ID, nil
}

// DeleteOlderThan implements Store.
func (m *MemoryStore) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.provisioned {
		return 0, ErrUnavailable
	}
	kept := m.events[:0]
	var deleted int64
	for _, e := range m.events {
		if e.Timestamp.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	m.events = kept
	return deleted, nil
}

// Find implements Store.
func (m *MemoryStore) Find(_ context.Context, f Filter, limit, offset int) ([]event.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.provisioned {
		return nil, ErrUnavailable
	}
	matched := m.filter(f)
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].Timestamp.Equal(matched[j].Timestamp) {
			return matched[i].Timestamp.After(matched[j].Timestamp)
		}
		return matched[i].ID > matched[j].ID
	})
	if offset >= len(matched) {
		return []event.Event{}, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], nil
}

// Count implements Store.
func (m *MemoryStore) Count(_ context.Context, f Filter) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.provisioned {
		return 0, ErrUnavailable
	}
	return int64(len(m.filter(f))), nil
}

// Close implements Store.
func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) filter(f Filter) []event.Event {
	search := strings.ToLower(f.Search)
	out := make([]event.Event, 0, len(m.events))
	for _, e := range m.events {
		if f.Type != "" && e.Type != f.Type {
			continue
		}
		if f.Severity != "" && string(e.Severity) != f.Severity {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(e.Message), search) &&
			!strings.Contains(strings.ToLower(e.Type), search) &&
			!strings.Contains(strings.ToLower(e.Actor), search) {
			continue
		}
		if !f.From.IsZero() && e.Timestamp.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && !e.Timestamp.Before(f.To) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Package store persists audit events.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gyaneshwarpardhi/auditlog/internal/config"
	"github.com/gyaneshwarpardhi/auditlog/internal/event"
)

// Table is the name of the event table in every SQL dialect.
const Table = "audit_events"

// ErrUnavailable reports that the event table is not provisioned.
var ErrUnavailable = errors.New("store: event table unavailable")

// Store is the durable event log.
type Store interface {
	// Append assigns ID and Timestamp to e and writes it atomically.
	Append(ctx context.Context, e *event.Event) (int64, error)
	// DeleteOlderThan removes events strictly older than cutoff.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	// Exists reports whether the event table is provisioned.
	Exists(ctx context.Context) bool
	// Find returns matching events, newest first (ties broken by id descending).
	Find(ctx context.Context, f Filter, limit, offset int) ([]event.Event, error)
	Count(ctx context.Context, f Filter) (int64, error)
	// Migrate provisions the event table. It is idempotent.
	Migrate(ctx context.Context) error
	Close() error
}

// Filter is a conjunction of optional predicates. Zero values match everything.
type Filter struct {
	Type     string
	Severity string
	// Search matches message, type or actor case-insensitively.
	Search string
	// From is inclusive, To is exclusive.
	From time.Time
	To   time.Time
}

// Option customizes a store.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the clock that stamps appended events.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// stamp returns the write timestamp at the precision every backend keeps.
func (o options) stamp() time.Time {
	return o.now().UTC().Truncate(time.Microsecond)
}

// Open selects a backend from conf and provisions it when auto_migrate is set.
func Open(ctx context.Context, conf config.StoreConf, opts ...Option) (Store, error) {
	var (
		s   Store
		err error
	)
	switch conf.Driver {
	case "memory":
		s = NewMemory(opts...)
	case "sqlite":
		s, err = OpenSQLite(ctx, conf.DSN, opts...)
	case "postgres":
		s, err = OpenPostgres(ctx, conf.DSN, opts...)
	default:
		return nil, fmt.Errorf("store: unknown driver %q", conf.Driver)
	}
	if err != nil {
		return nil, err
	}
	if conf.AutoMigrate {
		if err := s.Migrate(ctx); err != nil {
			s.Close()
			return nil, err
		}
	}
	return s, nil
}

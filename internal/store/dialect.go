package store

import (
	"errors"
	"strconv"
	"strings"

	"github.com/lib/pq"
)

// Dialect captures the SQL differences between supported databases.
type Dialect struct {
	Name         string
	schema       []string
	existsQuery  string
	numbered     bool
	// lower names a Unicode-aware lower-case function.
	lower        string
	missingTable func(error) bool
}

// SQLite is the dialect for modernc.org/sqlite.
var SQLite = Dialect{
	Name: "sqlite",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS audit_events (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			type           TEXT    NOT NULL,
			message        TEXT    NOT NULL DEFAULT '',
			severity       TEXT    NOT NULL DEFAULT 'info' CHECK (severity IN ('info', 'warning', 'error')),
			source_address TEXT    NOT NULL DEFAULT '0.0.0.0',
			actor          TEXT    NOT NULL DEFAULT 'Guest',
			created_at     BIGINT  NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS audit_events_created_idx ON audit_events (created_at DESC, id DESC)`,
		`CREATE INDEX IF NOT EXISTS audit_events_type_idx ON audit_events (type)`,
	},
	existsQuery: `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`,
	lower:       foldFunc,
	missingTable: func(err error) bool {
		return strings.Contains(err.Error(), "no such table")
	},
}

// Postgres is the dialect for github.com/lib/pq.
var Postgres = Dialect{
	Name: "postgres",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS audit_events (
			id             BIGSERIAL PRIMARY KEY,
			type           TEXT   NOT NULL,
			message        TEXT   NOT NULL DEFAULT '',
			severity       TEXT   NOT NULL DEFAULT 'info' CHECK (severity IN ('info', 'warning', 'error')),
			source_address TEXT   NOT NULL DEFAULT '0.0.0.0',
			actor          TEXT   NOT NULL DEFAULT 'Guest',
			created_at     BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS audit_events_created_idx ON audit_events (created_at DESC, id DESC)`,
		`CREATE INDEX IF NOT EXISTS audit_events_type_idx ON audit_events (type)`,
	},
	existsQuery: `SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = ?`,
	numbered:    true,
	lower:       "LOWER",
	missingTable: func(err error) bool {
		var pqErr *pq.Error
		return errors.As(err, &pqErr) && pqErr.Code == "42P01"
	},
}

// rebind rewrites ? placeholders into the dialect's form.
func (d Dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

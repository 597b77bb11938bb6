package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/gyaneshwarpardhi/auditlog/internal/event"
)

const selectColumns = `SELECT id, type, message, severity, source_address, actor, created_at FROM audit_events`

// SQLStore is a Store over database/sql.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	opts    options
}

var _ Store = (*SQLStore)(nil)

// NewSQLStore wraps an open database handle. The table is not created; call Migrate.
func NewSQLStore(db *sql.DB, d Dialect, opts ...Option) *SQLStore {
	return &SQLStore{db: db, dialect: d, opts: buildOptions(opts)}
}

// DB returns the underlying handle.
func (s *SQLStore) DB() *sql.DB { return s.db }

// Migrate implements Store.
func (s *SQLStore) Migrate(ctx context.Context) error {
	for _, stmt := range s.dialect.schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store: migrate %s: %w", s.dialect.Name, err)
		}
	}
	return nil
}

// Exists implements Store.
func (s *SQLStore) Exists(ctx context.Context) bool {
	var n int
	if err := s.db.QueryRowContext(ctx, s.dialect.rebind(s.dialect.existsQuery), Table).Scan(&n); err != nil {
		return false
	}
	return n > 0
}

// Append implements Store.
func (s *SQLStore) Append(ctx context.Context, e *event.Event) (int64, error) {
	ts := s.opts.stamp()
	query := s.dialect.rebind(`INSERT INTO audit_events (type, message, severity, source_address, actor, created_at)
		VALUES (?, ?, ?, ?, ?, ?) RETURNING id`)
	var id int64
	err := s.db.QueryRowContext(ctx, query,
		e.Type, e.Message, string(e.Severity), e.SourceAddress, e.Actor, ts.UnixMicro(),
	).Scan(&id)
	if err != nil {
		return 0, s.wrap("append", err)
	}
	e.ID = id
	e.Timestamp = ts
	return id, nil
}

// DeleteOlderThan implements Store.
func (s *SQLStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.dialect.rebind(`DELETE FROM audit_events WHERE created_at < ?`), cutoff.UnixMicro())
	if err != nil {
		return 0, s.wrap("delete", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("store: delete rows affected: %w", err)
	}
	return n, nil
}

// Find implements Store.
func (s *SQLStore) Find(ctx context.Context, f Filter, limit, offset int) ([]event.Event, error) {
	where, args := s.dialect.where(f)
	query := s.dialect.rebind(selectColumns + where + ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`)
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, s.wrap("find", err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]event.Event, 0, limit)
	for rows.Next() {
		var (
			e        event.Event
			severity string
			micros   int64
		)
		if err := rows.Scan(&e.ID, &e.Type, &e.Message, &severity, &e.SourceAddress, &e.Actor, &micros); err != nil {
			return nil, fmt.Errorf("store: scan event: %w", err)
		}
		e.Severity = event.ParseSeverity(severity)
		e.Timestamp = time.UnixMicro(micros).UTC()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, s.wrap("find", err)
	}
	return out, nil
}

// Count implements Store.
func (s *SQLStore) Count(ctx context.Context, f Filter) (int64, error) {
	where, args := s.dialect.where(f)
	var n int64
	if err := s.db.QueryRowContext(ctx, s.dialect.rebind(`SELECT COUNT(*) FROM audit_events`+where), args...).Scan(&n); err != nil {
		return 0, s.wrap("count", err)
	}
	return n, nil
}

// Close implements Store.
func (s *SQLStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLStore) wrap(op string, err error) error {
	if s.dialect.missingTable != nil && s.dialect.missingTable(err) {
		return fmt.Errorf("store: %s: %w: %v", op, ErrUnavailable, err)
	}
	return fmt.Errorf("store: %s: %w", op, err)
}

func (d Dialect) where(f Filter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if f.Type != "" {
		clauses = append(clauses, "type = ?")
		args = append(args, f.Type)
	}
	if f.Severity != "" {
		clauses = append(clauses, "severity = ?")
		args = append(args, f.Severity)
	}
	if f.Search != "" {
		pattern := "%" + escapeLike(strings.ToLower(f.Search)) + "%"
		var cols []string
		for _, c := range []string{"message", "type", "actor"} {
			cols = append(cols, d.lower+"("+c+`) LIKE ? ESCAPE '\'`)
		}
		clauses = append(clauses, "("+strings.Join(cols, " OR ")+")")
		args = append(args, pattern, pattern, pattern)
	}
	if !f.From.IsZero() {
		clauses = append(clauses, "created_at >= ?")
		args = append(args, f.From.UnixMicro())
	}
	if !f.To.IsZero() {
		clauses = append(clauses, "created_at < ?")
		args = append(args, f.To.UnixMicro())
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

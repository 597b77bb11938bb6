// Package query answers paginated, filtered reads over the event store.
package query

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/gyaneshwarpardhi/auditlog/internal/config"
	"github.com/gyaneshwarpardhi/auditlog/internal/event"
	"github.com/gyaneshwarpardhi/auditlog/internal/metrics"
	"github.com/gyaneshwarpardhi/auditlog/internal/store"
)

const (
	DefaultPerPage = 20
	MaxPerPage     = 100
	dateLayout     = "2006-01-02"
)

// Params are the raw query inputs. Zero Page and PerPage mean "use the default".
type Params struct {
	Page     int
	PerPage  int
	Type     string
	Severity string
	Search   string
	DateFrom string
	DateTo   string
}

// Result is one page of events.
type Result struct {
	Items      []event.Event `json:"items"`
	Total      int64         `json:"total"`
	TotalPages int           `json:"totalPages"`
	Page       int           `json:"page"`
	PerPage    int           `json:"perPage"`
	Degraded   bool          `json:"degraded,omitempty"`
}

// Engine runs queries against a store.
type Engine struct {
	store store.Store
	cfg   config.Provider
	log   *slog.Logger
}

// New returns an Engine. cfg supplies the timezone for date bounds and may be nil (UTC).
func New(st store.Store, cfg config.Provider, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{store: st, cfg: cfg, log: log}
}

// ClampPage forces page into [1, ∞).
func ClampPage(page int) int {
	if page < 1 {
		return 1
	}
	return page
}

// ClampPerPage forces an explicitly supplied per-page value into [1, MaxPerPage].
func ClampPerPage(n int) int {
	switch {
	case n < 1:
		return 1
	case n > MaxPerPage:
		return MaxPerPage
	}
	return n
}

// Run executes p. It never fails: an unavailable store yields an empty, degraded result.
func (e *Engine) Run(ctx context.Context, p Params) Result {
	start := time.Now()
	defer func() { metrics.QueryDuration.Observe(time.Since(start).Seconds()) }()

	page := ClampPage(p.Page)
	perPage := DefaultPerPage
	if p.PerPage != 0 {
		perPage = ClampPerPage(p.PerPage)
	}
	res := Result{Items: []event.Event{}, TotalPages: 1, Page: page, PerPage: perPage}

	if !e.store.Exists(ctx) {
		e.log.Warn("event store unavailable, returning empty result")
		res.Degraded = true
		return res
	}

	f := e.filter(p)
	total, err := e.store.Count(ctx, f)
	if err != nil {
		e.log.Error("count events", "err", err)
		res.Degraded = true
		return res
	}
	res.Total = total
	res.TotalPages = TotalPages(total, perPage)
	if page > res.TotalPages {
		return res
	}

	items, err := e.store.Find(ctx, f, perPage, (page-1)*perPage)
	if err != nil {
		e.log.Error("find events", "err", err)
		res.Degraded = true
		return res
	}
	if items != nil {
		res.Items = items
	}
	return res
}

// TotalPages is ceil(total/perPage), and 1 for an empty result.
func TotalPages(total int64, perPage int) int {
	if total <= 0 || perPage <= 0 {
		return 1
	}
	return int((total + int64(perPage) - 1) / int64(perPage))
}

func (e *Engine) filter(p Params) store.Filter {
	loc := time.UTC
	if e.cfg != nil {
		loc = e.cfg.Config().Store.Location()
	}
	f := store.Filter{
		Type:     strings.TrimSpace(p.Type),
		Severity: strings.ToLower(strings.TrimSpace(p.Severity)),
		Search:   strings.TrimSpace(p.Search),
	}
	if from, ok := e.day(p.DateFrom, "date_from", loc); ok {
		f.From = from
	}
	if to, ok := e.day(p.DateTo, "date_to", loc); ok {
		f.To = to.AddDate(0, 0, 1)
	}
	return f
}

// day parses a YYYY-MM-DD value as midnight in loc.
func (e *Engine) day(s, name string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(dateLayout, s, loc)
	if err != nil {
		e.log.Warn("ignoring unparseable date bound", "param", name, "value", s)
		return time.Time{}, false
	}
	return t, true
}

// Summary is the dashboard overview of the log.
type Summary struct {
	Total      int64                    `json:"total"`
	BySeverity map[event.Severity]int64 `json:"bySeverity"`
	Recent     []event.Event            `json:"recent"`
	Degraded   bool                     `json:"degraded,omitempty"`
}

// Summary counts events per severity and returns the newest recent events.
func (e *Engine) Summary(ctx context.Context, recent int) Summary {
	out := Summary{BySeverity: make(map[event.Severity]int64, len(event.Severities)), Recent: []event.Event{}}
	for _, sev := range event.Severities {
		out.BySeverity[sev] = 0
	}
	if !e.store.Exists(ctx) {
		out.Degraded = true
		return out
	}
	for _, sev := range event.Severities {
		n, err := e.store.Count(ctx, store.Filter{Severity: string(sev)})
		if err != nil {
			e.log.Error("count events by severity", "severity", sev, "err", err)
			out.Degraded = true
			return out
		}
		out.BySeverity[sev] = n
		out.Total += n
	}
	if recent > 0 {
		items, err := e.store.Find(ctx, store.Filter{}, ClampPerPage(recent), 0)
		if err != nil {
			e.log.Error("find recent events", "err", err)
			out.Degraded = true
			return out
		}
		out.Recent = items
	}
	return out
}

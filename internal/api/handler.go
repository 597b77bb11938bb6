package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gyaneshwarpardhi/auditlog/internal/auth"
	"github.com/gyaneshwarpardhi/auditlog/internal/clientip"
	"github.com/gyaneshwarpardhi/auditlog/internal/config"
	"github.com/gyaneshwarpardhi/auditlog/internal/event"
	"github.com/gyaneshwarpardhi/auditlog/internal/metrics"
	"github.com/gyaneshwarpardhi/auditlog/internal/query"
	"github.com/gyaneshwarpardhi/auditlog/internal/store"
	"github.com/gyaneshwarpardhi/auditlog/internal/sweeper"
	"github.com/gyaneshwarpardhi/auditlog/internal/writer"
)

const (
	maxBodyBytes   = 64 << 10
	summaryRecent  = 5
	readyThreshold = 0.8
)

// QueueMonitor reports how full the post-write bus is.
type QueueMonitor interface {
	QueueUtilization() float64
}

// SettingsStore applies validated configuration changes; *config.Loader satisfies it.
type SettingsStore interface {
	Update(fn func(*config.Config)) (*config.Config, error)
}

// Deps are the collaborators the HTTP layer drives.
type Deps struct {
	Writer   *writer.Writer
	Query    *query.Engine
	Sweeper  *sweeper.Sweeper
	Store    store.Store
	Queue    QueueMonitor
	Config   config.Provider
	Settings SettingsStore
	Auth     *auth.Manager
	Resolver writer.AddressResolver
	Log      *slog.Logger
}

// Handler holds all HTTP handler dependencies.
type Handler struct {
	Deps
	mux *http.ServeMux
}

// New creates an HTTP handler and registers all routes.
func New(d Deps) http.Handler {
	if d.Log == nil {
		d.Log = slog.Default()
	}
	if d.Auth == nil {
		d.Auth = auth.NewManager("", "")
	}
	if d.Resolver == nil {
		d.Resolver = clientip.NewLive(func() []string { return d.Config.Config().Server.AddressSources })
	}
	h := &Handler{Deps: d, mux: http.NewServeMux()}

	h.mux.HandleFunc("POST /events", h.createEvent)
	h.mux.HandleFunc("GET /events", h.listEvents)
	h.mux.HandleFunc("DELETE /events", h.operatorOnly(h.purgeEvents))
	h.mux.HandleFunc("GET /events/summary", h.summary)
	h.mux.HandleFunc("GET /settings", h.getSettings)
	h.mux.HandleFunc("PUT /settings", h.operatorOnly(h.putSettings))
	h.mux.HandleFunc("GET /healthz", h.healthz)
	h.mux.HandleFunc("GET /readyz", h.readyz)
	h.mux.Handle("GET /metrics", promhttp.Handler())

	var next http.Handler = h.mux
	next = newIPRateLimiter(func() config.RateLimitConf { return d.Config.Config().Server.RateLimit }, d.Resolver).middleware(next)
	next = authMiddleware(d.Auth, next)
	next = loggingMiddleware(d.Log, h.mux, next)
	return requestIDMiddleware(next)
}

// operatorOnly rejects guests with 401 and non-operators with 403.
func (h *Handler) operatorOnly(fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := auth.FromContext(r.Context())
		if id == auth.Guest {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		if !h.Auth.IsOperator(id) {
			writeError(w, http.StatusForbidden, "operator role required")
			return
		}
		fn(w, r)
	}
}

type createResponse struct {
	ID    int64       `json:"id"`
	Event event.Event `json:"event"`
}

type degradedAck struct {
	Accepted bool `json:"accepted"`
	Degraded bool `json:"degraded"`
}

// POST /events: record one event.
func (h *Handler) createEvent(w http.ResponseWriter, r *http.Request) {
	var in event.Input
	if err := decodeJSON(w, r, &in, false); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %s", err))
		return
	}
	rec, err := h.Writer.WriteRequest(r, in)
	if errors.Is(err, writer.ErrMissingType) {
		writeError(w, http.StatusBadRequest, "event type is required")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if rec.Degraded {
		writeJSON(w, http.StatusAccepted, degradedAck{Accepted: true, Degraded: true})
		return
	}
	writeJSON(w, http.StatusCreated, createResponse{ID: rec.ID, Event: rec.Event})
}

// GET /events: paginated, filtered listing.
func (h *Handler) listEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p := query.Params{
		Type:     q.Get("type"),
		Severity: q.Get("severity"),
		Search:   q.Get("search"),
		DateFrom: q.Get("date_from"),
		DateTo:   q.Get("date_to"),
	}
	if n, ok := intParam(q.Get("page")); ok {
		p.Page = query.ClampPage(n)
	}
	if n, ok := intParam(q.Get("per_page")); ok {
		p.PerPage = query.ClampPerPage(n)
	}
	writeJSON(w, http.StatusOK, h.Query.Run(r.Context(), p))
}

type purgeResponse struct {
	Deleted  int64 `json:"deleted"`
	Degraded bool  `json:"degraded,omitempty"`
}

// DELETE /events?before=: manual retention trigger.
func (h *Handler) purgeEvents(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("before")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "before is required")
		return
	}
	before, err := ParseInstant(raw, h.Config.Config().Store.Location())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	n, err := h.Sweeper.DeleteBefore(r.Context(), before)
	if errors.Is(err, store.ErrUnavailable) {
		writeJSON(w, http.StatusOK, purgeResponse{Degraded: true})
		return
	}
	if err != nil {
		h.Log.Error("manual purge failed", "before", before, "err", err)
		writeError(w, http.StatusInternalServerError, "purge failed")
		return
	}
	h.Log.Info("manual purge", "before", before.Format(time.RFC3339), "deleted", n, "actor", auth.FromContext(r.Context()).Actor)
	writeJSON(w, http.StatusOK, purgeResponse{Deleted: n})
}

// GET /events/summary: severity counts and latest events.
func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Query.Summary(r.Context(), summaryRecent))
}

// GET /settings
func (h *Handler) getSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, config.SettingsOf(h.Config.Config()))
}

// PUT /settings: merge a partial update, validate, persist.
func (h *Handler) putSettings(w http.ResponseWriter, r *http.Request) {
	if h.Settings == nil {
		writeError(w, http.StatusServiceUnavailable, "settings are read-only")
		return
	}
	var patch config.SettingsPatch
	if err := decodeJSON(w, r, &patch, true); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %s", err))
		return
	}
	if err := patch.Check(); err != nil {
		writeValidation(w, err)
		return
	}
	next, err := h.Settings.Update(patch.Apply)
	if err != nil {
		writeValidation(w, err)
		return
	}
	h.Log.Info("settings updated", "actor", auth.FromContext(r.Context()).Actor)
	writeJSON(w, http.StatusOK, config.SettingsOf(next))
}

func writeValidation(w http.ResponseWriter, err error) {
	var verr *config.ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "validation failed", Problems: verr.Problems})
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

// GET /healthz: always 200 (liveness probe).
func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GET /readyz: 503 if the store is unprovisioned or the bus queue is >80% full.
func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	var util float64
	if h.Queue != nil {
		util = h.Queue.QueueUtilization()
	}
	metrics.DispatchQueueUtilization.Set(util)
	storeOK := h.Store.Exists(r.Context())

	status, code := "ready", http.StatusOK
	switch {
	case !storeOK:
		status, code = "store_unavailable", http.StatusServiceUnavailable
	case util > readyThreshold:
		status, code = "overloaded", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":            status,
		"store":             storeOK,
		"queue_utilization": util,
	})
}

func intParam(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

// ParseInstant accepts RFC 3339, YYYY-MM-DD (midnight in loc) or unix seconds.
func ParseInstant(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02", s, loc); err == nil {
		return t, nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil && n >= 0 {
		return time.Unix(n, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("invalid instant %q: want RFC 3339, YYYY-MM-DD or unix seconds", s)
}

// Package writer accepts audit events from callers and appends them to the store.
package writer

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gyaneshwarpardhi/auditlog/internal/auth"
	"github.com/gyaneshwarpardhi/auditlog/internal/clientip"
	"github.com/gyaneshwarpardhi/auditlog/internal/config"
	"github.com/gyaneshwarpardhi/auditlog/internal/event"
	"github.com/gyaneshwarpardhi/auditlog/internal/metrics"
	"github.com/gyaneshwarpardhi/auditlog/internal/store"
)

// ErrMissingType is the only error Write returns.
var ErrMissingType = errors.New("writer: event type is required")

// Publisher receives each event after it is durably written.
type Publisher interface {
	Publish(e event.Event) bool
}

// AddressResolver picks the client address of a request; *clientip.Resolver
// and *clientip.Live satisfy it.
type AddressResolver interface {
	Resolve(r *http.Request) string
}

// Origin is the environment-derived part of an event.
type Origin struct {
	Address string
	Actor   string
}

// Receipt describes the outcome of a write.
type Receipt struct {
	ID    int64       `json:"id"`
	Event event.Event `json:"event"`
	// Degraded is set when the store could not take the event.
	Degraded bool `json:"degraded,omitempty"`
}

// Writer validates, enriches and appends events.
type Writer struct {
	store    store.Store
	bus      Publisher
	resolver AddressResolver
	log      *slog.Logger
}

// New returns a Writer. bus may be nil when nothing listens for written events.
// A nil resolver consults the default address sources; the server passes one
// that follows server.address_sources.
func New(st store.Store, bus Publisher, resolver AddressResolver, log *slog.Logger) *Writer {
	if log == nil {
		log = slog.Default()
	}
	if resolver == nil {
		resolver = clientip.New(config.DefaultAddressSources)
	}
	return &Writer{store: st, bus: bus, resolver: resolver, log: log}
}

// WriteRequest writes in on behalf of the caller of r.
func (w *Writer) WriteRequest(r *http.Request, in event.Input) (Receipt, error) {
	return w.Write(r.Context(), in, Origin{
		Address: w.resolver.Resolve(r),
		Actor:   auth.FromContext(r.Context()).Actor,
	})
}

// Write appends one event. Store failures are logged and reported through
// Receipt.Degraded, never as an error.
func (w *Writer) Write(ctx context.Context, in event.Input, origin Origin) (Receipt, error) {
	typ := strings.TrimSpace(in.Type)
	if typ == "" {
		return Receipt{}, ErrMissingType
	}
	e := event.Event{
		Type:          typ,
		Message:       in.Message,
		Severity:      event.ParseSeverity(in.Severity),
		SourceAddress: origin.Address,
		Actor:         strings.TrimSpace(origin.Actor),
	}
	if addr, ok := clientip.Parse(e.SourceAddress); ok {
		e.SourceAddress = addr
	} else {
		e.SourceAddress = event.NullAddress
	}
	if e.Actor == "" {
		e.Actor = event.AnonymousActor
	}

	if _, err := w.store.Append(ctx, &e); err != nil {
		metrics.EventWriteFailures.Inc()
		if errors.Is(err, store.ErrUnavailable) {
			w.log.Warn("event store unavailable, event discarded", "type", e.Type, "err", err)
		} else {
			w.log.Error("append event", "type", e.Type, "err", err)
		}
		return Receipt{Event: e, Degraded: true}, nil
	}
	metrics.EventsWritten.WithLabelValues(string(e.Severity)).Inc()

	if w.bus != nil && !w.bus.Publish(e) {
		metrics.DispatchDropped.Inc()
		w.log.Warn("post-write queue full, notification skipped", "id", e.ID, "type", e.Type)
	}
	return Receipt{ID: e.ID, Event: e}, nil
}

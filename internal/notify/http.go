package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/gyaneshwarpardhi/auditlog/internal/metrics"
)

const (
	// breakerTripAfter consecutive failures open a channel's circuit.
	breakerTripAfter = 5
	// defaultHTTPTimeout bounds a delivery when the caller's context has no deadline.
	defaultHTTPTimeout = 30 * time.Second
)

// poster sends JSON documents to HTTP endpoints through a circuit breaker.
type poster struct {
	client *http.Client
	cb     *gobreaker.CircuitBreaker[struct{}]
}

func newPoster(name string, client *http.Client) *poster {
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	metrics.NotifierBreakerState.WithLabelValues(name).Set(0)
	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerTripAfter
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("notifier circuit breaker state change", "channel", name, "from", from.String(), "to", to.String())
			metrics.NotifierBreakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	})
	return &poster{client: client, cb: cb}
}

func (p *poster) post(ctx context.Context, url string, headers map[string]string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	_, err = p.cb.Execute(func() (struct{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return struct{}{}, fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "auditlog-notifier")
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		resp, err := p.client.Do(req)
		if err != nil {
			return struct{}{}, fmt.Errorf("post %s: %w", url, err)
		}
		defer func() { _ = resp.Body.Close() }()
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return struct{}{}, fmt.Errorf("post %s: unexpected status %d", url, resp.StatusCode)
		}
		return struct{}{}, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("circuit open: %w", err)
	}
	return err
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

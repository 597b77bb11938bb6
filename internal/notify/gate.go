package notify

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"golang.org/x/time/rate"

	"github.com/gyaneshwarpardhi/auditlog/internal/condition"
	"github.com/gyaneshwarpardhi/auditlog/internal/config"
	"github.com/gyaneshwarpardhi/auditlog/internal/event"
	"github.com/gyaneshwarpardhi/auditlog/internal/metrics"
)

// Skip reasons reported in Decision.Reason.
const (
	ReasonDisabled       = "disabled"
	ReasonBelowMinimum   = "below_minimum_severity"
	ReasonTypeFiltered   = "type_not_selected"
	ReasonConditionFalse = "condition_false"
	ReasonConditionError = "condition_error"
	ReasonRateLimited    = "rate_limited"
)

// Decision is the outcome of evaluating the notification rule for one event.
type Decision struct {
	Dispatch bool
	Reason   string
}

// Gate applies the configured notification rule to written events.
type Gate struct {
	cfg      config.Provider
	channels *Registry
	log      *slog.Logger

	mu          sync.Mutex
	condSource  string
	condProgram *condition.Program
	condErr     error
	limitPerMin int
	limiter     *rate.Limiter
}

// NewGate returns a Gate reading the live rule from cfg.
func NewGate(cfg config.Provider, channels *Registry, log *slog.Logger) *Gate {
	if log == nil {
		log = slog.Default()
	}
	return &Gate{cfg: cfg, channels: channels, log: log}
}

// Evaluate decides whether e should be dispatched. Checks run in order and the
// first failing one wins: enabled, minimum severity, type allow-list, condition, rate.
// It reports the rate budget without spending it; only Handle does that.
func (g *Gate) Evaluate(e event.Event) Decision {
	return g.evaluate(g.cfg.Config().Notification, e, false)
}

func (g *Gate) evaluate(rule config.NotificationConf, e event.Event, spend bool) Decision {
	if !rule.Enabled {
		return Decision{Reason: ReasonDisabled}
	}
	if !e.Severity.AtLeast(event.ParseSeverity(rule.MinimumSeverity)) {
		return Decision{Reason: ReasonBelowMinimum}
	}
	if len(rule.Types) > 0 && !slices.Contains(rule.Types, e.Type) {
		return Decision{Reason: ReasonTypeFiltered}
	}
	if rule.Condition != "" {
		prog, err := g.program(rule.Condition)
		if err != nil {
			g.log.Warn("notification condition does not compile", "condition", rule.Condition, "err", err)
			return Decision{Reason: ReasonConditionError}
		}
		ok, err := prog.Match(e)
		if err != nil {
			g.log.Warn("notification condition failed", "condition", rule.Condition, "event_id", e.ID, "err", err)
			return Decision{Reason: ReasonConditionError}
		}
		if !ok {
			return Decision{Reason: ReasonConditionFalse}
		}
	}
	if !g.allow(rule.MaxPerMinute, spend) {
		return Decision{Reason: ReasonRateLimited}
	}
	return Decision{Dispatch: true}
}

// Handle evaluates e and, when it passes, delivers it on the configured channel
// under the rule's timeout. Failures are logged and counted, never returned.
func (g *Gate) Handle(ctx context.Context, e event.Event) {
	rule := g.cfg.Config().Notification
	d := g.evaluate(rule, e, true)
	if !d.Dispatch {
		if d.Reason == ReasonRateLimited {
			metrics.Notifications.WithLabelValues(rule.Channel, "throttled").Inc()
			g.log.Warn("notification rate limit reached", "event_id", e.ID, "max_per_minute", rule.MaxPerMinute)
		}
		return
	}

	ch, err := g.channels.Get(rule.Channel)
	if err != nil {
		metrics.Notifications.WithLabelValues(rule.Channel, "failed").Inc()
		g.log.Error("notification channel unavailable", "channel", rule.Channel, "err", err)
		return
	}

	timeout := rule.Timeout
	if timeout <= 0 || timeout > config.MaxNotifyTimeout {
		timeout = config.DefaultNotifyTimeout
	}
	sendCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := ch.Send(sendCtx, rule, e); err != nil {
		metrics.Notifications.WithLabelValues(ch.Name(), "failed").Inc()
		g.log.Error("notification dispatch failed", "channel", ch.Name(), "event_id", e.ID, "err", err)
		return
	}
	metrics.Notifications.WithLabelValues(ch.Name(), "sent").Inc()
	g.log.Info("notification sent", "channel", ch.Name(), "event_id", e.ID, "type", e.Type)
}

// program compiles src once and reuses it until the configured condition changes.
func (g *Gate) program(src string) (*condition.Program, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if src != g.condSource {
		g.condSource = src
		g.condProgram, g.condErr = condition.Compile(src)
	}
	return g.condProgram, g.condErr
}

func (g *Gate) allow(perMinute int, spend bool) bool {
	if perMinute <= 0 {
		return true
	}
	g.mu.Lock()
	if g.limiter == nil || g.limitPerMin != perMinute {
		g.limitPerMin = perMinute
		g.limiter = rate.NewLimiter(rate.Limit(float64(perMinute)/60), perMinute)
	}
	l := g.limiter
	g.mu.Unlock()
	if !spend {
		return l.Tokens() >= 1
	}
	return l.Allow()
}

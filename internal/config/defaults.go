package config

import (
	"strings"
	"time"
)

const (
	DefaultRetentionDays   = 30
	MaxRetentionDays       = 3650
	DefaultNotifyTimeout   = 10 * time.Second
	MaxNotifyTimeout       = 30 * time.Second
	DefaultSweepInterval   = 24 * time.Hour
	DefaultDispatchWorkers = 1
	DefaultQueueDepth      = 1024
	DefaultOperatorRole    = "operator"
)

// DefaultAddressSources is the header order consulted before the connection address.
var DefaultAddressSources = []string{
	"CF-Connecting-IP",
	"Client-IP",
	"X-Forwarded-For",
	"X-Forwarded",
	"X-Cluster-Client-IP",
	"Forwarded-For",
	"Forwarded",
	"remote_addr",
}

// Default returns a configuration that runs with an in-memory store and notifications off.
func Default() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "memory"
	cfg.Store.AutoMigrate = true
	Normalize(cfg)
	return cfg
}

// Normalize fills defaults and clamps values into their valid ranges.
func Normalize(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 10 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 30 * time.Second
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = 60 * time.Second
	}
	if len(cfg.Server.AddressSources) == 0 {
		cfg.Server.AddressSources = append([]string(nil), DefaultAddressSources...)
	}
	if cfg.Server.RateLimit.RPS > 0 && cfg.Server.RateLimit.Burst == 0 {
		cfg.Server.RateLimit.Burst = int(cfg.Server.RateLimit.RPS * 2)
		if cfg.Server.RateLimit.Burst < 1 {
			cfg.Server.RateLimit.Burst = 1
		}
	}

	if cfg.Auth.OperatorRole == "" {
		cfg.Auth.OperatorRole = DefaultOperatorRole
	}

	cfg.Store.Driver = strings.ToLower(strings.TrimSpace(cfg.Store.Driver))
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = "sqlite"
	}
	if cfg.Store.Driver == "sqlite" && cfg.Store.DSN == "" {
		cfg.Store.DSN = "auditlog.db"
	}

	switch {
	case cfg.Retention.Days == 0:
		cfg.Retention.Days = DefaultRetentionDays
	case cfg.Retention.Days < 1:
		cfg.Retention.Days = 1
	case cfg.Retention.Days > MaxRetentionDays:
		cfg.Retention.Days = MaxRetentionDays
	}
	if cfg.Retention.Interval <= 0 {
		cfg.Retention.Interval = DefaultSweepInterval
	}

	n := &cfg.Notification
	n.Channel = strings.ToLower(strings.TrimSpace(n.Channel))
	if n.Channel == "" {
		n.Channel = "email"
	}
	n.Destination = strings.TrimSpace(n.Destination)
	switch strings.ToLower(strings.TrimSpace(n.MinimumSeverity)) {
	case "warning":
		n.MinimumSeverity = "warning"
	case "error":
		n.MinimumSeverity = "error"
	default:
		n.MinimumSeverity = "info"
	}
	switch {
	case n.Timeout <= 0:
		n.Timeout = DefaultNotifyTimeout
	case n.Timeout > MaxNotifyTimeout:
		n.Timeout = MaxNotifyTimeout
	}
	if n.MaxPerMinute < 0 {
		n.MaxPerMinute = 0
	}
	if n.SMTP.Port == 0 {
		n.SMTP.Port = 25
	}

	if cfg.Dispatch.Workers <= 0 {
		cfg.Dispatch.Workers = DefaultDispatchWorkers
	}
	if cfg.Dispatch.QueueDepth <= 0 {
		cfg.Dispatch.QueueDepth = DefaultQueueDepth
	}
}

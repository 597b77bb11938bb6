package config

import (
	"sync"
	"time"
)

// Config is the top-level YAML structure.
type Config struct {
	Server       ServerConf       `yaml:"server"`
	Auth         AuthConf         `yaml:"auth"`
	Store        StoreConf        `yaml:"store"`
	Retention    RetentionConf    `yaml:"retention"`
	Notification NotificationConf `yaml:"notification"`
	Dispatch     DispatchConf     `yaml:"dispatch"`
}

// ServerConf holds HTTP listener settings.
type ServerConf struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
	// AddressSources is the ordered list of headers consulted for the client address.
	// The pseudo-source "remote_addr" stands for the raw connection address.
	AddressSources []string      `yaml:"address_sources"`
	RateLimit      RateLimitConf `yaml:"rate_limit"`
}

// RateLimitConf caps POST /events per client address. RPS 0 disables limiting.
type RateLimitConf struct {
	RPS   float64 `yaml:"rps" validate:"min=0"`
	Burst int     `yaml:"burst" validate:"min=0"`
}

// AuthConf configures bearer-token identities.
type AuthConf struct {
	JWTSecret    string `yaml:"jwt_secret" validate:"omitempty,min=16"`
	OperatorRole string `yaml:"operator_role"`
}

// StoreConf selects and configures the event store.
type StoreConf struct {
	Driver      string `yaml:"driver" validate:"oneof=sqlite postgres memory"`
	DSN         string `yaml:"dsn"`
	AutoMigrate bool   `yaml:"auto_migrate"`
	// Timezone anchors the day boundaries of date_from / date_to queries.
	Timezone string `yaml:"timezone"`
}

// RetentionConf is the retention policy consumed by the sweeper.
type RetentionConf struct {
	Days     int           `yaml:"days" validate:"min=1"`
	Interval time.Duration `yaml:"interval"`
}

// NotificationConf is the notification rule evaluated for every written event.
type NotificationConf struct {
	Enabled         bool              `yaml:"enabled"`
	Channel         string            `yaml:"channel" validate:"omitempty,oneof=email webhook slack"`
	Destination     string            `yaml:"destination"`
	MinimumSeverity string            `yaml:"minimum_severity" validate:"omitempty,oneof=info warning error"`
	Types           []string          `yaml:"types"`
	Condition       string            `yaml:"condition"`
	Timeout         time.Duration     `yaml:"timeout"`
	MaxPerMinute    int               `yaml:"max_per_minute" validate:"min=0"`
	WebhookHeaders  map[string]string `yaml:"webhook_headers"`
	SMTP            SMTPConf          `yaml:"smtp"`
}

// SMTPConf holds outbound mail settings for the email channel.
type SMTPConf struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port" validate:"omitempty,min=1,max=65535"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from" validate:"omitempty,email"`
	UseTLS   bool   `yaml:"use_tls"`
}

// DispatchConf sizes the post-write bus.
type DispatchConf struct {
	Workers    int `yaml:"workers" validate:"min=1,max=256"`
	QueueDepth int `yaml:"queue_depth" validate:"min=1"`
}

// Clone returns a deep copy of c.
func (c *Config) Clone() *Config {
	out := *c
	out.Server.AddressSources = append([]string(nil), c.Server.AddressSources...)
	out.Notification.Types = append([]string(nil), c.Notification.Types...)
	if c.Notification.WebhookHeaders != nil {
		out.Notification.WebhookHeaders = make(map[string]string, len(c.Notification.WebhookHeaders))
		for k, v := range c.Notification.WebhookHeaders {
			out.Notification.WebhookHeaders[k] = v
		}
	}
	return &out
}

// locations caches resolved zones by name; unknown names map to UTC.
var locations sync.Map

// Location returns the timezone used for day boundaries, UTC when unset or invalid.
// Each name is loaded from the zone database once per process.
func (c StoreConf) Location() *time.Location {
	if c.Timezone == "" {
		return time.UTC
	}
	if loc, ok := locations.Load(c.Timezone); ok {
		return loc.(*time.Location)
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		loc = time.UTC
	}
	actual, _ := locations.LoadOrStore(c.Timezone, loc)
	return actual.(*time.Location)
}

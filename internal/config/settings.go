package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Settings is the operator-facing configuration surface exposed over HTTP.
type Settings struct {
	RetentionDays int                  `json:"retentionDays"`
	Notification  NotificationSettings `json:"notification"`
}

// NotificationSettings is the notification rule as seen by operators.
type NotificationSettings struct {
	Enabled         bool     `json:"enabled"`
	Channel         string   `json:"channel"`
	Destination     string   `json:"destination"`
	MinimumSeverity string   `json:"minimumSeverity"`
	Types           []string `json:"types"`
	Condition       string   `json:"condition"`
}

// SettingsOf extracts the operator-facing view of cfg.
func SettingsOf(cfg *Config) Settings {
	types := cfg.Notification.Types
	if types == nil {
		types = []string{}
	}
	return Settings{
		RetentionDays: cfg.Retention.Days,
		Notification: NotificationSettings{
			Enabled:         cfg.Notification.Enabled,
			Channel:         cfg.Notification.Channel,
			Destination:     cfg.Notification.Destination,
			MinimumSeverity: cfg.Notification.MinimumSeverity,
			Types:           append([]string(nil), types...),
			Condition:       cfg.Notification.Condition,
		},
	}
}

// SettingsPatch is a partial update; nil fields keep their current value.
type SettingsPatch struct {
	RetentionDays *int                      `json:"retentionDays" validate:"omitempty,min=1,max=3650"`
	Notification  *NotificationSettingsPatch `json:"notification"`
}

// NotificationSettingsPatch is the partial form of NotificationSettings.
type NotificationSettingsPatch struct {
	Enabled         *bool     `json:"enabled"`
	Channel         *string   `json:"channel" validate:"omitempty,oneof=email webhook slack"`
	Destination     *string   `json:"destination"`
	MinimumSeverity *string   `json:"minimumSeverity" validate:"omitempty,oneof=info warning error"`
	Types           *[]string `json:"types"`
	Condition       *string   `json:"condition"`
}

// Check validates the patch fields on their own.
func (p *SettingsPatch) Check() error {
	err := validatorInstance().Struct(p)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("settings: %w", err)
	}
	problems := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		problems = append(problems, describeFieldError(fe))
	}
	return &ValidationError{Problems: problems}
}

// Apply merges the patch into cfg.
func (p *SettingsPatch) Apply(cfg *Config) {
	if p.RetentionDays != nil {
		cfg.Retention.Days = *p.RetentionDays
	}
	n := p.Notification
	if n == nil {
		return
	}
	if n.Enabled != nil {
		cfg.Notification.Enabled = *n.Enabled
	}
	if n.Channel != nil {
		cfg.Notification.Channel = *n.Channel
	}
	if n.Destination != nil {
		cfg.Notification.Destination = *n.Destination
	}
	if n.MinimumSeverity != nil {
		cfg.Notification.MinimumSeverity = *n.MinimumSeverity
	}
	if n.Types != nil {
		cfg.Notification.Types = append([]string(nil), (*n.Types)...)
	}
	if n.Condition != nil {
		cfg.Notification.Condition = *n.Condition
	}
}

package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/gyaneshwarpardhi/auditlog/internal/condition"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// ValidationError collects every problem found in a configuration.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation errors:\n  - %s", strings.Join(e.Problems, "\n  - "))
}

// Validate checks field constraints plus the rules that span fields:
//   - an enabled notification rule needs a destination that fits its channel
//   - the email channel needs an SMTP host and sender
//   - the store timezone must load
func Validate(cfg *Config) error {
	var problems []string

	if err := validatorInstance().Struct(cfg); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return fmt.Errorf("config: %w", err)
		}
		for _, fe := range fieldErrs {
			problems = append(problems, describeFieldError(fe))
		}
	}

	if cfg.Store.Driver != "memory" && cfg.Store.DSN == "" {
		problems = append(problems, fmt.Sprintf("store: dsn is required for driver %q", cfg.Store.Driver))
	}
	if cfg.Store.Timezone != "" {
		if _, err := time.LoadLocation(cfg.Store.Timezone); err != nil {
			problems = append(problems, fmt.Sprintf("store: unknown timezone %q", cfg.Store.Timezone))
		}
	}

	n := cfg.Notification
	if n.Enabled {
		problems = append(problems, destinationProblems(n)...)
	}
	if n.Condition != "" {
		if _, err := condition.Compile(n.Condition); err != nil {
			problems = append(problems, fmt.Sprintf("notification.condition: %v", err))
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

func destinationProblems(n NotificationConf) []string {
	if n.Destination == "" {
		return []string{fmt.Sprintf("notification: destination is required for channel %q", n.Channel)}
	}
	var problems []string
	switch n.Channel {
	case "email":
		for _, addr := range SplitRecipients(n.Destination) {
			if err := validatorInstance().Var(addr, "email"); err != nil {
				problems = append(problems, fmt.Sprintf("notification: invalid email address %q", addr))
			}
		}
		if n.SMTP.Host == "" {
			problems = append(problems, "notification: smtp.host is required for the email channel")
		}
		if n.SMTP.From == "" {
			problems = append(problems, "notification: smtp.from is required for the email channel")
		}
	case "webhook", "slack":
		u, err := url.Parse(n.Destination)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			problems = append(problems, fmt.Sprintf("notification: destination %q must be an http(s) URL", n.Destination))
		}
	}
	return problems
}

// SplitRecipients splits a comma-separated address list, dropping blanks.
func SplitRecipients(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func describeFieldError(fe validator.FieldError) string {
	field := strings.ToLower(strings.TrimPrefix(fe.Namespace(), "Config."))
	switch fe.Tag() {
	case "oneof":
		return fmt.Sprintf("%s: must be one of [%s], got %v", field, fe.Param(), fe.Value())
	case "min":
		return fmt.Sprintf("%s: must be at least %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s: must be at most %s", field, fe.Param())
	case "email":
		return fmt.Sprintf("%s: invalid email address %v", field, fe.Value())
	default:
		return fmt.Sprintf("%s: failed %s validation", field, fe.Tag())
	}
}

package event

import (
	"strings"
	"time"
)

const (
	// AnonymousActor is recorded when no authenticated principal is attached to a write.
	AnonymousActor = "Guest"
	// NullAddress is recorded when no candidate source address validates.
	NullAddress = "0.0.0.0"
)

// Severity is the three-level ordinal classification of an event.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Severities lists the valid levels in ascending order.
var Severities = []Severity{SeverityInfo, SeverityWarning, SeverityError}

// ParseSeverity maps s onto a known level. Unknown or empty values become info.
func ParseSeverity(s string) Severity {
	switch Severity(strings.ToLower(strings.TrimSpace(s))) {
	case SeverityWarning:
		return SeverityWarning
	case SeverityError:
		return SeverityError
	default:
		return SeverityInfo
	}
}

// Valid reports whether s is one of the three known levels.
func (s Severity) Valid() bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityError:
		return true
	}
	return false
}

// Rank orders severities: info < warning < error.
func (s Severity) Rank() int {
	switch s {
	case SeverityWarning:
		return 1
	case SeverityError:
		return 2
	default:
		return 0
	}
}

// AtLeast reports whether s is at or above min.
func (s Severity) AtLeast(min Severity) bool {
	return s.Rank() >= min.Rank()
}

func (s Severity) String() string { return string(s) }

// Event is one audit-log record. It is never mutated once the store has assigned ID and Timestamp.
type Event struct {
	ID            int64     `json:"id"`
	Type          string    `json:"type"`
	Message       string    `json:"message"`
	Severity      Severity  `json:"severity"`
	Timestamp     time.Time `json:"timestamp"`
	SourceAddress string    `json:"sourceAddress"`
	Actor         string    `json:"actor"`
}

// Input is what callers hand to the writer.
type Input struct {
	Type     string `json:"type"`
	Message  string `json:"message"`
	Severity string `json:"severity"`
}

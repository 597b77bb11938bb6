// Package condition compiles boolean filter expressions over audit event fields,
// for example `severity_rank >= 1 AND type in ["login_failed", "lockout"]`.
package condition

import (
	"fmt"
	"maps"
	"slices"

	"github.com/gyaneshwarpardhi/auditlog/internal/event"
)

var accessors = map[string]func(event.Event) any{
	"type":           func(e event.Event) any { return e.Type },
	"message":        func(e event.Event) any { return e.Message },
	"severity":       func(e event.Event) any { return string(e.Severity) },
	"severity_rank":  func(e event.Event) any { return float64(e.Severity.Rank()) },
	"actor":          func(e event.Event) any { return e.Actor },
	"source_address": func(e event.Event) any { return e.SourceAddress },
}

// EventFields are the names an expression may reference.
var EventFields = slices.Sorted(maps.Keys(accessors))

// Program is a compiled expression. It is immutable and safe for concurrent use.
type Program struct {
	source string
	root   node
}

// Compile parses expr against the event fields. Errors wrap a *SyntaxError.
func Compile(expr string) (*Program, error) {
	root, err := parse(expr, func(name string) bool {
		_, ok := accessors[name]
		return ok
	})
	if err != nil {
		return nil, fmt.Errorf("condition %q: %w", expr, err)
	}
	return &Program{source: expr, root: root}, nil
}

// String returns the expression source.
func (p *Program) String() string { return p.source }

// Match evaluates the program against e. Type mismatches such as
// `message > 1` surface as errors.
func (p *Program) Match(e event.Event) (bool, error) {
	return p.root.eval(func(name string) (any, bool) {
		get, ok := accessors[name]
		if !ok {
			return nil, false
		}
		return get(e), true
	})
}

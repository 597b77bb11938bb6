package condition

import (
	"fmt"
	"math"
	"regexp"
	"slices"
	"strings"
)

// resolver looks up a field value by name.
type resolver func(name string) (any, bool)

type node interface {
	eval(r resolver) (bool, error)
}

type andNode struct{ left, right node }

func (n andNode) eval(r resolver) (bool, error) {
	ok, err := n.left.eval(r)
	if err != nil || !ok {
		return false, err
	}
	return n.right.eval(r)
}

type orNode struct{ left, right node }

func (n orNode) eval(r resolver) (bool, error) {
	ok, err := n.left.eval(r)
	if err != nil || ok {
		return ok, err
	}
	return n.right.eval(r)
}

type notNode struct{ inner node }

func (n notNode) eval(r resolver) (bool, error) {
	ok, err := n.inner.eval(r)
	return !ok && err == nil, err
}

type comparison struct {
	op          comparator
	left, right operand
	// re is set when the pattern of a matches comparison is a literal.
	re *regexp.Regexp
}

func (c *comparison) eval(r resolver) (bool, error) {
	lv, err := c.left.value(r)
	if err != nil {
		return false, err
	}
	if c.re != nil {
		s, err := c.op.text(lv)
		if err != nil {
			return false, err
		}
		return c.re.MatchString(s), nil
	}
	rv, err := c.right.value(r)
	if err != nil {
		return false, err
	}
	return c.op.apply(lv, rv)
}

type operand interface {
	value(r resolver) (any, error)
}

// literal holds a string, float64 or bool constant.
type literal struct{ v any }

func (l literal) value(resolver) (any, error) { return l.v, nil }

type field string

func (f field) value(r resolver) (any, error) {
	v, ok := r(string(f))
	if !ok {
		return nil, fmt.Errorf("field %q not found", string(f))
	}
	return v, nil
}

// list is the right-hand side of an in comparison.
type list []any

func (l list) value(resolver) (any, error) { return []any(l), nil }

type comparator string

const (
	cmpEq       comparator = "=="
	cmpNeq      comparator = "!="
	cmpGt       comparator = ">"
	cmpGte      comparator = ">="
	cmpLt       comparator = "<"
	cmpLte      comparator = "<="
	cmpContains comparator = "contains"
	cmpMatches  comparator = "matches"
	cmpIn       comparator = "in"
)

func (c comparator) apply(l, r any) (bool, error) {
	switch c {
	case cmpEq:
		return same(l, r), nil
	case cmpNeq:
		return !same(l, r), nil
	case cmpGt, cmpGte, cmpLt, cmpLte:
		return c.order(l, r)
	case cmpContains:
		s, err := c.text(l)
		if err != nil {
			return false, err
		}
		return strings.Contains(strings.ToLower(s), strings.ToLower(fmt.Sprint(r))), nil
	case cmpMatches:
		s, err := c.text(l)
		if err != nil {
			return false, err
		}
		pattern, ok := r.(string)
		if !ok {
			return false, fmt.Errorf("matches: pattern must be a string, got %T", r)
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return false, fmt.Errorf("matches: %w", err)
		}
		return re.MatchString(s), nil
	case cmpIn:
		items, ok := r.([]any)
		if !ok {
			return false, fmt.Errorf("in: right operand must be a list, got %T", r)
		}
		return slices.ContainsFunc(items, func(v any) bool { return same(l, v) }), nil
	}
	return false, fmt.Errorf("unknown comparator %q", string(c))
}

func (c comparator) order(l, r any) (bool, error) {
	lf, lok := number(l)
	rf, rok := number(r)
	if !lok || !rok {
		return false, fmt.Errorf("%s needs numbers, got %T and %T", string(c), l, r)
	}
	switch c {
	case cmpGt:
		return lf > rf, nil
	case cmpGte:
		return lf >= rf, nil
	case cmpLt:
		return lf < rf, nil
	default:
		return lf <= rf, nil
	}
}

func (c comparator) text(v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%s: left operand must be a string, got %T", string(c), v)
	}
	return s, nil
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// same compares numbers by value and booleans strictly. Anything else compares
// by its exact string form.
func same(l, r any) bool {
	if lf, ok := number(l); ok {
		rf, ok := number(r)
		return ok && math.Abs(lf-rf) < 1e-9
	}
	if lb, ok := l.(bool); ok {
		rb, ok := r.(bool)
		return ok && lb == rb
	}
	if _, ok := r.(bool); ok {
		return false
	}
	return fmt.Sprint(l) == fmt.Sprint(r)
}

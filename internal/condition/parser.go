package condition

import (
	"regexp"
	"strconv"
	"strings"
)

type parser struct {
	sc    scanner
	tok   token
	known func(string) bool
}

// parse builds the tree for src. Field names are folded to lower case and must
// satisfy known.
func parse(src string, known func(string) bool) (node, error) {
	p := &parser{sc: scanner{src: src}, known: known}
	if err := p.advance(); err != nil {
		return nil, err
	}
	if p.tok.kind == tEOF {
		return nil, syntaxErrorf(0, "empty expression")
	}
	n, err := p.expr(0)
	if err != nil {
		return nil, err
	}
	if p.tok.kind != tEOF {
		return nil, syntaxErrorf(p.tok.pos, "unexpected %s", p.tok)
	}
	return n, nil
}

func (p *parser) advance() error {
	t, err := p.sc.next()
	if err != nil {
		return err
	}
	p.tok = t
	return nil
}

func (p *parser) expect(kind tokenKind, what string) error {
	if p.tok.kind != kind {
		return syntaxErrorf(p.tok.pos, "expected %s, got %s", what, p.tok)
	}
	return p.advance()
}

// binding power of the logical operators; OR binds looser than AND.
func precedence(k tokenKind) int {
	switch k {
	case tOr:
		return 1
	case tAnd:
		return 2
	}
	return 0
}

func (p *parser) expr(min int) (node, error) {
	left, err := p.unary()
	if err != nil {
		return nil, err
	}
	for {
		prec := precedence(p.tok.kind)
		if prec <= min {
			return left, nil
		}
		kind := p.tok.kind
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.expr(prec)
		if err != nil {
			return nil, err
		}
		if kind == tAnd {
			left = andNode{left, right}
		} else {
			left = orNode{left, right}
		}
	}
}

func (p *parser) unary() (node, error) {
	switch p.tok.kind {
	case tNot:
		if err := p.advance(); err != nil {
			return nil, err
		}
		inner, err := p.unary()
		if err != nil {
			return nil, err
		}
		return notNode{inner}, nil
	case tLParen:
		if err := p.advance(); err != nil {
			return nil, err
		}
		inner, err := p.expr(0)
		if err != nil {
			return nil, err
		}
		return inner, p.expect(tRParen, "')'")
	}
	return p.comparison()
}

func (p *parser) comparison() (node, error) {
	left, err := p.operand()
	if err != nil {
		return nil, err
	}
	if p.tok.kind != tCompare {
		return nil, syntaxErrorf(p.tok.pos, "expected comparison operator, got %s", p.tok)
	}
	c := &comparison{op: comparator(p.tok.text), left: left}
	if err := p.advance(); err != nil {
		return nil, err
	}

	if c.op == cmpIn {
		c.right, err = p.list()
		return c, err
	}
	at := p.tok.pos
	if c.right, err = p.operand(); err != nil {
		return nil, err
	}
	if c.op == cmpMatches {
		if lit, ok := c.right.(literal); ok {
			pattern, ok := lit.v.(string)
			if !ok {
				return nil, syntaxErrorf(at, "matches pattern must be a string")
			}
			if c.re, err = regexp.Compile(pattern); err != nil {
				return nil, syntaxErrorf(at, "invalid pattern: %v", err)
			}
		}
	}
	return c, nil
}

func (p *parser) operand() (operand, error) {
	t := p.tok
	var op operand
	switch t.kind {
	case tString:
		op = literal{t.text}
	case tNumber:
		f, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, syntaxErrorf(t.pos, "invalid number %q", t.text)
		}
		op = literal{f}
	case tIdent:
		name := strings.ToLower(t.text)
		switch {
		case name == "true" || name == "false":
			op = literal{name == "true"}
		case !p.known(name):
			return nil, syntaxErrorf(t.pos, "unknown field %q", name)
		default:
			op = field(name)
		}
	default:
		return nil, syntaxErrorf(t.pos, "expected operand, got %s", t)
	}
	return op, p.advance()
}

// list = "[" [ literal { "," literal } ] "]"
func (p *parser) list() (operand, error) {
	if err := p.expect(tLBrack, "'['"); err != nil {
		return nil, err
	}
	items := list{}
	for p.tok.kind != tRBrack {
		if len(items) > 0 {
			if err := p.expect(tComma, "','"); err != nil {
				return nil, err
			}
		}
		at := p.tok.pos
		op, err := p.operand()
		if err != nil {
			return nil, err
		}
		lit, ok := op.(literal)
		if !ok {
			return nil, syntaxErrorf(at, "list items must be literals")
		}
		items = append(items, lit.v)
	}
	return items, p.advance()
}

package condition

import (
	"fmt"
	"strings"
)

type tokenKind uint8

const (
	tEOF tokenKind = iota
	tIdent
	tString
	tNumber
	tCompare // == != > >= < <= contains matches in
	tAnd
	tOr
	tNot
	tLParen
	tRParen
	tLBrack
	tRBrack
	tComma
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

func (t token) String() string {
	if t.kind == tEOF {
		return "end of expression"
	}
	return fmt.Sprintf("%q", t.text)
}

// SyntaxError reports a malformed expression and the byte offset where it was detected.
type SyntaxError struct {
	Pos int
	Msg string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("offset %d: %s", e.Pos, e.Msg)
}

func syntaxErrorf(pos int, format string, args ...any) error {
	return &SyntaxError{Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

// scanner yields tokens on demand; the parser holds one token of lookahead.
type scanner struct {
	src string
	pos int
}

func (s *scanner) at(off int) byte {
	if i := s.pos + off; i < len(s.src) {
		return s.src[i]
	}
	return 0
}

func (s *scanner) emit(kind tokenKind, start, width int) (token, error) {
	s.pos = start + width
	return token{kind: kind, text: s.src[start:s.pos], pos: start}, nil
}

func (s *scanner) next() (token, error) {
	for s.pos < len(s.src) && strings.IndexByte(" \t\r\n", s.src[s.pos]) >= 0 {
		s.pos++
	}
	start := s.pos
	if start >= len(s.src) {
		return token{kind: tEOF, pos: start}, nil
	}

	switch c := s.src[start]; {
	case c == '(':
		return s.emit(tLParen, start, 1)
	case c == ')':
		return s.emit(tRParen, start, 1)
	case c == '[':
		return s.emit(tLBrack, start, 1)
	case c == ']':
		return s.emit(tRBrack, start, 1)
	case c == ',':
		return s.emit(tComma, start, 1)
	case c == '&' || c == '|':
		if s.at(1) != c {
			return token{}, syntaxErrorf(start, "expected %c%c", c, c)
		}
		if c == '&' {
			return s.emit(tAnd, start, 2)
		}
		return s.emit(tOr, start, 2)
	case c == '=':
		if s.at(1) != '=' {
			return token{}, syntaxErrorf(start, "use == for equality")
		}
		return s.emit(tCompare, start, 2)
	case c == '!':
		if s.at(1) == '=' {
			return s.emit(tCompare, start, 2)
		}
		return s.emit(tNot, start, 1)
	case c == '<' || c == '>':
		if s.at(1) == '=' {
			return s.emit(tCompare, start, 2)
		}
		return s.emit(tCompare, start, 1)
	case c == '"' || c == '\'':
		return s.quoted(c)
	case isDigit(c) || (c == '-' && isDigit(s.at(1))):
		return s.number()
	case isIdentStart(c):
		return s.word()
	default:
		return token{}, syntaxErrorf(start, "unexpected character %q", c)
	}
}

// quoted scans a string literal. A backslash escapes the following byte.
func (s *scanner) quoted(quote byte) (token, error) {
	start := s.pos
	var b strings.Builder
	for i := start + 1; i < len(s.src); i++ {
		switch c := s.src[i]; {
		case c == '\\' && i+1 < len(s.src):
			i++
			b.WriteByte(s.src[i])
		case c == quote:
			s.pos = i + 1
			return token{kind: tString, text: b.String(), pos: start}, nil
		default:
			b.WriteByte(c)
		}
	}
	return token{}, syntaxErrorf(start, "unterminated string")
}

func (s *scanner) number() (token, error) {
	start := s.pos
	i := start
	if s.src[i] == '-' {
		i++
	}
	dot := false
	for ; i < len(s.src); i++ {
		c := s.src[i]
		if c == '.' && !dot {
			dot = true
			continue
		}
		if !isDigit(c) {
			break
		}
	}
	return s.emit(tNumber, start, i-start)
}

func (s *scanner) word() (token, error) {
	start := s.pos
	i := start
	for i < len(s.src) && (isIdentStart(s.src[i]) || isDigit(s.src[i])) {
		i++
	}
	tok, _ := s.emit(tIdent, start, i-start)
	switch strings.ToLower(tok.text) {
	case "and":
		tok.kind = tAnd
	case "or":
		tok.kind = tOr
	case "not":
		tok.kind = tNot
	case "contains", "matches", "in":
		tok.kind = tCompare
		tok.text = strings.ToLower(tok.text)
	}
	return tok, nil
}

func isDigit(c byte) bool      { return c >= '0' && c <= '9' }
func isIdentStart(c byte) bool { return c == '_' || (c|0x20 >= 'a' && c|0x20 <= 'z') }

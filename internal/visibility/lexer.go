package visibility

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokString
	tokNumber
	tokLParen
	tokRParen
	tokLBracket
	tokRBracket
	tokComma
	tokDot
	tokAnd
	tokOr
	tokNot
	tokMinus
	tokEq
	tokNeq
	tokLt
	tokLte
	tokGt
	tokGte
)

var tokenNames = map[tokenKind]string{
	tokEOF: "end of expression", tokIdent: "identifier", tokString: "string", tokNumber: "number",
	tokLParen: "(", tokRParen: ")", tokLBracket: "[", tokRBracket: "]", tokComma: ",", tokDot: ".",
	tokAnd: "&&", tokOr: "||", tokNot: "!", tokMinus: "-",
	tokEq: "==", tokNeq: "!=", tokLt: "<", tokLte: "<=", tokGt: ">", tokGte: ">=",
}

func (k tokenKind) String() string { return tokenNames[k] }

type token struct {
	kind tokenKind
	text string
	pos  int
}

// ParseError describes a malformed expression.
type ParseError struct {
	Expr string
	Pos  int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("visible_if %q: at %d: %s", e.Expr, e.Pos, e.Msg)
}

type lexer struct {
	src string
	pos int
}

func tokenize(src string) ([]token, error) {
	lx := &lexer{src: src}
	var out []token
	for {
		tok, err := lx.next()
		if err != nil {
			return nil, err
		}
		out = append(out, tok)
		if tok.kind == tokEOF {
			return out, nil
		}
	}
}

func (l *lexer) fail(pos int, format string, args ...any) error {
	return &ParseError{Expr: l.src, Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

func (l *lexer) next() (token, error) {
	for l.pos < len(l.src) {
		r, size := utf8.DecodeRuneInString(l.src[l.pos:])
		if !unicode.IsSpace(r) {
			break
		}
		l.pos += size
	}
	start := l.pos
	if l.pos >= len(l.src) {
		return token{kind: tokEOF, pos: start}, nil
	}

	c := l.src[l.pos]
	switch {
	case c == '"' || c == '\'':
		return l.lexString(c)
	case c >= '0' && c <= '9':
		return l.lexNumber()
	case c == '_' || c == '$' || isLetter(c):
		for l.pos < len(l.src) && (isLetter(l.src[l.pos]) || isDigit(l.src[l.pos]) || l.src[l.pos] == '_' || l.src[l.pos] == '$') {
			l.pos++
		}
		return token{kind: tokIdent, text: l.src[start:l.pos], pos: start}, nil
	}

	peek := l.src[l.pos:min(l.pos+3, len(l.src))]
	switch {
	case strings.HasPrefix(peek, "==="), strings.HasPrefix(peek, "!=="):
		l.pos += 3
		if peek[0] == '=' {
			return token{kind: tokEq, text: "==", pos: start}, nil
		}
		return token{kind: tokNeq, text: "!=", pos: start}, nil
	case strings.HasPrefix(peek, "=="):
		l.pos += 2
		return token{kind: tokEq, text: "==", pos: start}, nil
	case strings.HasPrefix(peek, "!="):
		l.pos += 2
		return token{kind: tokNeq, text: "!=", pos: start}, nil
	case strings.HasPrefix(peek, "<="):
		l.pos += 2
		return token{kind: tokLte, text: "<=", pos: start}, nil
	case strings.HasPrefix(peek, ">="):
		l.pos += 2
		return token{kind: tokGte, text: ">=", pos: start}, nil
	case strings.HasPrefix(peek, "&&"):
		l.pos += 2
		return token{kind: tokAnd, text: "&&", pos: start}, nil
	case strings.HasPrefix(peek, "||"):
		l.pos += 2
		return token{kind: tokOr, text: "||", pos: start}, nil
	}

	single := map[byte]tokenKind{
		'(': tokLParen, ')': tokRParen, '[': tokLBracket, ']': tokRBracket,
		',': tokComma, '.': tokDot, '!': tokNot, '-': tokMinus, '<': tokLt, '>': tokGt,
	}
	if kind, ok := single[c]; ok {
		l.pos++
		return token{kind: kind, text: string(c), pos: start}, nil
	}
	return token{}, l.fail(start, "unexpected character %q", c)
}

func (l *lexer) lexString(quote byte) (token, error) {
	start := l.pos
	l.pos++
	var sb strings.Builder
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch c {
		case quote:
			l.pos++
			return token{kind: tokString, text: sb.String(), pos: start}, nil
		case '\\':
			if l.pos+1 >= len(l.src) {
				return token{}, l.fail(l.pos, "unterminated escape")
			}
			l.pos++
			switch esc := l.src[l.pos]; esc {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			default:
				sb.WriteByte(esc)
			}
			l.pos++
		default:
			sb.WriteByte(c)
			l.pos++
		}
	}
	return token{}, l.fail(start, "unterminated string")
}

func (l *lexer) lexNumber() (token, error) {
	start := l.pos
	seenDot := false
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		if c == '.' && !seenDot && l.pos+1 < len(l.src) && isDigit(l.src[l.pos+1]) {
			seenDot = true
			l.pos++
			continue
		}
		if !isDigit(c) {
			break
		}
		l.pos++
	}
	if l.pos < len(l.src) && (isLetter(l.src[l.pos]) || l.src[l.pos] == '_') {
		return token{}, l.fail(l.pos, "malformed number")
	}
	return token{kind: tokNumber, text: l.src[start:l.pos], pos: start}, nil
}

func isLetter(c byte) bool { return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }
func isDigit(c byte) bool  { return c >= '0' && c <= '9' }

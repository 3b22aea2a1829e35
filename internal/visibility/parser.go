package visibility

import (
	"fmt"
	"strconv"
)

// Expr is a parsed visible_if condition.
type Expr interface {
	eval(env *env) (value, error)
}

type (
	literalExpr struct{ v value }

	// refExpr reads answers[path[0]] then walks member accesses.
	refExpr struct{ path []string }

	notExpr struct{ x Expr }

	logicalExpr struct {
		and  bool
		l, r Expr
	}

	compareExpr struct {
		op   tokenKind
		l, r Expr
	}

	includesExpr struct{ coll, item Expr }
)

// Parse compiles expr against the closed visible_if grammar:
//
//	or       = and { "||" and }
//	and      = equality { "&&" equality }
//	equality = relation { ("==" | "!=") relation }
//	relation = unary { ("<" | "<=" | ">" | ">=") unary }
//	unary    = "!" unary | primary
//	primary  = literal | "(" or ")" | "includes" "(" or "," or ")" | reference
//	reference = ident { "." ident | "[" string "]" }
//
// A reference rooted at "answers" or at a bare question id reads the answer map.
func Parse(expr string) (Expr, error) {
	toks, err := tokenize(expr)
	if err != nil {
		return nil, err
	}
	p := &parser{src: expr, toks: toks}
	node, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return nil, p.fail(tok, "unexpected %s", describe(tok))
	}
	return node, nil
}

type parser struct {
	src  string
	toks []token
	pos  int
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) advance() token {
	tok := p.toks[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) expect(kind tokenKind) (token, error) {
	tok := p.advance()
	if tok.kind != kind {
		return tok, p.fail(tok, "expected %s, found %s", kind, describe(tok))
	}
	return tok, nil
}

func (p *parser) fail(tok token, format string, args ...any) error {
	return &ParseError{Expr: p.src, Pos: tok.pos, Msg: fmt.Sprintf(format, args...)}
}

func describe(tok token) string {
	switch tok.kind {
	case tokIdent, tokNumber:
		return fmt.Sprintf("%s %q", tok.kind, tok.text)
	case tokString:
		return "string literal"
	}
	return fmt.Sprintf("%q", tok.kind.String())
}

func (p *parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokOr {
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = logicalExpr{and: false, l: left, r: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Expr, error) {
	left, err := p.parseEquality()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokAnd {
		p.advance()
		right, err := p.parseEquality()
		if err != nil {
			return nil, err
		}
		left = logicalExpr{and: true, l: left, r: right}
	}
	return left, nil
}

func (p *parser) parseEquality() (Expr, error) {
	left, err := p.parseRelation()
	if err != nil {
		return nil, err
	}
	for k := p.peek().kind; k == tokEq || k == tokNeq; k = p.peek().kind {
		p.advance()
		right, err := p.parseRelation()
		if err != nil {
			return nil, err
		}
		left = compareExpr{op: k, l: left, r: right}
	}
	return left, nil
}

func (p *parser) parseRelation() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for k := p.peek().kind; k == tokLt || k == tokLte || k == tokGt || k == tokGte; k = p.peek().kind {
		p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = compareExpr{op: k, l: left, r: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (Expr, error) {
	if p.peek().kind == tokNot {
		p.advance()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return notExpr{x: x}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Expr, error) {
	tok := p.advance()
	switch tok.kind {
	case tokString:
		return literalExpr{v: stringValue(tok.text)}, nil
	case tokNumber:
		return numberLiteral(p, tok, false)
	case tokMinus:
		num, err := p.expect(tokNumber)
		if err != nil {
			return nil, err
		}
		return numberLiteral(p, num, true)
	case tokLParen:
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen); err != nil {
			return nil, err
		}
		return inner, nil
	case tokIdent:
		return p.parseIdent(tok)
	}
	return nil, p.fail(tok, "expected operand, found %s", describe(tok))
}

func numberLiteral(p *parser, tok token, negative bool) (Expr, error) {
	n, err := strconv.ParseFloat(tok.text, 64)
	if err != nil {
		return nil, p.fail(tok, "malformed number %q", tok.text)
	}
	if negative {
		n = -n
	}
	return literalExpr{v: numberValue(n)}, nil
}

func (p *parser) parseIdent(tok token) (Expr, error) {
	switch tok.text {
	case "true":
		return literalExpr{v: boolValue(true)}, nil
	case "false":
		return literalExpr{v: boolValue(false)}, nil
	case "null", "undefined":
		return literalExpr{v: nullValue}, nil
	case "includes":
		return p.parseIncludes()
	}

	if p.peek().kind == tokLParen {
		return nil, p.fail(tok, "unknown function %q", tok.text)
	}

	var path []string
	if tok.text != "answers" {
		path = append(path, tok.text)
	}
	for {
		switch p.peek().kind {
		case tokDot:
			p.advance()
			member, err := p.expect(tokIdent)
			if err != nil {
				return nil, err
			}
			path = append(path, member.text)
		case tokLBracket:
			p.advance()
			key, err := p.expect(tokString)
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(tokRBracket); err != nil {
				return nil, err
			}
			path = append(path, key.text)
		default:
			if len(path) == 0 {
				return nil, p.fail(tok, "answers must be indexed by a question id")
			}
			return refExpr{path: path}, nil
		}
	}
}

func (p *parser) parseIncludes() (Expr, error) {
	if _, err := p.expect(tokLParen); err != nil {
		return nil, err
	}
	coll, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokComma); err != nil {
		return nil, err
	}
	item, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokRParen); err != nil {
		return nil, err
	}
	return includesExpr{coll: coll, item: item}, nil
}

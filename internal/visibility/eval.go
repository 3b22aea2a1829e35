package visibility

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"negopro-questionnaire/internal/domain"
)

type valueKind int

const (
	kindNull valueKind = iota
	kindBool
	kindNumber
	kindString
	kindList
	kindObject
)

type value struct {
	kind valueKind
	b    bool
	n    float64
	s    string
	list []string
	obj  map[string]int
}

var nullValue = value{}

func boolValue(b bool) value      { return value{kind: kindBool, b: b} }
func numberValue(n float64) value { return value{kind: kindNumber, n: n} }
func stringValue(s string) value  { return value{kind: kindString, s: s} }

func fromAnswer(a domain.AnswerValue) value {
	switch a.Kind() {
	case domain.KindText:
		s, _ := a.Str()
		return stringValue(s)
	case domain.KindNumber:
		n, _ := a.Num()
		return numberValue(n)
	case domain.KindList:
		l, _ := a.Strings()
		return value{kind: kindList, list: l}
	case domain.KindScale:
		m, _ := a.ScaleValues()
		return value{kind: kindObject, obj: m}
	}
	return nullValue
}

func (v value) truthy() bool {
	switch v.kind {
	case kindBool:
		return v.b
	case kindNumber:
		return v.n != 0
	case kindString:
		return v.s != ""
	case kindList:
		return len(v.list) > 0
	case kindObject:
		return true
	}
	return false
}

// asNumber reports v as a number, parsing numeric strings.
func (v value) asNumber() (float64, bool) {
	switch v.kind {
	case kindNumber:
		return v.n, true
	case kindString:
		n, err := strconv.ParseFloat(strings.TrimSpace(v.s), 64)
		return n, err == nil
	case kindBool:
		if v.b {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// errEval marks a runtime failure such as member access on a missing answer.
var errEval = errors.New("evaluation failed")

type env struct {
	answers domain.Answers
}

func (e literalExpr) eval(*env) (value, error) { return e.v, nil }

func (e refExpr) eval(en *env) (value, error) {
	cur := fromAnswer(en.answers.Get(e.path[0]))
	for _, member := range e.path[1:] {
		switch cur.kind {
		case kindNull:
			return nullValue, fmt.Errorf("%w: %s of missing answer", errEval, member)
		case kindObject:
			n, ok := cur.obj[member]
			if !ok {
				cur = nullValue
				continue
			}
			cur = numberValue(float64(n))
		default:
			cur = nullValue
		}
	}
	return cur, nil
}

func (e notExpr) eval(en *env) (value, error) {
	x, err := e.x.eval(en)
	if err != nil {
		return nullValue, err
	}
	return boolValue(!x.truthy()), nil
}

func (e logicalExpr) eval(en *env) (value, error) {
	l, err := e.l.eval(en)
	if err != nil {
		return nullValue, err
	}
	if e.and && !l.truthy() {
		return boolValue(false), nil
	}
	if !e.and && l.truthy() {
		return boolValue(true), nil
	}
	r, err := e.r.eval(en)
	if err != nil {
		return nullValue, err
	}
	return boolValue(r.truthy()), nil
}

func (e compareExpr) eval(en *env) (value, error) {
	l, err := e.l.eval(en)
	if err != nil {
		return nullValue, err
	}
	r, err := e.r.eval(en)
	if err != nil {
		return nullValue, err
	}
	switch e.op {
	case tokEq:
		return boolValue(equal(l, r)), nil
	case tokNeq:
		return boolValue(!equal(l, r)), nil
	}
	c, err := order(l, r)
	if err != nil {
		return nullValue, err
	}
	switch e.op {
	case tokLt:
		return boolValue(c < 0), nil
	case tokLte:
		return boolValue(c <= 0), nil
	case tokGt:
		return boolValue(c > 0), nil
	default:
		return boolValue(c >= 0), nil
	}
}

func (e includesExpr) eval(en *env) (value, error) {
	coll, err := e.coll.eval(en)
	if err != nil {
		return nullValue, err
	}
	item, err := e.item.eval(en)
	if err != nil {
		return nullValue, err
	}
	if coll.kind != kindList {
		return boolValue(false), nil
	}
	var needle string
	switch item.kind {
	case kindString:
		needle = item.s
	case kindNumber:
		needle = strconv.FormatFloat(item.n, 'f', -1, 64)
	case kindBool:
		needle = strconv.FormatBool(item.b)
	default:
		return boolValue(false), nil
	}
	return boolValue(slices.Contains(coll.list, needle)), nil
}

func equal(l, r value) bool {
	if l.kind == kindNull || r.kind == kindNull {
		return l.kind == r.kind
	}
	if l.kind == r.kind {
		switch l.kind {
		case kindBool:
			return l.b == r.b
		case kindNumber:
			return l.n == r.n
		case kindString:
			return l.s == r.s
		}
		return false
	}
	if l.kind == kindNumber || r.kind == kindNumber {
		ln, lok := l.asNumber()
		rn, rok := r.asNumber()
		return lok && rok && ln == rn
	}
	return false
}

func order(l, r value) (int, error) {
	if l.kind == kindString && r.kind == kindString {
		return strings.Compare(l.s, r.s), nil
	}
	ln, lok := l.asNumber()
	rn, rok := r.asNumber()
	if l.kind == kindNull || r.kind == kindNull || !lok || !rok {
		return 0, fmt.Errorf("%w: cannot order %v and %v", errEval, l.kind, r.kind)
	}
	switch {
	case ln < rn:
		return -1, nil
	case ln > rn:
		return 1, nil
	}
	return 0, nil
}

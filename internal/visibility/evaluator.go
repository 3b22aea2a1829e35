// Package visibility decides whether a question is shown for the current answers.
//
// Conditions are written in a small closed grammar (comparisons, && || !,
// parentheses, string and number literals, and includes(collection, value)).
// They are parsed into a tree and evaluated directly; nothing is ever executed.
package visibility

import (
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"negopro-questionnaire/internal/domain"
)

// Evaluator caches compiled conditions. It is safe for concurrent use.
type Evaluator struct {
	log zerolog.Logger

	mu    sync.RWMutex
	cache map[string]compiled
}

type compiled struct {
	expr Expr
	err  error
}

func NewEvaluator(log zerolog.Logger) *Evaluator {
	return &Evaluator{log: log, cache: make(map[string]compiled)}
}

// IsVisible reports whether q is shown. Questions without a condition are
// always shown, and so are questions whose condition fails to parse or evaluate.
func (e *Evaluator) IsVisible(q domain.Question, answers domain.Answers) bool {
	if strings.TrimSpace(q.VisibleIf) == "" {
		return true
	}
	ok, err := e.Eval(q.VisibleIf, answers)
	if err != nil {
		e.log.Debug().Str("question", q.ID).Err(err).Msg("visible_if failed, showing question")
		return true
	}
	return ok
}

// Eval evaluates expr against answers.
func (e *Evaluator) Eval(expr string, answers domain.Answers) (bool, error) {
	c := e.compile(expr)
	if c.err != nil {
		return false, c.err
	}
	v, err := c.expr.eval(&env{answers: answers})
	if err != nil {
		return false, err
	}
	return v.truthy(), nil
}

func (e *Evaluator) compile(expr string) compiled {
	e.mu.RLock()
	c, ok := e.cache[expr]
	e.mu.RUnlock()
	if ok {
		return c
	}
	node, err := Parse(expr)
	c = compiled{expr: node, err: err}
	e.mu.Lock()
	e.cache[expr] = c
	e.mu.Unlock()
	return c
}

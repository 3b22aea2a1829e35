// Package form renders questions into field descriptors and collects their
// raw input back into typed answers.
package form

import (
	"strings"
	"unicode/utf8"

	"negopro-questionnaire/internal/domain"
	"negopro-questionnaire/internal/visibility"
)

// Engine combines the variant registry, the coercion rules and the visibility evaluator.
type Engine struct {
	registry   *Registry
	rules      []CoercionRule
	visibility *visibility.Evaluator
}

func NewEngine(registry *Registry, rules []CoercionRule, vis *visibility.Evaluator) *Engine {
	return &Engine{registry: registry, rules: rules, visibility: vis}
}

// IsVisible reports whether q is shown for answers.
func (e *Engine) IsVisible(q domain.Question, answers domain.Answers) bool {
	return e.visibility.IsVisible(q, answers)
}

// VisibleQuestions filters a phase down to the questions on screen.
func (e *Engine) VisibleQuestions(phase domain.Phase, answers domain.Answers) []domain.Question {
	out := make([]domain.Question, 0, len(phase.Questions))
	for _, q := range phase.Questions {
		if e.visibility.IsVisible(q, answers) {
			out = append(out, q)
		}
	}
	return out
}

// Describe renders one question. It never changes answers.
func (e *Engine) Describe(q domain.Question, answers domain.Answers) FieldDescriptor {
	return e.registry.Lookup(q.AnswerType).Describe(q, answers.Get(q.ID))
}

// Render describes every visible question of phase.
func (e *Engine) Render(phase domain.Phase, answers domain.Answers) []FieldDescriptor {
	visible := e.VisibleQuestions(phase, answers)
	out := make([]FieldDescriptor, 0, len(visible))
	for _, q := range visible {
		out = append(out, e.Describe(q, answers))
	}
	return out
}

// Seed builds the raw input a form would hold after rendering fields.
func Seed(fields []FieldDescriptor) Input {
	in := make(Input)
	for _, f := range fields {
		for name, values := range f.Input() {
			in[name] = values
		}
	}
	return in
}

// Input returns the raw values the field displays.
func (f FieldDescriptor) Input() Input {
	in := make(Input)
	switch f.Control {
	case ControlRadio, ControlCheckbox:
		vals := []string{}
		for _, c := range f.Choices {
			if c.Selected {
				vals = append(vals, c.Value)
			}
		}
		in[f.Name] = vals
	case ControlLikert:
		for _, item := range f.Items {
			if item.Value != "" {
				in[item.Name] = []string{item.Value}
			}
		}
	default:
		if f.Value != "" {
			in[f.Name] = []string{f.Value}
		}
	}
	return in
}

// Collect overlays the answers read from state onto prev and returns the
// result. prev is not modified. Calling it again with the same state yields
// an equal map.
func (e *Engine) Collect(prev domain.Answers, state FieldState) domain.Answers {
	out := prev.Clone()
	for _, q := range state.Questions {
		variant := e.registry.Lookup(q.AnswerType)
		v := variant.Collect(q, state.Input, tagFor(e.rules, q))
		if !v.IsSet() {
			v = variant.Default(q)
		}
		out.Set(q.ID, v)
	}
	return out
}

// IssueKind classifies a validation finding.
type IssueKind string

const (
	IssueRequired  IssueKind = "required"
	IssueOverLimit IssueKind = "over_limit"
)

// Issue is a validation finding for one question. Over-limit issues are soft.
type Issue struct {
	QuestionID string    `json:"questionId"`
	Kind       IssueKind `json:"kind"`
	Message    string    `json:"message"`
}

// Validate reports required visible questions left unanswered and limited text over its limit.
func (e *Engine) Validate(questions []domain.Question, answers domain.Answers) []Issue {
	var issues []Issue
	for _, q := range questions {
		if !e.visibility.IsVisible(q, answers) {
			continue
		}
		v := answers.Get(q.ID)
		if q.Required && isEmpty(v) {
			issues = append(issues, Issue{QuestionID: q.ID, Kind: IssueRequired, Message: q.ID + " is required."})
		}
		if q.AnswerType == domain.FreeTextLimited {
			if s, ok := v.Str(); ok && utf8.RuneCountInString(s) > q.CharLimit() {
				issues = append(issues, Issue{QuestionID: q.ID, Kind: IssueOverLimit, Message: q.ID + " is over the character limit."})
			}
		}
	}
	return issues
}

// Blocking keeps only the issues that prevent submission.
func Blocking(issues []Issue) []Issue {
	var out []Issue
	for _, is := range issues {
		if is.Kind == IssueRequired {
			out = append(out, is)
		}
	}
	return out
}

func isEmpty(v domain.AnswerValue) bool {
	switch v.Kind() {
	case domain.KindNone:
		return true
	case domain.KindText:
		s, _ := v.Str()
		return strings.TrimSpace(s) == ""
	case domain.KindList:
		l, _ := v.Strings()
		return len(l) == 0
	case domain.KindScale:
		m, _ := v.ScaleValues()
		return len(m) == 0
	}
	return false
}

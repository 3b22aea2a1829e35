package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// AnswerType names the input contract of a question.
type AnswerType string

const (
	SingleChoice     AnswerType = "single_choice"
	MultipleChoice   AnswerType = "multiple_choice"
	RatingScale      AnswerType = "rating_scale"
	LikertScaleGroup AnswerType = "likert_scale_group"
	FreeTextLimited  AnswerType = "free_text_limited"
	FreeText         AnswerType = "free_text"
)

// Coercion tags select how free-form input is normalized before it is stored.
const (
	CoerceNone     = "none"
	CoerceCurrency = "currency"
	CoercePercent  = "percent"
	CoerceRating   = "rating"
)

const (
	DefaultScaleMin = 1
	DefaultScaleMax = 5
	DefaultMaxChars = 400
)

// Option is one selectable value of a choice or likert question.
type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// UnmarshalJSON accepts bare strings as well as objects whose value is a
// string, number or bool.
func (o *Option) UnmarshalJSON(data []byte) error {
	var bare string
	if err := json.Unmarshal(data, &bare); err == nil {
		o.Value, o.Label = bare, bare
		return nil
	}
	var aux struct {
		Value any    `json:"value"`
		Label string `json:"label"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	o.Label = aux.Label
	switch v := aux.Value.(type) {
	case nil:
		o.Value = ""
	case string:
		o.Value = v
	case float64:
		o.Value = strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		o.Value = strconv.FormatBool(v)
	default:
		return fmt.Errorf("option value must be a scalar, got %T", v)
	}
	return nil
}

// ChoiceValue is the submitted value of a choice option; the label stands in
// when no value is declared.
func (o Option) ChoiceValue() string {
	if o.Value != "" {
		return o.Value
	}
	return o.Label
}

// SubKey identifies a likert row: the option value, or its index.
func (o Option) SubKey(index int) string {
	if o.Value != "" {
		return o.Value
	}
	return strconv.Itoa(index)
}

// Question is one schema-declared prompt.
type Question struct {
	ID          string     `json:"id"`
	Prompt      string     `json:"question"`
	AnswerType  AnswerType `json:"answerType"`
	Options     []Option   `json:"options,omitempty"`
	VisibleIf   string     `json:"visible_if,omitempty"`
	Required    bool       `json:"required,omitempty"`
	ScaleMin    int        `json:"scaleMin,omitempty"`
	ScaleMax    int        `json:"scaleMax,omitempty"`
	MaxChars    int        `json:"max_chars,omitempty"`
	Help        string     `json:"help,omitempty"`
	Placeholder string     `json:"placeholder,omitempty"`
	Rows        int        `json:"rows,omitempty"`
	Coerce      string     `json:"coerce,omitempty"`
	Aliases     []string   `json:"aliases,omitempty"`
}

// UnmarshalJSON also accepts the camelCase spellings used by older documents.
func (q *Question) UnmarshalJSON(data []byte) error {
	type plain Question
	aux := struct {
		*plain
		AltPrompt    string `json:"prompt"`
		AltVisibleIf string `json:"visibleIf"`
		AltMaxChars  int    `json:"maxChars"`
	}{plain: (*plain)(q)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if q.Prompt == "" {
		q.Prompt = aux.AltPrompt
	}
	if q.VisibleIf == "" {
		q.VisibleIf = aux.AltVisibleIf
	}
	if q.MaxChars == 0 {
		q.MaxChars = aux.AltMaxChars
	}
	q.AnswerType = AnswerType(strings.ToLower(strings.TrimSpace(string(q.AnswerType))))
	return nil
}

// Bounds returns the rating domain, defaulting to 1..5.
func (q Question) Bounds() (int, int) {
	lo, hi := q.ScaleMin, q.ScaleMax
	if lo == 0 && hi == 0 {
		return DefaultScaleMin, DefaultScaleMax
	}
	if hi == 0 {
		hi = DefaultScaleMax
	}
	return lo, hi
}

// CharLimit returns max_chars or the default of 400.
func (q Question) CharLimit() int {
	if q.MaxChars > 0 {
		return q.MaxChars
	}
	return DefaultMaxChars
}

// Phase is one step of the questionnaire.
type Phase struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Questions   []Question `json:"questions"`
}

// Schema is the ordered set of phases making up a questionnaire.
type Schema struct {
	ID      string              `json:"id,omitempty"`
	Title   string              `json:"title,omitempty"`
	Phases  []Phase             `json:"phases"`
	Aliases map[string][]string `json:"aliases,omitempty"`
	Sample  Answers             `json:"sample,omitempty"`
}

// Question looks up a question by id across all phases.
func (s Schema) Question(id string) (Question, bool) {
	for _, phase := range s.Phases {
		for _, q := range phase.Questions {
			if q.ID == id {
				return q, true
			}
		}
	}
	return Question{}, false
}

// Questions returns every question in phase order.
func (s Schema) Questions() []Question {
	var out []Question
	for _, phase := range s.Phases {
		out = append(out, phase.Questions...)
	}
	return out
}

package form

import (
	"slices"

	"negopro-questionnaire/internal/domain"
)

// Control is the presentation a field needs.
type Control string

const (
	ControlRadio    Control = "radio"
	ControlCheckbox Control = "checkbox"
	ControlNumber   Control = "number"
	ControlLikert   Control = "likert"
	ControlTextarea Control = "textarea"
	ControlText     Control = "text"
)

// Choice is one option of a radio or checkbox control.
type Choice struct {
	Value    string `json:"value"`
	Label    string `json:"label"`
	Selected bool   `json:"selected"`
}

// LikertItem is one row of a likert group. Name is the input name used for edits.
type LikertItem struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Name  string `json:"name"`
	Value string `json:"value,omitempty"`
}

// Counter is the live length indicator of a limited text area.
type Counter struct {
	Length    int  `json:"length"`
	Max       int  `json:"max"`
	OverLimit bool `json:"overLimit"`
}

// FieldDescriptor describes a rendered question without any DOM.
type FieldDescriptor struct {
	QuestionID  string       `json:"questionId"`
	Name        string       `json:"name"`
	AnswerType  string       `json:"answerType"`
	Control     Control      `json:"control"`
	Prompt      string       `json:"prompt"`
	Help        string       `json:"help,omitempty"`
	Required    bool         `json:"required,omitempty"`
	Placeholder string       `json:"placeholder,omitempty"`
	Rows        int          `json:"rows,omitempty"`
	Choices     []Choice     `json:"choices,omitempty"`
	Min         int          `json:"min,omitempty"`
	Max         int          `json:"max,omitempty"`
	Items       []LikertItem `json:"items,omitempty"`
	Value       string       `json:"value,omitempty"`
	Counter     *Counter     `json:"counter,omitempty"`
}

// Input is the raw field state keyed by input name, as a form would submit it.
type Input map[string][]string

// Set replaces the values of a field. An empty call clears it.
func (in Input) Set(name string, values ...string) {
	in[name] = slices.Clone(values)
}

// Toggle adds or removes one value of a multi-valued field.
func (in Input) Toggle(name, value string, on bool) {
	cur := in[name]
	idx := slices.Index(cur, value)
	switch {
	case on && idx < 0:
		in[name] = append(slices.Clone(cur), value)
	case !on && idx >= 0:
		in[name] = slices.Delete(slices.Clone(cur), idx, idx+1)
	case !on:
		in[name] = slices.Clone(cur)
	}
}

func (in Input) first(name string) string {
	if vals := in[name]; len(vals) > 0 {
		return vals[0]
	}
	return ""
}

// Clone returns a deep copy.
func (in Input) Clone() Input {
	out := make(Input, len(in))
	for k, v := range in {
		out[k] = slices.Clone(v)
	}
	return out
}

// Edit is a change reported by the presentation layer. With Toggle set, Value
// is switched on or off; otherwise Values replace the field's content.
type Edit struct {
	Field  string   `json:"field"`
	Values []string `json:"values,omitempty"`
	Toggle bool     `json:"toggle,omitempty"`
	Value  string   `json:"value,omitempty"`
	On     bool     `json:"on,omitempty"`
}

// Apply records e in the input.
func (e Edit) Apply(in Input) {
	if e.Toggle {
		in.Toggle(e.Field, e.Value, e.On)
		return
	}
	in.Set(e.Field, e.Values...)
}

// FieldState is what the collector reads: the questions on screen and their raw input.
type FieldState struct {
	Questions []domain.Question
	Input     Input
}

package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"math"
	"slices"
	"strconv"
	"strings"
)

// AnswerKind is the runtime shape of an AnswerValue.
type AnswerKind int

const (
	KindNone AnswerKind = iota
	KindText
	KindList
	KindNumber
	KindScale
)

func (k AnswerKind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindList:
		return "list"
	case KindNumber:
		return "number"
	case KindScale:
		return "scale"
	}
	return "none"
}

// AnswerValue holds one answer: a string, an ordered list of strings, a number
// or a mapping of likert sub-keys to integers. The zero value is "no answer".
type AnswerValue struct {
	kind  AnswerKind
	text  string
	list  []string
	num   float64
	scale map[string]int
}

func Text(s string) AnswerValue { return AnswerValue{kind: KindText, text: s} }

// List copies values; a nil slice still yields an (empty) list answer.
func List(values ...string) AnswerValue {
	return AnswerValue{kind: KindList, list: append([]string{}, values...)}
}

func Number(n float64) AnswerValue { return AnswerValue{kind: KindNumber, num: n} }

func Scale(m map[string]int) AnswerValue {
	out := make(map[string]int, len(m))
	maps.Copy(out, m)
	return AnswerValue{kind: KindScale, scale: out}
}

func (v AnswerValue) Kind() AnswerKind { return v.kind }
func (v AnswerValue) IsSet() bool      { return v.kind != KindNone }

// Str returns the text of a text answer.
func (v AnswerValue) Str() (string, bool) { return v.text, v.kind == KindText }

// Strings returns a copy of a list answer.
func (v AnswerValue) Strings() ([]string, bool) {
	if v.kind != KindList {
		return nil, false
	}
	return slices.Clone(v.list), true
}

func (v AnswerValue) Num() (float64, bool) { return v.num, v.kind == KindNumber }

// ScaleValues returns a copy of a likert mapping.
func (v AnswerValue) ScaleValues() (map[string]int, bool) {
	if v.kind != KindScale {
		return nil, false
	}
	return maps.Clone(v.scale), true
}

// String renders the value the way an input field would display it.
func (v AnswerValue) String() string {
	switch v.kind {
	case KindText:
		return v.text
	case KindList:
		return strings.Join(v.list, ", ")
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindScale:
		keys := slices.Sorted(maps.Keys(v.scale))
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+"="+strconv.Itoa(v.scale[k]))
		}
		return strings.Join(parts, ", ")
	}
	return ""
}

// Equal reports value equality.
func (v AnswerValue) Equal(o AnswerValue) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindText:
		return v.text == o.text
	case KindList:
		return slices.Equal(v.list, o.list)
	case KindNumber:
		return v.num == o.num
	case KindScale:
		return maps.Equal(v.scale, o.scale)
	}
	return true
}

func (v AnswerValue) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindText:
		return json.Marshal(v.text)
	case KindList:
		if v.list == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.list)
	case KindNumber:
		if math.IsNaN(v.num) || math.IsInf(v.num, 0) {
			return nil, fmt.Errorf("answer number %v is not representable", v.num)
		}
		return json.Marshal(v.num)
	case KindScale:
		return json.Marshal(v.scale)
	}
	return []byte("null"), nil
}

func (v *AnswerValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("empty answer value")
	}
	switch data[0] {
	case 'n':
		*v = AnswerValue{}
		return nil
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = Text(s)
		return nil
	case '[':
		var raw []any
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		items := make([]string, 0, len(raw))
		for _, item := range raw {
			switch t := item.(type) {
			case string:
				items = append(items, t)
			case float64:
				items = append(items, strconv.FormatFloat(t, 'f', -1, 64))
			case bool:
				items = append(items, strconv.FormatBool(t))
			default:
				return fmt.Errorf("list answer holds %T", item)
			}
		}
		*v = List(items...)
		return nil
	case '{':
		var raw map[string]float64
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		m := make(map[string]int, len(raw))
		for k, n := range raw {
			if n != math.Trunc(n) {
				return fmt.Errorf("scale answer %q is not an integer", k)
			}
			m[k] = int(n)
		}
		*v = Scale(m)
		return nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*v = Text(strconv.FormatBool(b))
		return nil
	}
	var n float64
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*v = Number(n)
	return nil
}

// Answers maps question ids to answers. Absent answers are never stored.
type Answers map[string]AnswerValue

// Get returns the answer for id; the zero value when absent.
func (a Answers) Get(id string) AnswerValue { return a[id] }

// Set stores v, or removes id when v is unset.
func (a Answers) Set(id string, v AnswerValue) {
	if !v.IsSet() {
		delete(a, id)
		return
	}
	a[id] = v
}

// Clone returns a deep copy.
func (a Answers) Clone() Answers {
	out := make(Answers, len(a))
	for k, v := range a {
		switch v.kind {
		case KindList:
			v.list = slices.Clone(v.list)
		case KindScale:
			v.scale = maps.Clone(v.scale)
		}
		out[k] = v
	}
	return out
}

// Equal reports value equality of both maps.
func (a Answers) Equal(o Answers) bool {
	return maps.EqualFunc(a, o, AnswerValue.Equal)
}

// UnmarshalJSON drops null entries so absence stays absence.
func (a *Answers) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Answers, len(raw))
	for k, msg := range raw {
		var v AnswerValue
		if err := json.Unmarshal(msg, &v); err != nil {
			return fmt.Errorf("answer %q: %w", k, err)
		}
		out.Set(k, v)
	}
	*a = out
	return nil
}

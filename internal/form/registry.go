package form

import (
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	"negopro-questionnaire/internal/domain"
)

// Variant is the rendering and collection contract of one answer type.
type Variant struct {
	// Describe renders q with its current answer.
	Describe func(q domain.Question, current domain.AnswerValue) FieldDescriptor
	// Collect reads q's answer out of raw input. tag is the resolved coercion tag.
	Collect func(q domain.Question, in Input, tag string) domain.AnswerValue
	// Default is the answer stored when Collect yields nothing.
	Default func(q domain.Question) domain.AnswerValue
}

// Registry maps answer types to variants, falling back to free text.
type Registry struct {
	variants map[domain.AnswerType]Variant
	fallback Variant
}

// NewRegistry returns a registry holding the built-in answer types.
func NewRegistry() *Registry {
	r := &Registry{
		variants: make(map[domain.AnswerType]Variant),
		fallback: freeTextVariant(),
	}
	r.Register(domain.SingleChoice, singleChoiceVariant())
	r.Register(domain.MultipleChoice, multipleChoiceVariant())
	r.Register(domain.RatingScale, ratingScaleVariant())
	r.Register(domain.LikertScaleGroup, likertVariant())
	r.Register(domain.FreeTextLimited, limitedTextVariant())
	r.Register(domain.FreeText, freeTextVariant())
	return r
}

// Register adds or replaces the variant for t. Missing hooks fall back to free text.
func (r *Registry) Register(t domain.AnswerType, v Variant) {
	if v.Describe == nil {
		v.Describe = r.fallback.Describe
	}
	if v.Collect == nil {
		v.Collect = r.fallback.Collect
	}
	if v.Default == nil {
		v.Default = absent
	}
	r.variants[t] = v
}

// Lookup returns the variant for t; unknown types get the free-text variant.
func (r *Registry) Lookup(t domain.AnswerType) Variant {
	if v, ok := r.variants[t]; ok {
		return v
	}
	return r.fallback
}

func absent(domain.Question) domain.AnswerValue { return domain.AnswerValue{} }

func baseDescriptor(q domain.Question, control Control) FieldDescriptor {
	prompt := q.Prompt
	if prompt == "" {
		prompt = q.ID
	}
	return FieldDescriptor{
		QuestionID: q.ID,
		Name:       q.ID,
		AnswerType: string(q.AnswerType),
		Control:    control,
		Prompt:     prompt,
		Help:       q.Help,
		Required:   q.Required,
	}
}

func choices(q domain.Question, selected func(string) bool) []Choice {
	out := make([]Choice, 0, len(q.Options))
	for _, o := range q.Options {
		v := o.ChoiceValue()
		label := o.Label
		if label == "" {
			label = v
		}
		out = append(out, Choice{Value: v, Label: label, Selected: selected(v)})
	}
	return out
}

func singleChoiceVariant() Variant {
	return Variant{
		Describe: func(q domain.Question, current domain.AnswerValue) FieldDescriptor {
			d := baseDescriptor(q, ControlRadio)
			cur := current.String()
			d.Choices = choices(q, func(v string) bool { return current.IsSet() && v == cur })
			return d
		},
		Collect: func(q domain.Question, in Input, _ string) domain.AnswerValue {
			v := in.first(q.ID)
			if v == "" {
				return domain.AnswerValue{}
			}
			return domain.Text(v)
		},
	}
}

// selectedList reads a stored answer as a list; a stale scalar counts as one selection.
func selectedList(current domain.AnswerValue) []string {
	if l, ok := current.Strings(); ok {
		return l
	}
	if current.IsSet() {
		return []string{current.String()}
	}
	return nil
}

func multipleChoiceVariant() Variant {
	return Variant{
		Describe: func(q domain.Question, current domain.AnswerValue) FieldDescriptor {
			d := baseDescriptor(q, ControlCheckbox)
			cur := selectedList(current)
			d.Choices = choices(q, func(v string) bool { return slices.Contains(cur, v) })
			return d
		},
		Collect: func(q domain.Question, in Input, _ string) domain.AnswerValue {
			raw := in[q.ID]
			picked := make([]string, 0, len(raw))
			for _, o := range q.Options {
				if v := o.ChoiceValue(); slices.Contains(raw, v) {
					picked = append(picked, v)
				}
			}
			for _, v := range raw {
				if v != "" && !slices.Contains(picked, v) {
					picked = append(picked, v)
				}
			}
			return domain.List(picked...)
		},
		Default: func(domain.Question) domain.AnswerValue { return domain.List() },
	}
}

func ratingScaleVariant() Variant {
	return Variant{
		Describe: func(q domain.Question, current domain.AnswerValue) FieldDescriptor {
			d := baseDescriptor(q, ControlNumber)
			d.Min, d.Max = q.Bounds()
			d.Placeholder = "Enter " + strconv.Itoa(d.Min) + "–" + strconv.Itoa(d.Max)
			d.Value = current.String()
			return d
		},
		Collect: func(q domain.Question, in Input, _ string) domain.AnswerValue {
			raw := in.first(q.ID)
			if strings.TrimSpace(raw) == "" {
				return domain.AnswerValue{}
			}
			return ParseRating(raw)
		},
	}
}

func likertVariant() Variant {
	return Variant{
		Describe: func(q domain.Question, current domain.AnswerValue) FieldDescriptor {
			d := baseDescriptor(q, ControlLikert)
			d.Min, d.Max = q.Bounds()
			cur, _ := current.ScaleValues()
			for i, o := range q.Options {
				key := o.SubKey(i)
				label := o.Label
				if label == "" {
					label = "Item " + strconv.Itoa(i+1)
				}
				item := LikertItem{Key: key, Label: label, Name: SubFieldName(q.ID, key)}
				if n, ok := cur[key]; ok {
					item.Value = strconv.Itoa(n)
				}
				d.Items = append(d.Items, item)
			}
			return d
		},
		// Rows are picked from a fixed scale, so values outside it are dropped.
		Collect: func(q domain.Question, in Input, _ string) domain.AnswerValue {
			lo, hi := q.Bounds()
			m := make(map[string]int)
			for i, o := range q.Options {
				key := o.SubKey(i)
				n, err := strconv.Atoi(strings.TrimSpace(in.first(SubFieldName(q.ID, key))))
				if err != nil || n < lo || n > hi {
					continue
				}
				m[key] = n
			}
			if len(m) == 0 {
				return domain.AnswerValue{}
			}
			return domain.Scale(m)
		},
	}
}

// SubFieldName is the input name of one likert row.
func SubFieldName(id, key string) string { return id + "__" + key }

func collectText(q domain.Question, in Input, tag string) domain.AnswerValue {
	raw := in.first(q.ID)
	if raw == "" {
		return domain.AnswerValue{}
	}
	return coerce(tag, raw)
}

func limitedTextVariant() Variant {
	return Variant{
		Describe: func(q domain.Question, current domain.AnswerValue) FieldDescriptor {
			d := baseDescriptor(q, ControlTextarea)
			d.Placeholder = q.Placeholder
			d.Rows = q.Rows
			if d.Rows == 0 {
				d.Rows = 3
			}
			d.Value = current.String()
			limit := q.CharLimit()
			length := utf8.RuneCountInString(d.Value)
			d.Counter = &Counter{Length: length, Max: limit, OverLimit: length > limit}
			return d
		},
		Collect: collectText,
	}
}

func freeTextVariant() Variant {
	return Variant{
		Describe: func(q domain.Question, current domain.AnswerValue) FieldDescriptor {
			d := baseDescriptor(q, ControlText)
			d.Placeholder = q.Placeholder
			if d.Placeholder == "" {
				d.Placeholder = q.ID
			}
			d.Value = current.String()
			return d
		},
		Collect: collectText,
		Default: absent,
	}
}

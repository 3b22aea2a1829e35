// Package payload assembles the envelope posted to the report service.
package payload

import (
	"maps"
	"slices"

	"negopro-questionnaire/internal/domain"
)

// Visibility decides whether a question is shown for a set of answers.
type Visibility interface {
	IsVisible(q domain.Question, answers domain.Answers) bool
}

// DefaultAliases is the compatibility table of the report service: each
// source answer is also emitted under the listed target keys.
func DefaultAliases() map[string][]string {
	return map[string][]string{
		"role": {"target_title"},
	}
}

// Builder turns session answers into a domain.Payload.
type Builder struct {
	aliases    map[string][]string
	visibility Visibility
}

// NewBuilder takes a fixed alias table; the schema may add more per build.
// A nil visibility disables pruning of hidden answers.
func NewBuilder(aliases map[string][]string, vis Visibility) *Builder {
	table := make(map[string][]string, len(aliases))
	for src, targets := range aliases {
		table[src] = slices.Clone(targets)
	}
	return &Builder{aliases: table, visibility: vis}
}

// Build prunes answers of questions that are hidden, then fills alias keys.
// An alias never overwrites an answer already present under the target key.
// answers is not modified.
func (b *Builder) Build(schema domain.Schema, answers domain.Answers) domain.Payload {
	out := b.prune(schema, answers.Clone())

	aliases := b.aliasesFor(schema)
	for _, src := range slices.Sorted(maps.Keys(aliases)) {
		v := out.Get(src)
		if !v.IsSet() {
			continue
		}
		for _, target := range aliases[src] {
			if target == src || out.Get(target).IsSet() {
				continue
			}
			out.Set(target, v)
		}
	}
	return domain.Payload{Questionnaire: out}
}

// prune drops hidden answers until the visible set is stable, so a
// question depending on a hidden one is dropped as well.
func (b *Builder) prune(schema domain.Schema, answers domain.Answers) domain.Answers {
	if b.visibility == nil {
		return answers
	}
	questions := schema.Questions()
	for range len(questions) + 1 {
		changed := false
		for _, q := range questions {
			if _, ok := answers[q.ID]; !ok {
				continue
			}
			if !b.visibility.IsVisible(q, answers) {
				delete(answers, q.ID)
				changed = true
			}
		}
		if !changed {
			break
		}
	}
	return answers
}

func (b *Builder) aliasesFor(schema domain.Schema) map[string][]string {
	merged := make(map[string][]string, len(b.aliases)+len(schema.Aliases))
	add := func(src string, targets []string) {
		for _, t := range targets {
			if !slices.Contains(merged[src], t) {
				merged[src] = append(merged[src], t)
			}
		}
	}
	for src, targets := range b.aliases {
		add(src, targets)
	}
	for src, targets := range schema.Aliases {
		add(src, targets)
	}
	for _, q := range schema.Questions() {
		add(q.ID, q.Aliases)
	}
	return merged
}

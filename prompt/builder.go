package prompt

import (
	"strings"

	"github.com/vinayprograms/genmux/errors"
	"github.com/vinayprograms/genmux/tasks"
)

// Builder produces the prompt pair for a declared task set.
type Builder interface {
	Build(specs []tasks.Spec) (prompt, system string, err error)
}

// Template names the default builder consults in the cache.
const (
	preambleTemplate = "preamble"
	systemTemplate   = "system"
)

const defaultPreamble = `Produce the output for every section below in a single response.
Bracket each section's content exactly between its START and END markers,
on their own lines, and complete every section.`

const defaultSystem = `You are a technical writer producing structured documentation sections.`

// TemplateBuilder renders the multiplexed prompt: a preamble followed by
// one block per task, each bracketed by the task's boundary markers, in
// priority order. Preamble and system text come from the cache when present.
type TemplateBuilder struct {
	cache *Cache
}

// NewTemplateBuilder creates the default builder. cache may be nil; the
// built-in preamble and system text are used instead.
func NewTemplateBuilder(cache *Cache) *TemplateBuilder {
	return &TemplateBuilder{cache: cache}
}

// Build implements Builder.
func (b *TemplateBuilder) Build(specs []tasks.Spec) (string, string, error) {
	if len(specs) == 0 {
		return "", "", errors.InvalidInput("no tasks to build a prompt for")
	}

	preamble := defaultPreamble
	system := defaultSystem
	if b.cache != nil {
		if text, ok := b.cache.Lookup(preambleTemplate); ok {
			preamble = text
		}
		if text, ok := b.cache.Lookup(systemTemplate); ok {
			system = text
		}
	}

	var p strings.Builder
	p.WriteString(preamble)
	p.WriteString("\n")

	for _, spec := range tasks.ByPriority(specs) {
		p.WriteString("\n")
		if spec.DisplayName != "" {
			p.WriteString("Section: " + spec.DisplayName + "\n")
		}
		p.WriteString("Open with the line: " + tasks.StartMarker(spec.Key()) + "\n")
		p.WriteString("Close with the line: " + tasks.EndMarker(spec.Key()) + "\n")
		if spec.PromptFragment != "" {
			p.WriteString(spec.PromptFragment + "\n")
		}
	}

	return p.String(), system, nil
}

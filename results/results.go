// Package results folds per-task resolutions into one generation outcome
// with derived confidence.
package results

import (
	"github.com/vinayprograms/genmux/tasks"
)

// Mode records how a task's content was obtained.
type Mode string

const (
	// ModeLive means the demultiplexer resolved the task during streaming.
	ModeLive Mode = "live"

	// ModeFallback means a post-stream recovery strategy resolved it.
	ModeFallback Mode = "fallback"

	// ModeMissing means no strategy produced content for the task.
	ModeMissing Mode = "missing"
)

// Status is the overall run status.
type Status string

const (
	// StatusSuccess means every declared task resolved.
	StatusSuccess Status = "success"

	// StatusPartial means some tasks resolved and some did not.
	StatusPartial Status = "partial"

	// StatusFailed means no task resolved.
	StatusFailed Status = "failed"
)

// TaskOutcome is one declared task's result.
type TaskOutcome struct {
	TaskID     string   `json:"task_id"`
	Content    string   `json:"content,omitempty"`
	Confidence float64  `json:"confidence"`
	Mode       Mode     `json:"mode"`
	References []string `json:"references,omitempty"`

	// Path is where the content was persisted. Empty for missing tasks;
	// content that never reached disk carries no path.
	Path string `json:"path,omitempty"`
}

// Outcome is the aggregate result of one generation run.
type Outcome struct {
	Status            Status        `json:"status"`
	Outcomes          []TaskOutcome `json:"outcomes"`
	OverallConfidence float64       `json:"overall_confidence"`
	Warnings          []string      `json:"warnings,omitempty"`
}

// Resolved carries one resolved task's content into aggregation.
type Resolved struct {
	Content string
	Mode    Mode
	Path    string

	// Degraded marks content resolved during a degraded attempt.
	Degraded bool
}

// Aggregate builds the run outcome for a declared task set. Every spec
// appears in the result exactly once, in declaration order; specs absent
// from resolved are reported missing with zero confidence. Overall
// confidence is the mean over resolved tasks only, zero when none resolved.
func Aggregate(specs []tasks.Spec, resolved map[string]Resolved, warnings []string) *Outcome {
	outcome := &Outcome{
		Outcomes: make([]TaskOutcome, 0, len(specs)),
		Warnings: warnings,
	}

	var sum float64
	var resolvedCount int
	for _, spec := range specs {
		res, ok := resolved[spec.ID]
		if !ok {
			outcome.Outcomes = append(outcome.Outcomes, TaskOutcome{
				TaskID: spec.ID,
				Mode:   ModeMissing,
			})
			continue
		}

		refs := ExtractReferences(res.Content)
		conf := Score(res.Content, res.Mode, len(refs), res.Degraded)
		outcome.Outcomes = append(outcome.Outcomes, TaskOutcome{
			TaskID:     spec.ID,
			Content:    res.Content,
			Confidence: conf,
			Mode:       res.Mode,
			References: refs,
			Path:       res.Path,
		})
		sum += conf
		resolvedCount++
	}

	switch {
	case resolvedCount == len(specs) && len(specs) > 0:
		outcome.Status = StatusSuccess
	case resolvedCount > 0:
		outcome.Status = StatusPartial
	default:
		outcome.Status = StatusFailed
	}

	if resolvedCount > 0 {
		outcome.OverallConfidence = sum / float64(resolvedCount)
	}

	return outcome
}

// ResolvedCount returns how many tasks carry content.
func (o *Outcome) ResolvedCount() int {
	n := 0
	for _, t := range o.Outcomes {
		if t.Mode != ModeMissing {
			n++
		}
	}
	return n
}

// Missing returns the IDs of tasks that produced no content.
func (o *Outcome) Missing() []string {
	var out []string
	for _, t := range o.Outcomes {
		if t.Mode == ModeMissing {
			out = append(out, t.TaskID)
		}
	}
	return out
}

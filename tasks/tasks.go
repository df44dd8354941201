package tasks

import (
	"errors"
	"fmt"
	"sort"
)

// Common errors.
var (
	// ErrNoTasks indicates an empty task set was supplied.
	ErrNoTasks = errors.New("no tasks declared")

	// ErrDuplicateID indicates two specs share an ID.
	ErrDuplicateID = errors.New("duplicate task ID")

	// ErrInvalidSpec indicates a spec is missing required fields.
	ErrInvalidSpec = errors.New("invalid task spec")
)

// Spec describes one deliverable multiplexed inside a generation call.
// Specs are immutable: the set is fixed before a session starts.
type Spec struct {
	// ID uniquely identifies the task within the session.
	ID string

	// DisplayName is the human-readable title, used for file headers and
	// the heading-based extraction fallback.
	DisplayName string

	// PromptFragment is the per-task portion of the multiplexed prompt.
	PromptFragment string

	// OutputKey is the key embedded in the task's boundary markers.
	// Defaults to ID when empty.
	OutputKey string

	// Priority orders tasks within the prompt. Lower runs earlier.
	Priority int
}

// Key returns the marker key for the spec (OutputKey, falling back to ID).
func (s Spec) Key() string {
	if s.OutputKey != "" {
		return s.OutputKey
	}
	return s.ID
}

// Validate checks a single spec for required fields. DisplayName is
// optional; tasks without one just skip the heading-based extraction
// fallback.
func (s Spec) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("%w: empty ID", ErrInvalidSpec)
	}
	return nil
}

// Validate checks a task set: non-empty, each spec valid, IDs and keys unique.
func Validate(specs []Spec) error {
	if len(specs) == 0 {
		return ErrNoTasks
	}
	ids := make(map[string]bool, len(specs))
	keys := make(map[string]bool, len(specs))
	for _, s := range specs {
		if err := s.Validate(); err != nil {
			return err
		}
		if ids[s.ID] {
			return fmt.Errorf("%w: %s", ErrDuplicateID, s.ID)
		}
		ids[s.ID] = true
		if keys[s.Key()] {
			return fmt.Errorf("%w: output key %s", ErrDuplicateID, s.Key())
		}
		keys[s.Key()] = true
	}
	return nil
}

// ByPriority returns a copy of specs sorted by Priority, stable on input order.
func ByPriority(specs []Spec) []Spec {
	sorted := make([]Spec, len(specs))
	copy(sorted, specs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority < sorted[j].Priority
	})
	return sorted
}

// StartMarker returns the canonical start delimiter for an output key.
func StartMarker(key string) string {
	return fmt.Sprintf("=== TASK_START: %s ===", key)
}

// EndMarker returns the canonical end delimiter for an output key.
func EndMarker(key string) string {
	return fmt.Sprintf("=== TASK_END: %s ===", key)
}

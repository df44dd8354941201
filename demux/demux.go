package demux

import (
	"strings"
	"unicode/utf8"

	"github.com/vinayprograms/genmux/logging"
	"github.com/vinayprograms/genmux/tasks"
)

// minAcceptLength is the minimum extracted length for a task to resolve.
// Shorter spans stay open for a later, more complete scan of the buffer.
const minAcceptLength = 100

// State is the per-task extraction state.
type State string

const (
	// StateUnopened means the start marker has not been seen yet.
	StateUnopened State = "unopened"

	// StateOpened means the start marker was seen but the segment is not
	// complete (no end marker, or the span is below the acceptance length).
	StateOpened State = "opened"

	// StateResolved means the segment was extracted and handed to the sink.
	// Resolved is terminal; rescans and the fallback pass never reopen it.
	StateResolved State = "resolved"

	// StateMissing means the fallback pass found nothing for the task.
	StateMissing State = "missing"
)

// Mode records how a resolved task's content was obtained.
type Mode string

const (
	ModeLive     Mode = "live"
	ModeFallback Mode = "fallback"
)

// Sink receives each resolved task's content exactly once. The persistence
// layer implements it; tests substitute their own.
type Sink interface {
	Resolve(taskID, content string) error
}

// Resolution is one resolved task's extraction record.
type Resolution struct {
	TaskID  string
	Content string
	Mode    Mode

	// Degraded marks a task resolved while the degraded attempt streamed.
	// Confidence scoring damps such resolutions even though the extracted
	// content is complete.
	Degraded bool
}

// Demux incrementally scans the growing stream buffer for per-task boundary
// markers and emits each completed segment exactly once.
//
// It is not safe for concurrent use; the stream model is cooperative, with
// Scan running synchronously inside each content-delta handler.
type Demux struct {
	specs    []tasks.Spec
	sink     Sink
	log      *logging.Logger
	states   map[string]State
	resolved map[string]Resolution
	order    []string
	warnings []string
	degraded bool
}

// New creates a demultiplexer for a fixed task set.
func New(specs []tasks.Spec, sink Sink, log *logging.Logger) *Demux {
	if log == nil {
		log = logging.Nop()
	}
	states := make(map[string]State, len(specs))
	for _, spec := range specs {
		states[spec.ID] = StateUnopened
	}
	return &Demux{
		specs:    specs,
		sink:     sink,
		log:      log.WithComponent("demux"),
		states:   states,
		resolved: make(map[string]Resolution, len(specs)),
	}
}

// BeginAttempt resets tasks left open by an aborted stream back to unopened
// and records whether the coming stream is the degraded attempt, so its
// resolutions carry the flag. Resolved tasks are never reset; their content
// already reached the sink.
func (d *Demux) BeginAttempt(degraded bool) {
	d.degraded = degraded
	for id, state := range d.states {
		if state == StateOpened {
			d.states[id] = StateUnopened
		}
	}
}

// Scan searches the cumulative buffer for every unresolved task's markers,
// resolving each task whose complete segment clears the acceptance length.
// The scan re-runs over the full buffer on each call; buffer size is bounded
// per session, so the quadratic rescan is acceptable.
func (d *Demux) Scan(buffer string) {
	for _, spec := range d.specs {
		if d.states[spec.ID] == StateResolved {
			continue
		}

		content, found := extractExact(buffer, spec.Key())
		if !found {
			continue
		}
		// Start marker present. An incomplete or short segment counts as
		// progress only.
		if d.states[spec.ID] == StateUnopened {
			d.states[spec.ID] = StateOpened
			d.log.Debug("task opened", map[string]interface{}{"task": spec.ID})
		}
		if content == "" || utf8.RuneCountInString(content) < minAcceptLength {
			continue
		}

		d.resolve(spec.ID, content, ModeLive)
	}
}

// resolve hands content to the sink and marks the task resolved. A sink
// failure is recorded as a warning for that task only; extraction itself
// succeeded, so the task still resolves.
func (d *Demux) resolve(taskID, content string, mode Mode) {
	if d.sink != nil {
		if err := d.sink.Resolve(taskID, content); err != nil {
			d.warnings = append(d.warnings,
				"persisting task "+taskID+": "+err.Error())
			d.log.Warn("sink rejected resolved task", map[string]interface{}{
				"task":  taskID,
				"error": err.Error(),
			})
		}
	}
	d.states[taskID] = StateResolved
	d.resolved[taskID] = Resolution{
		TaskID:   taskID,
		Content:  content,
		Mode:     mode,
		Degraded: mode == ModeLive && d.degraded,
	}
	d.order = append(d.order, taskID)
	d.log.Info("task resolved", map[string]interface{}{
		"task": taskID,
		"mode": string(mode),
	})
}

// extractExact finds the span between a task's exact start and end markers.
// The second return is true when the start marker exists at all; content is
// non-empty only when a trimmed complete segment was found. An end marker
// with no start marker after it counts as not found.
func extractExact(buffer, key string) (string, bool) {
	start := strings.Index(buffer, tasks.StartMarker(key))
	if start < 0 {
		return "", false
	}
	bodyStart := start + len(tasks.StartMarker(key))
	end := strings.Index(buffer[bodyStart:], tasks.EndMarker(key))
	if end < 0 {
		return "", true
	}
	return strings.TrimSpace(buffer[bodyStart : bodyStart+end]), true
}

// State returns the current extraction state for a task.
func (d *Demux) State(taskID string) State {
	return d.states[taskID]
}

// Resolution returns the extraction record for a resolved task.
func (d *Demux) Resolution(taskID string) (Resolution, bool) {
	res, ok := d.resolved[taskID]
	return res, ok
}

// ResolvedOrder returns task IDs in the order their segments completed in
// the buffer, which is not declaration order.
func (d *Demux) ResolvedOrder() []string {
	out := make([]string, len(d.order))
	copy(out, d.order)
	return out
}

// Unresolved returns the specs not yet resolved, in declaration order.
func (d *Demux) Unresolved() []tasks.Spec {
	var out []tasks.Spec
	for _, spec := range d.specs {
		if d.states[spec.ID] != StateResolved {
			out = append(out, spec)
		}
	}
	return out
}

// Warnings returns per-task warnings accumulated so far.
func (d *Demux) Warnings() []string {
	out := make([]string, len(d.warnings))
	copy(out, d.warnings)
	return out
}

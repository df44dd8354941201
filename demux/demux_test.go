package demux

import (
	"fmt"
	"strings"
	"testing"

	"github.com/vinayprograms/genmux/tasks"
)

// recordingSink captures resolutions and optionally fails.
type recordingSink struct {
	resolved map[string]string
	calls    map[string]int
	failFor  map[string]bool
}

func newRecordingSink() *recordingSink {
	return &recordingSink{
		resolved: make(map[string]string),
		calls:    make(map[string]int),
		failFor:  make(map[string]bool),
	}
}

func (s *recordingSink) Resolve(taskID, content string) error {
	s.calls[taskID]++
	if s.failFor[taskID] {
		return fmt.Errorf("disk full")
	}
	s.resolved[taskID] = content
	return nil
}

func longBody(word string) string {
	return strings.Repeat(word+" ", 30)
}

func segment(key, body string) string {
	return tasks.StartMarker(key) + "\n" + body + "\n" + tasks.EndMarker(key) + "\n"
}

// ============================================================================
// LIVE SCANNING
// ============================================================================

func TestScan_ResolvesCompleteSegment(t *testing.T) {
	specs := []tasks.Spec{{ID: "overview", DisplayName: "Overview", OutputKey: "overview"}}
	sink := newRecordingSink()
	d := New(specs, sink, nil)

	body := longBody("architecture overview content")
	d.Scan(segment("overview", body))

	if d.State("overview") != StateResolved {
		t.Fatalf("state = %v, want resolved", d.State("overview"))
	}
	if got := sink.resolved["overview"]; got != strings.TrimSpace(body) {
		t.Errorf("sink content = %q, want trimmed body", got)
	}
	res, ok := d.Resolution("overview")
	if !ok || res.Mode != ModeLive {
		t.Errorf("expected live resolution record, got %+v ok=%v", res, ok)
	}
}

func TestScan_StartWithoutEndOpens(t *testing.T) {
	specs := []tasks.Spec{{ID: "a", OutputKey: "a"}}
	d := New(specs, newRecordingSink(), nil)

	d.Scan(tasks.StartMarker("a") + "\npartial content so far")

	if d.State("a") != StateOpened {
		t.Errorf("state = %v, want opened", d.State("a"))
	}
}

func TestScan_ShortSegmentStaysOpen(t *testing.T) {
	specs := []tasks.Spec{{ID: "a", OutputKey: "a"}}
	sink := newRecordingSink()
	d := New(specs, sink, nil)

	d.Scan(segment("a", "too short"))

	if d.State("a") != StateOpened {
		t.Errorf("state = %v, want opened for sub-threshold segment", d.State("a"))
	}
	if sink.calls["a"] != 0 {
		t.Error("sub-threshold segment must not reach the sink")
	}

	// A later, more complete buffer resolves the same task.
	d.Scan(segment("a", longBody("now the full content has arrived")))
	if d.State("a") != StateResolved {
		t.Errorf("state = %v, want resolved after complete rescan", d.State("a"))
	}
}

func TestScan_EndBeforeStartIsNotFound(t *testing.T) {
	specs := []tasks.Spec{{ID: "a", OutputKey: "a"}}
	d := New(specs, newRecordingSink(), nil)

	d.Scan(tasks.EndMarker("a") + "\nsome text\n")

	if d.State("a") != StateUnopened {
		t.Errorf("state = %v, want unopened when end precedes start", d.State("a"))
	}
}

func TestScan_RescanDoesNotResolveTwice(t *testing.T) {
	specs := []tasks.Spec{{ID: "a", OutputKey: "a"}}
	sink := newRecordingSink()
	d := New(specs, sink, nil)

	buffer := segment("a", longBody("stable content"))
	d.Scan(buffer)
	d.Scan(buffer)
	d.Scan(buffer + "trailing deltas")

	if sink.calls["a"] != 1 {
		t.Errorf("sink called %d times, want exactly once", sink.calls["a"])
	}
}

func TestScan_SinkFailureIsWarningNotFatal(t *testing.T) {
	specs := []tasks.Spec{{ID: "a", OutputKey: "a"}}
	sink := newRecordingSink()
	sink.failFor["a"] = true
	d := New(specs, sink, nil)

	d.Scan(segment("a", longBody("content")))

	if d.State("a") != StateResolved {
		t.Errorf("sink failure must not block resolution, state = %v", d.State("a"))
	}
	if len(d.Warnings()) != 1 {
		t.Errorf("expected one warning, got %v", d.Warnings())
	}
}

func TestScan_ResolutionOrderFollowsBuffer(t *testing.T) {
	specs := []tasks.Spec{
		{ID: "first-declared", OutputKey: "first"},
		{ID: "second-declared", OutputKey: "second"},
	}
	d := New(specs, newRecordingSink(), nil)

	// The second declared task completes first in the stream.
	d.Scan(segment("second", longBody("second task content")))
	d.Scan(segment("second", longBody("second task content")) +
		segment("first", longBody("first task content")))

	order := d.ResolvedOrder()
	if len(order) != 2 || order[0] != "second-declared" || order[1] != "first-declared" {
		t.Errorf("resolution order = %v, want buffer completion order", order)
	}
}

// ============================================================================
// ATTEMPT BOUNDARIES
// ============================================================================

func TestBeginAttempt_ResetsOpenedOnly(t *testing.T) {
	specs := []tasks.Spec{
		{ID: "done", OutputKey: "done"},
		{ID: "open", OutputKey: "open"},
	}
	d := New(specs, newRecordingSink(), nil)

	d.Scan(segment("done", longBody("complete content")) + tasks.StartMarker("open"))
	if d.State("done") != StateResolved || d.State("open") != StateOpened {
		t.Fatalf("precondition failed: done=%v open=%v", d.State("done"), d.State("open"))
	}

	d.BeginAttempt(false)

	if d.State("done") != StateResolved {
		t.Error("resolved task must survive attempt reset")
	}
	if d.State("open") != StateUnopened {
		t.Error("opened task must reset to unopened")
	}
}

func TestBeginAttempt_DegradedFlagsResolutions(t *testing.T) {
	specs := []tasks.Spec{
		{ID: "before", OutputKey: "before"},
		{ID: "during", OutputKey: "during"},
	}
	d := New(specs, newRecordingSink(), nil)

	d.BeginAttempt(false)
	d.Scan(segment("before", longBody("primary attempt content")))

	d.BeginAttempt(true)
	d.Scan(segment("during", longBody("degraded attempt content")))

	if res, _ := d.Resolution("before"); res.Degraded {
		t.Error("primary attempt resolution must not carry the degraded flag")
	}
	if res, _ := d.Resolution("during"); !res.Degraded {
		t.Error("degraded attempt resolution should carry the degraded flag")
	}
}

// ============================================================================
// FALLBACK STRATEGIES
// ============================================================================

func TestFallback_ExactMarkersFirst(t *testing.T) {
	specs := []tasks.Spec{{ID: "a", OutputKey: "a"}}
	d := New(specs, newRecordingSink(), nil)

	// Segment only completed after the stream closed; no live scan saw it.
	d.Fallback(segment("a", longBody("late content")))

	res, ok := d.Resolution("a")
	if !ok || res.Mode != ModeFallback {
		t.Fatalf("expected fallback resolution, got %+v ok=%v", res, ok)
	}
}

func TestFallback_MarkerVariants(t *testing.T) {
	body := longBody("drifted delimiter content")
	tests := []struct {
		name   string
		buffer string
	}{
		{"lowercase loose equals", "== task_start: notes ==\n" + body + "\n== task_end: notes ==\n"},
		{"html comment", "<!-- TASK_START: notes -->\n" + body + "\n<!-- TASK_END: notes -->\n"},
		{"double bracket", "[[TASK START notes]]\n" + body + "\n[[TASK END notes]]\n"},
		{"heading marker", "## TASK_START: notes\n" + body + "\n## TASK_END: notes\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			specs := []tasks.Spec{{ID: "notes", OutputKey: "notes"}}
			d := New(specs, newRecordingSink(), nil)
			d.Fallback(tt.buffer)
			if d.State("notes") != StateResolved {
				t.Errorf("state = %v, want resolved via variant match", d.State("notes"))
			}
		})
	}
}

func TestFallback_HeadingMatch(t *testing.T) {
	specs := []tasks.Spec{{ID: "arch", DisplayName: "Architecture Overview", OutputKey: "arch"}}
	sink := newRecordingSink()
	d := New(specs, sink, nil)

	buffer := "# Introduction\nintro text\n" +
		"## Architecture Overview\n" + longBody("the architecture content") +
		"\n### Subsection\nnested detail stays included\n" +
		"## Next Section\nexcluded\n"
	d.Fallback(buffer)

	if d.State("arch") != StateResolved {
		t.Fatalf("state = %v, want resolved via heading match", d.State("arch"))
	}
	content := sink.resolved["arch"]
	if !strings.Contains(content, "nested detail stays included") {
		t.Error("lower-rank headings should stay inside the section")
	}
	if strings.Contains(content, "excluded") {
		t.Error("equal-rank heading should end the section")
	}
}

func TestFallback_StrategyOrdering(t *testing.T) {
	// Buffer has both a variant marker pair and a matching heading; the
	// variant strategy must win because it runs earlier.
	specs := []tasks.Spec{{ID: "a", DisplayName: "Section A", OutputKey: "a"}}
	sink := newRecordingSink()
	d := New(specs, sink, nil)

	variantBody := longBody("variant content")
	headingBody := longBody("heading content")
	buffer := "<!-- TASK_START: a -->\n" + variantBody + "\n<!-- TASK_END: a -->\n" +
		"## Section A\n" + headingBody + "\n"
	d.Fallback(buffer)

	if !strings.Contains(sink.resolved["a"], "variant content") {
		t.Errorf("variant strategy should win over heading match, got %q", sink.resolved["a"])
	}
}

func TestFallback_HeadingOnlyAfterMarkersFail(t *testing.T) {
	// No markers at all; strategy 3 is the only route.
	specs := []tasks.Spec{{ID: "a", DisplayName: "Section A", OutputKey: "a"}}
	d := New(specs, newRecordingSink(), nil)

	d.Fallback("## Section A\n" + longBody("heading only content"))

	if d.State("a") != StateResolved {
		t.Errorf("state = %v, want resolved via heading fallback", d.State("a"))
	}
}

func TestFallback_NoMatchIsMissing(t *testing.T) {
	specs := []tasks.Spec{{ID: "ghost", DisplayName: "Ghost Section", OutputKey: "ghost"}}
	d := New(specs, newRecordingSink(), nil)

	d.Fallback("unrelated output with no markers or headings")

	if d.State("ghost") != StateMissing {
		t.Errorf("state = %v, want missing", d.State("ghost"))
	}
	if len(d.Warnings()) == 0 {
		t.Error("missing task should record a warning")
	}
}

func TestFallback_NeverReopensResolved(t *testing.T) {
	specs := []tasks.Spec{{ID: "a", OutputKey: "a"}}
	sink := newRecordingSink()
	d := New(specs, sink, nil)

	d.Scan(segment("a", longBody("live content")))
	d.Fallback(segment("a", longBody("different later content")))

	if sink.calls["a"] != 1 {
		t.Errorf("fallback must not re-resolve, sink called %d times", sink.calls["a"])
	}
	if !strings.Contains(sink.resolved["a"], "live content") {
		t.Error("live resolution must not be overwritten by fallback")
	}
}

// ============================================================================
// MIXED OUTCOMES
// ============================================================================

func TestPartialResolution(t *testing.T) {
	specs := []tasks.Spec{
		{ID: "done", DisplayName: "Done", OutputKey: "done"},
		{ID: "lost", DisplayName: "Lost", OutputKey: "lost"},
	}
	d := New(specs, newRecordingSink(), nil)

	buffer := segment("done", longBody("completed before close")) +
		tasks.StartMarker("lost") + "\ntruncated mid-"
	d.Scan(buffer)
	d.Fallback(buffer)

	if d.State("done") != StateResolved {
		t.Errorf("done state = %v, want resolved", d.State("done"))
	}
	if d.State("lost") != StateMissing {
		t.Errorf("lost state = %v, want missing", d.State("lost"))
	}
	if got := len(d.Unresolved()); got != 1 {
		t.Errorf("unresolved count = %d, want 1", got)
	}
}

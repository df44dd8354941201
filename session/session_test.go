package session

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vinayprograms/genmux/errors"
	"github.com/vinayprograms/genmux/events"
	"github.com/vinayprograms/genmux/llm"
	"github.com/vinayprograms/genmux/persist"
	"github.com/vinayprograms/genmux/results"
	"github.com/vinayprograms/genmux/tasks"
)

// sequenceEngine replays one scripted turn per call.
type sequenceEngine struct {
	mu    sync.Mutex
	turns []llm.Turn
	calls int
}

func (e *sequenceEngine) Stream(ctx context.Context, req llm.Request, emit func(llm.Event)) (*llm.Turn, error) {
	e.mu.Lock()
	turn := llm.Turn{Reason: llm.StopError, Detail: "script exhausted"}
	if e.calls < len(e.turns) {
		turn = e.turns[e.calls]
	}
	e.calls++
	e.mu.Unlock()

	if turn.Content != "" {
		emit(llm.Event{Type: llm.EventContentDelta, Delta: turn.Content})
	}
	return &turn, nil
}

func twoSpecs() []tasks.Spec {
	return []tasks.Spec{
		{ID: "overview", DisplayName: "Overview", PromptFragment: "summarize", OutputKey: "overview"},
		{ID: "details", DisplayName: "Details", PromptFragment: "elaborate", OutputKey: "details"},
	}
}

func segment(key, body string) string {
	return tasks.StartMarker(key) + "\n" + body + "\n" + tasks.EndMarker(key) + "\n"
}

func body(word string) string {
	return strings.Repeat(word+" ", 30)
}

func fastConfig(dir string) Config {
	return Config{
		Timeout:        time.Second,
		MaxAttempts:    2,
		BaseRetryDelay: time.Millisecond,
		OutputDir:      dir,
	}
}

// ============================================================================
// CLEAN RUNS
// ============================================================================

func TestRun_AllTasksResolve(t *testing.T) {
	dir := t.TempDir()
	content := segment("overview", body("overview content")) +
		segment("details", body("detail content"))
	engine := llm.NewScriptEngine(content)
	runner := NewRunner(engine)

	outcome, err := runner.Run(context.Background(), twoSpecs(), nil, fastConfig(dir))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Status != results.StatusSuccess {
		t.Errorf("status = %v, want success", outcome.Status)
	}
	if len(outcome.Outcomes) != 2 {
		t.Fatalf("outcomes = %d, want 2", len(outcome.Outcomes))
	}
	for _, o := range outcome.Outcomes {
		if o.Mode != results.ModeLive {
			t.Errorf("task %s mode = %v, want live", o.TaskID, o.Mode)
		}
		if o.Confidence <= 0 {
			t.Errorf("task %s confidence = %v, want > 0", o.TaskID, o.Confidence)
		}
		if o.Path == "" {
			t.Errorf("task %s missing output path", o.TaskID)
		}
	}
	if outcome.OverallConfidence <= 0 {
		t.Error("overall confidence should be positive")
	}
}

func TestRun_PersistsWrappedFiles(t *testing.T) {
	dir := t.TempDir()
	content := segment("overview", body("persisted content")) +
		segment("details", body("more persisted content"))
	runner := NewRunner(llm.NewScriptEngine(content))

	if _, err := runner.Run(context.Background(), twoSpecs(), nil, fastConfig(dir)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "overview.md"))
	if err != nil {
		t.Fatalf("reading persisted file: %v", err)
	}
	meta, fileBody, err := persist.Unwrap(string(data))
	if err != nil {
		t.Fatalf("persisted file should unwrap: %v", err)
	}
	if meta.Title != "Overview" || meta.TaskName != "overview" {
		t.Errorf("meta = %+v", meta)
	}
	if !strings.Contains(fileBody, "persisted content") {
		t.Error("file body missing task content")
	}
}

func TestRun_OutcomeTotality(t *testing.T) {
	// Whatever the run produces, every declared task appears exactly once.
	dir := t.TempDir()
	specs := []tasks.Spec{
		{ID: "a", OutputKey: "a"},
		{ID: "b", OutputKey: "b"},
		{ID: "c", OutputKey: "c"},
		{ID: "d", OutputKey: "d"},
	}
	content := segment("b", body("only b resolves"))
	runner := NewRunner(llm.NewScriptEngine(content))

	outcome, _ := runner.Run(context.Background(), specs, nil, fastConfig(dir))
	if len(outcome.Outcomes) != len(specs) {
		t.Fatalf("outcomes = %d, want %d", len(outcome.Outcomes), len(specs))
	}
	seen := make(map[string]bool)
	for _, o := range outcome.Outcomes {
		if seen[o.TaskID] {
			t.Errorf("task %s appears twice", o.TaskID)
		}
		seen[o.TaskID] = true
	}
}

// ============================================================================
// PARTIAL AND FAILED RUNS
// ============================================================================

func TestRun_PartialWhenOneTaskTruncated(t *testing.T) {
	dir := t.TempDir()
	// One task completes its markers; the other is cut off mid-stream and
	// matches no heading either.
	content := segment("overview", body("completed content")) +
		tasks.StartMarker("details") + "\ntruncated mid-sen"
	engine := llm.NewScriptEngine(content)
	engine.SetStop(llm.StopTurnLimit, "cut off")

	cfg := fastConfig(dir)
	cfg.MaxAttempts = 1
	cfg.AllowPartialResults = true
	runner := NewRunner(engine)

	outcome, err := runner.Run(context.Background(), twoSpecs(), nil, cfg)
	if err != nil {
		t.Fatalf("partial run should not error: %v", err)
	}
	if outcome.Status != results.StatusPartial {
		t.Errorf("status = %v, want partial", outcome.Status)
	}

	byID := make(map[string]results.TaskOutcome)
	for _, o := range outcome.Outcomes {
		byID[o.TaskID] = o
	}
	if byID["overview"].Mode == results.ModeMissing {
		t.Error("completed task should resolve")
	}
	if byID["details"].Mode != results.ModeMissing {
		t.Errorf("truncated task mode = %v, want missing", byID["details"].Mode)
	}
	if byID["details"].Path != "" {
		t.Error("missing task must not carry an output path")
	}
	if len(outcome.Warnings) == 0 {
		t.Error("partial run should itemize warnings")
	}
}

func TestRun_FailedWhenNothingResolves(t *testing.T) {
	dir := t.TempDir()
	engine := llm.NewScriptEngine("")
	engine.SetStop(llm.StopError, "refused")

	cfg := fastConfig(dir)
	cfg.MaxAttempts = 1
	runner := NewRunner(engine)

	outcome, err := runner.Run(context.Background(), twoSpecs(), nil, cfg)
	if err == nil {
		t.Fatal("expected error when nothing resolves")
	}
	if !errors.IsCode(err, errors.ErrCodeGenerationFailed) {
		t.Errorf("expected GENERATION_FAILED, got %v", errors.CodeOf(err))
	}
	if outcome == nil || outcome.Status != results.StatusFailed {
		t.Errorf("outcome = %+v, want failed status alongside the error", outcome)
	}
	if len(outcome.Outcomes) != 2 {
		t.Error("failed outcome still covers every declared task")
	}
}

// ============================================================================
// RETRY AND RECOVERY
// ============================================================================

func TestRun_RetryAfterTruncatedAttempt(t *testing.T) {
	dir := t.TempDir()
	full := segment("overview", body("recovered content")) +
		segment("details", body("recovered detail"))
	engine := &sequenceEngine{turns: []llm.Turn{
		{Content: "way too short", Reason: llm.StopTurnLimit, Detail: "cut"},
		{Content: full, Reason: llm.StopSuccess},
	}}
	runner := NewRunner(engine)

	cfg := fastConfig(dir)
	cfg.AllowDegradation = false
	outcome, err := runner.Run(context.Background(), twoSpecs(), nil, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Status != results.StatusSuccess {
		t.Errorf("status = %v, want success after retry", outcome.Status)
	}
	if engine.calls != 2 {
		t.Errorf("engine calls = %d, want 2", engine.calls)
	}
}

func TestRun_FallbackRecoversVariantMarkers(t *testing.T) {
	dir := t.TempDir()
	// The model drifted from the canonical delimiter syntax; the live scan
	// misses it but the fallback pass recovers it.
	content := "<!-- TASK_START: overview -->\n" + body("drifted content") +
		"\n<!-- TASK_END: overview -->\n"
	runner := NewRunner(llm.NewScriptEngine(content))

	specs := []tasks.Spec{{ID: "overview", DisplayName: "Overview", OutputKey: "overview"}}
	outcome, err := runner.Run(context.Background(), specs, nil, fastConfig(dir))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Outcomes[0].Mode != results.ModeFallback {
		t.Errorf("mode = %v, want fallback", outcome.Outcomes[0].Mode)
	}

	// Damping keeps fallback confidence under an equivalent live score.
	liveEquivalent := results.Score(outcome.Outcomes[0].Content, results.ModeLive, 0, false)
	if outcome.Outcomes[0].Confidence >= liveEquivalent {
		t.Error("fallback confidence should be damped below live")
	}
}

func TestRun_DegradedResolutionDampsConfidence(t *testing.T) {
	dir := t.TempDir()
	// The primary attempt dies at the turn limit; only the degraded attempt
	// streams a complete segment. The resolution is live but its confidence
	// must still sit below an equivalent clean-run score.
	full := segment("overview", body("recovered under degradation"))
	engine := &sequenceEngine{turns: []llm.Turn{
		{Content: "way too short", Reason: llm.StopTurnLimit, Detail: "cut"},
		{Content: full, Reason: llm.StopSuccess},
	}}
	runner := NewRunner(engine)

	cfg := fastConfig(dir)
	cfg.MaxAttempts = 1
	cfg.AllowDegradation = true

	specs := []tasks.Spec{{ID: "overview", DisplayName: "Overview", OutputKey: "overview"}}
	outcome, err := runner.Run(context.Background(), specs, nil, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if engine.calls != 2 {
		t.Fatalf("engine calls = %d, want primary plus degraded", engine.calls)
	}
	if outcome.Status != results.StatusSuccess {
		t.Fatalf("status = %v, want success via the degraded attempt", outcome.Status)
	}

	got := outcome.Outcomes[0]
	if got.Mode != results.ModeLive {
		t.Errorf("mode = %v, want live", got.Mode)
	}
	liveEquivalent := results.Score(got.Content, results.ModeLive, len(got.References), false)
	if got.Confidence >= liveEquivalent {
		t.Errorf("confidence %v should be damped below live equivalent %v",
			got.Confidence, liveEquivalent)
	}
}

func TestRun_NoDuplicateWritesAcrossAttempts(t *testing.T) {
	dir := t.TempDir()
	resolvedEarly := segment("overview", body("stable early content"))
	engine := &sequenceEngine{turns: []llm.Turn{
		// First attempt resolves overview live, then dies at the limit.
		{Content: resolvedEarly, Reason: llm.StopTurnLimit, Detail: "cut"},
		// Second attempt replays the same content and completes both.
		{Content: resolvedEarly + segment("details", body("late detail")), Reason: llm.StopSuccess},
	}}
	runner := NewRunner(engine)

	cfg := fastConfig(dir)
	outcome, err := runner.Run(context.Background(), twoSpecs(), nil, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Status != results.StatusSuccess {
		t.Errorf("status = %v, want success", outcome.Status)
	}

	// The first attempt's write survives; the replay is a gated no-op.
	data, err := os.ReadFile(filepath.Join(dir, "overview.md"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "stable early content") {
		t.Error("first write should survive the retry")
	}
}

// ============================================================================
// PROGRESS EVENTS
// ============================================================================

func TestRun_PublishesProgress(t *testing.T) {
	dir := t.TempDir()
	content := segment("overview", body("streamed content"))
	engine := llm.NewScriptEngine(content)
	engine.SetChunkSize(40)
	engine.SetThinking("planning the sections")

	bus := events.NewBus(events.DefaultConfig())
	sub, err := bus.Subscribe()
	if err != nil {
		t.Fatal(err)
	}
	runner := NewRunner(engine, WithBus(bus))

	specs := []tasks.Spec{{ID: "overview", OutputKey: "overview"}}
	if _, err := runner.Run(context.Background(), specs, nil, fastConfig(dir)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	bus.Close()

	seen := make(map[events.Type]int)
	for ev := range sub.Events() {
		seen[ev.Type]++
		if ev.SessionID == "" {
			t.Error("events should carry the session ID")
		}
	}
	if seen[events.ContentUpdate] < 2 {
		t.Errorf("content updates = %d, want several", seen[events.ContentUpdate])
	}
	if seen[events.ThinkingStart] == 0 {
		t.Error("expected a thinking start event")
	}
	if seen[events.StatusUpdate] == 0 {
		t.Error("expected status updates")
	}
}

// ============================================================================
// VALIDATION
// ============================================================================

func TestRun_RejectsInvalidSpecs(t *testing.T) {
	runner := NewRunner(llm.NewScriptEngine("x"))
	cfg := fastConfig(t.TempDir())

	if _, err := runner.Run(context.Background(), nil, nil, cfg); err == nil {
		t.Error("expected error for empty task set")
	}

	dup := []tasks.Spec{{ID: "a", OutputKey: "a"}, {ID: "a", OutputKey: "b"}}
	if _, err := runner.Run(context.Background(), dup, nil, cfg); err == nil {
		t.Error("expected error for duplicate task IDs")
	}
}

func TestConfig_Validate(t *testing.T) {
	cfg := Config{}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error without output dir or path function")
	}

	cfg = Config{OutputDir: "/tmp/out", MaxAttempts: -1}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for negative attempts")
	}

	cfg = Config{OutputDir: "/tmp/out"}
	if err := cfg.Validate(); err != nil {
		t.Errorf("minimal config should validate: %v", err)
	}
	cfg.ApplyDefaults()
	if cfg.MaxAttempts == 0 || cfg.Timeout == 0 || cfg.PathFor == nil {
		t.Error("defaults should fill zero values")
	}
}

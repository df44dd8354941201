package persist

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func testWriter(t *testing.T, dir string) *Writer {
	t.Helper()
	w, err := NewWriter(Config{
		PathFor: func(taskID string) string {
			return filepath.Join(dir, taskID+".md")
		},
		TitleFor: func(taskID string) string { return "Title for " + taskID },
		Now:      func() time.Time { return time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC) },
	}, nil)
	if err != nil {
		t.Fatalf("creating writer: %v", err)
	}
	return w
}

// ============================================================================
// IDEMPOTENT WRITES
// ============================================================================

func TestResolve_WritesOnce(t *testing.T) {
	dir := t.TempDir()
	w := testWriter(t, dir)

	if err := w.Resolve("overview", "the overview content"); err != nil {
		t.Fatalf("first write: %v", err)
	}

	path := filepath.Join(dir, "overview.md")
	first, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading written file: %v", err)
	}

	// Further arrivals for the same task, from any path, are no-ops.
	if err := w.Resolve("overview", "different later content"); err != nil {
		t.Fatalf("duplicate write should be a silent no-op: %v", err)
	}
	second, _ := os.ReadFile(path)
	if string(first) != string(second) {
		t.Error("duplicate resolve must not touch the file")
	}
	if w.Count() != 1 {
		t.Errorf("physical write count = %d, want 1", w.Count())
	}
}

func TestResolve_CreatesParentDirs(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(Config{
		PathFor: func(taskID string) string {
			return filepath.Join(dir, "nested", "deep", taskID+".md")
		},
	}, nil)
	if err != nil {
		t.Fatalf("creating writer: %v", err)
	}

	if err := w.Resolve("a", "content"); err != nil {
		t.Fatalf("write with missing parents: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "nested", "deep", "a.md")); err != nil {
		t.Errorf("expected file in nested path: %v", err)
	}
}

func TestResolve_TracksWrittenPath(t *testing.T) {
	dir := t.TempDir()
	w := testWriter(t, dir)

	if _, ok := w.Written("a"); ok {
		t.Error("unwritten task should report not written")
	}
	if err := w.Resolve("a", "content"); err != nil {
		t.Fatal(err)
	}
	path, ok := w.Written("a")
	if !ok || path != filepath.Join(dir, "a.md") {
		t.Errorf("Written = %q, %v", path, ok)
	}
}

func TestNewWriter_RequiresPathFunc(t *testing.T) {
	if _, err := NewWriter(Config{}, nil); err == nil {
		t.Fatal("expected validation error without a path function")
	}
}

// ============================================================================
// DOCUMENT FRAMING
// ============================================================================

func TestWrapUnwrap_RoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"plain", "a single paragraph of content"},
		{"multiline", "## Heading\n\nbody text\n\n- a list\n- of items"},
		{"markdown comments", "text with <!-- an inline comment --> inside"},
		{"trailing newline", "content that ends with a newline\n"},
		{"unicode", "内容 with mixed scripts and émojis ✓"},
	}

	meta := Meta{
		Title:     "Architecture Overview",
		TaskName:  "overview",
		Generated: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := Wrap(meta, tt.content)

			got, body, err := Unwrap(doc)
			if err != nil {
				t.Fatalf("unwrap: %v", err)
			}
			if body != tt.content {
				t.Errorf("content round-trip failed:\n got %q\nwant %q", body, tt.content)
			}
			if got.Title != meta.Title || got.TaskName != meta.TaskName {
				t.Errorf("meta round-trip failed: %+v", got)
			}
			if !got.Generated.Equal(meta.Generated) {
				t.Errorf("timestamp round-trip failed: %v", got.Generated)
			}
		})
	}
}

func TestUnwrap_RejectsUnframedText(t *testing.T) {
	for _, doc := range []string{
		"",
		"just some text\nwith lines\nbut no\nframe",
		"<!-- genmux:begin task=a -->\nmissing the rest",
	} {
		if _, _, err := Unwrap(doc); err == nil {
			t.Errorf("expected error for unframed doc %q", doc)
		}
	}
}

func TestWrap_ContainsHeaderFields(t *testing.T) {
	doc := Wrap(Meta{
		Title:     "My Title",
		TaskName:  "task-1",
		Generated: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
	}, "body")

	for _, want := range []string{"# My Title", "task-1", "2026-08-30T12:00:00Z", "body"} {
		if !strings.Contains(doc, want) {
			t.Errorf("wrapped doc missing %q", want)
		}
	}
}

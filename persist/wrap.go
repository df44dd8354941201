package persist

import (
	"fmt"
	"strings"
	"time"
)

// Meta is the header/footer metadata wrapped around persisted content.
type Meta struct {
	Title     string
	TaskName  string
	Generated time.Time
}

const (
	beginSentinel = "<!-- genmux:begin task="
	endSentinel   = "<!-- genmux:end task="
	sentinelClose = " -->"
)

// Wrap frames content with the fixed document header and footer. The format
// contract is plain UTF-8 text that Unwrap restores exactly.
func Wrap(meta Meta, content string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s%s%s\n", beginSentinel, meta.TaskName, sentinelClose)
	fmt.Fprintf(&b, "# %s\n", meta.Title)
	fmt.Fprintf(&b, "Generated: %s\n", meta.Generated.Format(time.RFC3339))
	b.WriteString("\n")
	b.WriteString(content)
	b.WriteString("\n")
	fmt.Fprintf(&b, "%s%s%s\n", endSentinel, meta.TaskName, sentinelClose)
	return b.String()
}

// Unwrap restores the content and metadata from a wrapped document.
func Unwrap(doc string) (Meta, string, error) {
	var meta Meta

	lines := strings.SplitN(doc, "\n", 4)
	if len(lines) < 4 {
		return meta, "", fmt.Errorf("document too short to be a wrapped task file")
	}

	begin := lines[0]
	if !strings.HasPrefix(begin, beginSentinel) || !strings.HasSuffix(begin, sentinelClose) {
		return meta, "", fmt.Errorf("missing begin sentinel")
	}
	meta.TaskName = strings.TrimSuffix(strings.TrimPrefix(begin, beginSentinel), sentinelClose)

	if !strings.HasPrefix(lines[1], "# ") {
		return meta, "", fmt.Errorf("missing title line")
	}
	meta.Title = strings.TrimPrefix(lines[1], "# ")

	if !strings.HasPrefix(lines[2], "Generated: ") {
		return meta, "", fmt.Errorf("missing timestamp line")
	}
	ts, err := time.Parse(time.RFC3339, strings.TrimPrefix(lines[2], "Generated: "))
	if err != nil {
		return meta, "", fmt.Errorf("parsing timestamp: %w", err)
	}
	meta.Generated = ts

	rest := lines[3]
	footer := fmt.Sprintf("%s%s%s\n", endSentinel, meta.TaskName, sentinelClose)
	if !strings.HasSuffix(rest, footer) {
		return meta, "", fmt.Errorf("missing end sentinel")
	}
	body := strings.TrimSuffix(rest, footer)

	// Wrap inserts one blank line before and one newline after the content.
	body = strings.TrimPrefix(body, "\n")
	body = strings.TrimSuffix(body, "\n")

	return meta, body, nil
}

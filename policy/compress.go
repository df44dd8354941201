package policy

import (
	"regexp"
	"strings"
)

// maxCompressedLen bounds the degraded prompt. Keeping the head and tail
// preserves the instructions and the task list that usually bracket the
// body.
const maxCompressedLen = 4000

var blankRuns = regexp.MustCompile(`\n{3,}`)

// Compress simplifies a prompt for the degraded attempt: collapse blank
// runs, drop trailing whitespace per line, and when still too long keep the
// head and tail around an elision notice.
func Compress(prompt string) string {
	lines := strings.Split(prompt, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	compact := blankRuns.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")

	runes := []rune(compact)
	if len(runes) <= maxCompressedLen {
		return compact
	}

	head := string(runes[:maxCompressedLen*3/5])
	tail := string(runes[len(runes)-maxCompressedLen/5:])
	return head + "\n\n[...]\n\n" + tail
}

package demux

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// markerVariants is the fixed list of delimiter syntaxes the second fallback
// strategy tolerates. Each pair is a start/end regexp template with one %s
// slot for the quoted output key. Patterns absorb spacing, case and
// punctuation drift around the canonical marker text.
var markerVariants = []struct {
	name  string
	start string
	end   string
}{
	{
		name:  "equals-fence",
		start: `(?im)^\s*={2,}\s*TASK[_\- ]?START\s*[:\-]?\s*%s\s*={2,}\s*$`,
		end:   `(?im)^\s*={2,}\s*TASK[_\- ]?END\s*[:\-]?\s*%s\s*={2,}\s*$`,
	},
	{
		name:  "html-comment",
		start: `(?i)<!--\s*TASK[_\- ]?START\s*[:\-]?\s*%s\s*-->`,
		end:   `(?i)<!--\s*TASK[_\- ]?END\s*[:\-]?\s*%s\s*-->`,
	},
	{
		name:  "double-bracket",
		start: `(?i)\[\[\s*TASK[_\- ]?START\s*[:\-]?\s*%s\s*\]\]`,
		end:   `(?i)\[\[\s*TASK[_\- ]?END\s*[:\-]?\s*%s\s*\]\]`,
	},
	{
		name:  "heading-marker",
		start: `(?im)^#{1,6}\s*TASK[_\- ]?START\s*[:\-]?\s*%s\s*$`,
		end:   `(?im)^#{1,6}\s*TASK[_\- ]?END\s*[:\-]?\s*%s\s*$`,
	},
}

var headingLine = regexp.MustCompile(`(?m)^(#{1,6})\s+(.+?)\s*$`)

// Fallback runs the staged recovery pass over the final buffer for every
// task the live scan left unresolved. Strategies run in order; the first
// hit wins. A task no strategy matches is marked missing.
func (d *Demux) Fallback(buffer string) {
	for _, spec := range d.specs {
		if d.states[spec.ID] == StateResolved {
			continue
		}

		// Strategy 1: exact markers, for boundaries only completed after
		// the last live scan.
		if content, _ := extractExact(buffer, spec.Key()); accepted(content) {
			d.resolve(spec.ID, content, ModeFallback)
			continue
		}

		// Strategy 2: marker variants.
		if content, ok := extractVariant(buffer, spec.Key()); ok && accepted(content) {
			d.resolve(spec.ID, content, ModeFallback)
			continue
		}

		// Strategy 3: heading equal to the display name.
		if content, ok := extractByHeading(buffer, spec.DisplayName); ok && accepted(content) {
			d.resolve(spec.ID, content, ModeFallback)
			continue
		}

		d.states[spec.ID] = StateMissing
		d.warnings = append(d.warnings,
			"task "+spec.ID+": no extraction strategy matched")
		d.log.Warn("task missing after fallback", map[string]interface{}{
			"task": spec.ID,
		})
	}
}

func accepted(content string) bool {
	return content != "" && utf8.RuneCountInString(content) >= minAcceptLength
}

// extractVariant tries each tolerant delimiter syntax in order.
func extractVariant(buffer, key string) (string, bool) {
	quoted := regexp.QuoteMeta(key)
	for _, variant := range markerVariants {
		start := regexp.MustCompile(fmt.Sprintf(variant.start, quoted))
		loc := start.FindStringIndex(buffer)
		if loc == nil {
			continue
		}
		rest := buffer[loc[1]:]
		end := regexp.MustCompile(fmt.Sprintf(variant.end, quoted))
		endLoc := end.FindStringIndex(rest)
		if endLoc == nil {
			continue
		}
		return strings.TrimSpace(rest[:endLoc[0]]), true
	}
	return "", false
}

// extractByHeading locates a markdown heading whose text equals the display
// name and takes content until the next heading of equal or higher rank.
func extractByHeading(buffer, displayName string) (string, bool) {
	if displayName == "" {
		return "", false
	}
	want := strings.ToLower(strings.TrimSpace(displayName))

	matches := headingLine.FindAllStringSubmatchIndex(buffer, -1)
	for i, m := range matches {
		rank := m[3] - m[2]
		text := strings.ToLower(strings.TrimSpace(buffer[m[4]:m[5]]))
		if text != want {
			continue
		}

		bodyStart := m[1]
		bodyEnd := len(buffer)
		for _, next := range matches[i+1:] {
			nextRank := next[3] - next[2]
			if nextRank <= rank {
				bodyEnd = next[0]
				break
			}
		}
		return strings.TrimSpace(buffer[bodyStart:bodyEnd]), true
	}
	return "", false
}

package results

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/vinayprograms/genmux/llm"
)

// Confidence scoring constants. The length component dominates but saturates;
// structure and references top it up; damping applies last.
const (
	lengthCeiling = 2000 // runes; length gains flatten beyond this
	lengthWeight  = 0.6
	headingBonus  = 0.1
	tableBonus    = 0.1
	diagramBonus  = 0.1
	refBonusEach  = 0.025
	refBonusCap   = 0.1
	dampingFactor = 0.7
)

var (
	headingPattern = regexp.MustCompile(`(?m)^#{1,6}\s+\S`)
	tablePattern   = regexp.MustCompile(`(?m)^\s*\|.+\|\s*$`)
	mdLinkPattern  = regexp.MustCompile(`\[[^\]]+\]\(([^)\s]+)\)`)
)

// Score derives a confidence value in [0,1] for resolved content.
//
// Components: length with saturation at lengthCeiling runes, fixed bonuses
// for structural markers (headings, tables, fenced diagram blocks), and a
// capped per-reference bonus. Fallback resolutions, resolutions from a
// degraded attempt, and content carrying a truncation or degradation
// annotation are damped by a fixed factor, so a degraded resolution never
// scores above an equivalent live one.
func Score(content string, mode Mode, refCount int, degraded bool) float64 {
	runes := utf8.RuneCountInString(content)

	length := float64(runes) / lengthCeiling
	if length > 1 {
		length = 1
	}
	score := lengthWeight * length

	if headingPattern.MatchString(content) {
		score += headingBonus
	}
	if tablePattern.MatchString(content) {
		score += tableBonus
	}
	if strings.Contains(content, "```") {
		score += diagramBonus
	}

	refBonus := refBonusEach * float64(refCount)
	if refBonus > refBonusCap {
		refBonus = refBonusCap
	}
	score += refBonus

	if mode == ModeFallback || degraded || llm.IsAnnotated(content) {
		score *= dampingFactor
	}

	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score
}

// ExtractReferences collects the link targets of markdown-style references,
// deduplicated in first-seen order.
func ExtractReferences(content string) []string {
	matches := mdLinkPattern.FindAllStringSubmatch(content, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(matches))
	var refs []string
	for _, m := range matches {
		target := m[1]
		if seen[target] {
			continue
		}
		seen[target] = true
		refs = append(refs, target)
	}
	return refs
}

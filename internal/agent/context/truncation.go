package context

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// DefaultTruncateChars caps tool output before it enters history.
const DefaultTruncateChars = 10_000

// readLineThreshold is the line count above which file reads switch to
// head+tail truncation instead of a plain prefix.
const readLineThreshold = 100

// TruncateToolOutput bounds output by tool family. Markers carry the
// removed count so downstream consumers can reason about what is gone.
func (m *Manager) TruncateToolOutput(toolName, output string) string {
	maxChars := m.cfg.TruncateChars
	if maxChars <= 0 {
		maxChars = DefaultTruncateChars
	}
	if len(output) <= maxChars {
		return output
	}

	var truncated string
	switch toolName {
	case "Read", "read_file":
		truncated = truncateHeadTail(output, maxChars)
	case "Grep", "grep_search", "Glob", "glob_search":
		truncated = truncateLeading(output, maxChars)
	case "Bash", "bash", "execute_bash":
		truncated = truncateTailHeavy(output, maxChars)
	default:
		truncated = truncatePrefix(output, maxChars)
	}

	m.debugf("truncated tool output",
		"tool", toolName, "original", len(output), "kept", len(truncated))
	return truncated
}

// truncateHeadTail keeps the first and last halves of the budget as
// whole lines. The marker's line count plus kept lines equals the
// original line count.
func truncateHeadTail(output string, maxChars int) string {
	lines := strings.Split(output, "\n")
	if len(lines) <= readLineThreshold {
		return truncatePrefix(output, maxChars)
	}

	half := maxChars / 2
	head := takeLines(lines, half)
	tail := takeLinesReverse(lines, half)
	if head+tail >= len(lines) {
		return truncatePrefix(output, maxChars)
	}

	removed := len(lines) - head - tail
	var b strings.Builder
	b.WriteString(strings.Join(lines[:head], "\n"))
	b.WriteString(fmt.Sprintf("\n[... %d lines truncated ...]\n", removed))
	b.WriteString(strings.Join(lines[len(lines)-tail:], "\n"))
	return b.String()
}

// truncateLeading keeps leading result lines up to the budget.
func truncateLeading(output string, maxChars int) string {
	lines := strings.Split(output, "\n")
	keep := takeLines(lines, maxChars)
	if keep >= len(lines) {
		return output
	}
	removed := len(lines) - keep
	return strings.Join(lines[:keep], "\n") +
		fmt.Sprintf("\n[... %d more results truncated ...]", removed)
}

// truncateTailHeavy keeps a small head prefix and roughly 80% of the
// budget from the tail. Shell output tends to end with the part that
// matters.
func truncateTailHeavy(output string, maxChars int) string {
	headChars := maxChars / 10
	tailChars := (maxChars * 8) / 10
	if headChars+tailChars >= len(output) {
		return output
	}
	cut := snapToRuneStart(output, headChars)
	tailStart := snapToRuneStart(output, len(output)-tailChars)
	removed := tailStart - cut
	return output[:cut] +
		fmt.Sprintf("\n[... %d chars truncated ...]\n", removed) +
		output[tailStart:]
}

func truncatePrefix(output string, maxChars int) string {
	if len(output) <= maxChars {
		return output
	}
	cut := snapToRuneStart(output, maxChars)
	removed := len(output) - cut
	return output[:cut] + fmt.Sprintf("\n[... %d chars truncated ...]", removed)
}

// snapToRuneStart moves a byte offset left to the start of the rune it
// lands in, so cuts never split a multibyte character.
func snapToRuneStart(s string, i int) int {
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}

// takeLines returns how many leading lines fit within budget chars.
func takeLines(lines []string, budget int) int {
	used := 0
	for i, line := range lines {
		used += len(line) + 1
		if used > budget {
			return i
		}
	}
	return len(lines)
}

// takeLinesReverse returns how many trailing lines fit within budget.
func takeLinesReverse(lines []string, budget int) int {
	used := 0
	for i := len(lines) - 1; i >= 0; i-- {
		used += len(lines[i]) + 1
		if used > budget {
			return len(lines) - 1 - i
		}
	}
	return len(lines)
}

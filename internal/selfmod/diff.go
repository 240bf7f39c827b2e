package selfmod

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// diffContext is the number of unchanged lines around each hunk.
const diffContext = 3

// addedLine is a line present only in the patched content.
type addedLine struct {
	Number int // 1-based line number in the patched content
	Text   string
}

// splitLines splits s into newline-terminated lines. A missing final newline
// is supplied so it does not register as a change.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		return lines[:len(lines)-1]
	}
	lines[len(lines)-1] += "\n"
	return lines
}

// unifiedDiff renders a git-style unified diff of one file.
func unifiedDiff(path, original, patched string) (string, error) {
	from := "a/" + path
	if original == "" {
		from = "/dev/null"
	}
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        splitLines(original),
		B:        splitLines(patched),
		FromFile: from,
		ToFile:   "b/" + path,
		Context:  diffContext,
	})
}

// changeStats compares original and patched line by line.
func changeStats(original, patched string) (added []addedLine, removed int) {
	a, b := splitLines(original), splitLines(patched)
	for _, op := range difflib.NewMatcher(a, b).GetOpCodes() {
		switch op.Tag {
		case 'r':
			removed += op.I2 - op.I1
			added = appendAdded(added, b, op.J1, op.J2)
		case 'd':
			removed += op.I2 - op.I1
		case 'i':
			added = appendAdded(added, b, op.J1, op.J2)
		}
	}
	return added, removed
}

func appendAdded(dst []addedLine, lines []string, from, to int) []addedLine {
	for j := from; j < to; j++ {
		dst = append(dst, addedLine{Number: j + 1, Text: strings.TrimRight(lines[j], "\n")})
	}
	return dst
}

package selfmod

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnifiedDiff(t *testing.T) {
	diff, err := unifiedDiff("a.go", "one\ntwo\nthree\n", "one\n2\nthree\n")
	require.NoError(t, err)
	assert.Contains(t, diff, "--- a/a.go")
	assert.Contains(t, diff, "+++ b/a.go")
	assert.Contains(t, diff, "-two\n")
	assert.Contains(t, diff, "+2\n")

	diff, err = unifiedDiff("new.go", "", "package x\n")
	require.NoError(t, err)
	assert.Contains(t, diff, "--- /dev/null")
}

func TestChangeStats(t *testing.T) {
	added, removed := changeStats("a\nb\nc\n", "a\nB\nc\nd\n")
	assert.Equal(t, 1, removed)
	require.Len(t, added, 2)
	assert.Equal(t, addedLine{Number: 2, Text: "B"}, added[0])
	assert.Equal(t, addedLine{Number: 4, Text: "d"}, added[1])

	added, removed = changeStats("a\nb", "a\nb\n")
	assert.Empty(t, added, "a missing final newline is not a change")
	assert.Zero(t, removed)
}

func TestSplitLines(t *testing.T) {
	assert.Nil(t, splitLines(""))
	assert.Equal(t, []string{"a\n", "b\n"}, splitLines("a\nb"))
	assert.Equal(t, []string{"a\n"}, splitLines("a\n"))
}

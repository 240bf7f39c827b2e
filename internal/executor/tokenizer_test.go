package executor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	overseererrors "github.com/mrz1836/overseer/internal/errors"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name string
		line string
		want []string
	}{
		{name: "plain", line: "ls -la /tmp", want: []string{"ls", "-la", "/tmp"}},
		{name: "extra whitespace", line: "  ls \t -l  ", want: []string{"ls", "-l"}},
		{name: "single quotes keep operators", line: `grep 'a|b;c' file`, want: []string{"grep", "a|b;c", "file"}},
		{name: "double quotes", line: `echo "hello world"`, want: []string{"echo", "hello world"}},
		{name: "escaped quote in double quotes", line: `echo "say \"hi\""`, want: []string{"echo", `say "hi"`}},
		{name: "backslash escape", line: `echo a\ b`, want: []string{"echo", "a b"}},
		{name: "empty quoted argument", line: `echo ""`, want: []string{"echo", ""}},
		{name: "adjacent quoting joins", line: `echo 'a'"b"c`, want: []string{"echo", "abc"}},
		{name: "dollar without paren is literal", line: `echo $HOME`, want: []string{"echo", "$HOME"}},
		{name: "substitution in single quotes is literal", line: `echo '$(id)'`, want: []string{"echo", "$(id)"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Tokenize(tt.line)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTokenize_Rejects(t *testing.T) {
	lines := map[string]string{
		"pipe":                      "cat file | sh",
		"semicolon":                 "ls; rm x",
		"background":                "sleep 1 &",
		"and list":                  "true && false",
		"redirect out":              "echo x > /etc/passwd",
		"redirect in":               "cat < file",
		"backtick":                  "echo `id`",
		"command substitution":      "echo $(id)",
		"substitution in dquotes":   `echo "$(id)"`,
		"backtick in dquotes":       "echo \"`id`\"",
		"newline":                   "ls\nrm -rf x",
		"unterminated single quote": "echo 'abc",
		"unterminated double quote": `echo "abc`,
		"trailing backslash":        `echo abc\`,
		"whitespace only":           "   ",
	}

	for name, line := range lines {
		t.Run(name, func(t *testing.T) {
			_, err := Tokenize(line)
			require.Error(t, err)
			assert.ErrorIs(t, err, overseererrors.ErrSafetyViolation)
		})
	}
}

package executor

import (
	"fmt"
	"strings"

	overseererrors "github.com/mrz1836/overseer/internal/errors"
)

type quoteState int

const (
	unquoted quoteState = iota
	singleQuoted
	doubleQuoted
)

// Tokenize splits a command line into argv using POSIX-style quoting rules
// without any expansion. Shell operators outside quotes, command substitution
// anywhere outside single quotes and embedded newlines are rejected, since
// commands are never handed to a shell.
func Tokenize(line string) ([]string, error) {
	var (
		args    []string
		current strings.Builder
		inToken bool
		state = unquoted
	)

	runes := []rune(line)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		next := rune(0)
		if i+1 < len(runes) {
			next = runes[i+1]
		}

		switch state {
		case unquoted:
			switch {
			case r == ' ' || r == '\t':
				if inToken {
					args = append(args, current.String())
					current.Reset()
					inToken = false
				}
			case r == '\n' || r == '\r':
				return nil, violation("multi-line commands are not allowed")
			case r == '\'':
				state, inToken = singleQuoted, true
			case r == '"':
				state, inToken = doubleQuoted, true
			case r == '\\':
				if next == 0 {
					return nil, violation("trailing backslash")
				}
				current.WriteRune(next)
				inToken = true
				i++
			case strings.ContainsRune("|;&<>`", r):
				return nil, violation(fmt.Sprintf("shell operator %q is not allowed", r))
			case r == '$' && next == '(':
				return nil, violation("command substitution is not allowed")
			default:
				current.WriteRune(r)
				inToken = true
			}
		case singleQuoted:
			if r == '\'' {
				state = unquoted
				continue
			}
			current.WriteRune(r)
		case doubleQuoted:
			switch {
			case r == '"':
				state = unquoted
			case r == '\\' && strings.ContainsRune("\"\\$`", next) && next != 0:
				current.WriteRune(next)
				i++
			case r == '`':
				return nil, violation("command substitution is not allowed")
			case r == '$' && next == '(':
				return nil, violation("command substitution is not allowed")
			default:
				current.WriteRune(r)
			}
		}
	}

	if state != unquoted {
		return nil, violation("unterminated quote")
	}
	if inToken {
		args = append(args, current.String())
	}
	if len(args) == 0 {
		return nil, violation("empty command")
	}
	return args, nil
}

func violation(msg string) error {
	return overseererrors.Wrap(overseererrors.ErrSafetyViolation, msg)
}

func violationf(format string, args ...any) error {
	return overseererrors.Wrapf(overseererrors.ErrSafetyViolation, format, args...)
}

package scheduler

import (
	"strings"
	"time"
	"unicode"

	"github.com/mrz1836/overseer/internal/domain"
)

// completionWords mark an explanation that reports the goal as reached.
//
//nolint:gochecknoglobals // Read-only word list
var completionWords = map[string]bool{
	"done":      true,
	"complete":  true,
	"completed": true,
	"finished":  true,
	"achieved":  true,
}

// completionPhrases are matched as substrings for scripts without word breaks.
//
//nolint:gochecknoglobals // Read-only phrase list
var completionPhrases = []string{"完了", "達成", "終了", "完成"}

// reportsCompletion reports whether an explanation says the goal is reached.
func reportsCompletion(explanation string) bool {
	lower := strings.ToLower(explanation)
	for _, word := range strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if completionWords[word] {
			return true
		}
	}
	for _, phrase := range completionPhrases {
		if strings.Contains(explanation, phrase) {
			return true
		}
	}
	return false
}

// nextGoal applies goal succession after an iteration. An operator goal is
// kept until the planner reports it complete and names a successor; any
// other goal follows the planner's suggestion.
func nextGoal(current domain.Goal, d domain.Decision, now time.Time) (domain.Goal, bool) {
	suggestion := strings.TrimSpace(d.NextGoal)
	if suggestion == "" || suggestion == current.Text {
		return current, false
	}
	if current.SetBy == domain.GoalSetByOperator && !reportsCompletion(d.Explanation) {
		return current, false
	}
	return domain.Goal{Text: suggestion, SetBy: domain.GoalSetBySelf, SetAt: now}, true
}

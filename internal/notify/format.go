package notify

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/mrz1836/overseer/internal/logging"
)

// maxOutputRunes caps each command's output excerpt in a formatted report.
const maxOutputRunes = 200

// Heading turns an alert class such as "degraded:planner_failure" into a
// display heading such as "Degraded: Planner Failure".
func Heading(class string) string {
	caser := cases.Title(language.English)
	parts := strings.Split(class, ":")
	for i, p := range parts {
		parts[i] = caser.String(strings.ReplaceAll(strings.TrimSpace(p), "_", " "))
	}
	return strings.Join(parts, ": ")
}

// FormatAlert prefixes message with the heading of class.
func FormatAlert(class, message string) string {
	return fmt.Sprintf("[%s] %s", Heading(class), message)
}

// FormatStructuredLog renders a report as plain multi-line text.
func FormatStructuredLog(log StructuredLog) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Iteration %d", log.Iteration)
	if log.Outcome != "" {
		fmt.Fprintf(&b, " (%s)", Heading(string(log.Outcome)))
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "Goal: %s\n", log.Goal)
	if log.Thinking != "" {
		fmt.Fprintf(&b, "Thinking: %s\n", logging.Truncate(log.Thinking, 500))
	}
	if log.FailureKind != "" {
		fmt.Fprintf(&b, "Failure: %s\n", Heading(string(log.FailureKind)))
	}
	if len(log.Results) == 0 && len(log.Commands) > 0 {
		b.WriteString("Commands:\n")
		for i, c := range log.Commands {
			fmt.Fprintf(&b, "  %d. %s\n", i+1, c)
		}
	}
	if len(log.Results) > 0 {
		b.WriteString("Results:\n")
		for i, r := range log.Results {
			status := "ok"
			if !r.Success {
				status = "failed"
			}
			fmt.Fprintf(&b, "  %d. %s -> %s (exit %d)\n", i+1, r.Command, status, r.ExitCode)
			excerpt := r.Stdout
			if !r.Success && r.Error != "" {
				excerpt = r.Error
			}
			if excerpt = strings.TrimSpace(excerpt); excerpt != "" {
				fmt.Fprintf(&b, "     %s\n", logging.Truncate(excerpt, maxOutputRunes))
			}
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

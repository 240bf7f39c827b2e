// Package logging provides zerolog helpers that keep secrets out of log output.
//
// Planner decisions, command lines and notification payloads all pass through
// the log, and any of them may carry an API key or a webhook URL. The
// FilteringWriter redacts those before bytes reach the rotating log file.
package logging

import (
	"io"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
)

// RedactedValue is the replacement string for sensitive data.
const RedactedValue = "[REDACTED]"

//nolint:gochecknoglobals // Package-level patterns for reuse
var sensitivePatterns = []*regexp.Regexp{
	// Anthropic API keys
	regexp.MustCompile(`sk-ant-[a-zA-Z0-9_-]{8,}`),

	// OpenAI style keys (sk-..., sk-proj-...)
	regexp.MustCompile(`sk-(?:proj-)?[a-zA-Z0-9_-]{20,}`),

	// Google API keys
	regexp.MustCompile(`AIza[0-9A-Za-z_-]{30,}`),

	// GitHub tokens
	regexp.MustCompile(`gh[pousr]_[a-zA-Z0-9]{20,}`),

	// Chat webhook URLs embed their credential in the path
	regexp.MustCompile(`https://(?:discord(?:app)?\.com/api/webhooks|hooks\.slack\.com/services)/[^\s"']+`),

	// Bearer tokens
	regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9._~+/-]{20,}=*`),

	// key=value assignments of secret-looking names
	regexp.MustCompile(`(?i)(api[_-]?key|access[_-]?token|channel[_-]?token|secret|password|passwd)\s*[:=]\s*["']?[^\s"']{8,}["']?`),

	// Private key blocks
	regexp.MustCompile(`-----BEGIN[A-Z ]+PRIVATE KEY-----`),
}

//nolint:gochecknoglobals // Package-level patterns for reuse
var sensitiveFieldNames = []string{
	"api_key",
	"apikey",
	"token",
	"password",
	"passwd",
	"secret",
	"credential",
	"private_key",
	"webhook",
	"authorization",
}

// SensitiveDataHook flags log events whose message contains secret material.
// Zerolog hooks cannot rewrite a message, so redaction itself happens in
// FilteringWriter and at call sites through SafeValue.
type SensitiveDataHook struct{}

// NewSensitiveDataHook creates a new SensitiveDataHook.
func NewSensitiveDataHook() *SensitiveDataHook {
	return &SensitiveDataHook{}
}

// Run implements the zerolog.Hook interface.
func (h *SensitiveDataHook) Run(e *zerolog.Event, _ zerolog.Level, msg string) {
	if ContainsSensitiveData(msg) {
		e.Bool("contains_filtered_data", true)
	}
}

// ContainsSensitiveData reports whether s matches any sensitive pattern.
func ContainsSensitiveData(s string) bool {
	for _, pattern := range sensitivePatterns {
		if pattern.MatchString(s) {
			return true
		}
	}
	return false
}

// FilterSensitiveValue replaces every sensitive match in value with [REDACTED].
func FilterSensitiveValue(value string) string {
	result := value
	for _, pattern := range sensitivePatterns {
		result = pattern.ReplaceAllString(result, RedactedValue)
	}
	return result
}

// IsSensitiveFieldName reports whether a field name indicates sensitive data.
func IsSensitiveFieldName(fieldName string) bool {
	lowerName := strings.ToLower(fieldName)
	for _, sensitive := range sensitiveFieldNames {
		if strings.Contains(lowerName, sensitive) {
			return true
		}
	}
	return false
}

// SafeValue returns [REDACTED] when fieldName is sensitive, and otherwise the
// value with sensitive patterns filtered out.
//
//	log.Info().Str("command", logging.SafeValue("command", cmd)).Msg("executing")
func SafeValue(fieldName, value string) string {
	if IsSensitiveFieldName(fieldName) {
		return RedactedValue
	}
	return FilterSensitiveValue(value)
}

// Truncate shortens s to at most max runes, appending an ellipsis when cut.
// Planner text is unbounded, so log fields use this to stay readable.
func Truncate(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	return string(runes[:maxRunes]) + "…"
}

// FilteringWriter wraps an io.Writer and filters sensitive data from output.
type FilteringWriter struct {
	w io.Writer
}

// NewFilteringWriter creates a new FilteringWriter that wraps the given writer.
func NewFilteringWriter(w io.Writer) *FilteringWriter {
	return &FilteringWriter{w: w}
}

// Write implements io.Writer. It reports the original length so callers do not
// treat redaction as a short write.
func (fw *FilteringWriter) Write(p []byte) (n int, err error) {
	filtered := FilterSensitiveValue(string(p))
	if _, err = fw.w.Write([]byte(filtered)); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Package security masks credentials before they reach logs, reports or
// archived errors.
package security

import (
	"regexp"
	"strings"
)

// sensitivePatterns match credentials embedded in free text: query strings,
// headers and provider-specific key formats.
var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(api[_-]?key|secret|access[_-]?token|password)(=|:\s*)["']?([^\s"'&]+)`),
	regexp.MustCompile(`(?i)(bearer)(\s+)([A-Za-z0-9\-_.~+/]+=*)`),
	regexp.MustCompile(`\bsk-[A-Za-z0-9\-_]{20,}`), // OpenAI keys
}

// MaskCredential keeps the first and last four characters of long values.
func MaskCredential(value string) string {
	if len(value) == 0 {
		return ""
	}
	if len(value) <= 4 {
		return strings.Repeat("*", len(value))
	}
	if len(value) <= 8 {
		return value[:2] + strings.Repeat("*", len(value)-2)
	}
	return value[:4] + strings.Repeat("*", len(value)-8) + value[len(value)-4:]
}

// Redact masks credentials found in s.
func Redact(s string) string {
	for _, pattern := range sensitivePatterns {
		s = pattern.ReplaceAllStringFunc(s, func(match string) string {
			sub := pattern.FindStringSubmatch(match)
			if len(sub) == 4 {
				return sub[1] + sub[2] + MaskCredential(sub[3])
			}
			return MaskCredential(match)
		})
	}
	return s
}

// RedactError returns err with a masked message. The original error stays
// reachable through errors.Is and errors.As.
func RedactError(err error) error {
	if err == nil {
		return nil
	}
	msg := Redact(err.Error())
	if msg == err.Error() {
		return err
	}
	return &redactedError{msg: msg, err: err}
}

type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }
func (e *redactedError) Unwrap() error { return e.err }

package redact

import (
	"regexp"
	"strings"
	"sync/atomic"
)

var enabled atomic.Bool

// Transcripts of verification calls carry exactly the data that must not
// leave the process in the clear: the caller's number, the code they read
// back, and whatever contact details they mention.
var (
	emailRe = regexp.MustCompile(`(?i)[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}`)
	phoneRe = regexp.MustCompile(`\b\+?\d[\d\s\-]{7,}\d\b`)
	codeRe  = regexp.MustCompile(`\b\d{4,8}\b`)
)

// SetEnabled toggles transcript redaction process-wide.
func SetEnabled(v bool) {
	enabled.Store(v)
}

// Enabled returns true when redaction is active.
func Enabled() bool {
	return enabled.Load()
}

// Text masks emails, phone numbers and one-time codes when enabled. Phone
// numbers are matched before codes so a number is not half-eaten by the
// shorter pattern.
func Text(in string) string {
	if !enabled.Load() || strings.TrimSpace(in) == "" {
		return in
	}
	out := emailRe.ReplaceAllString(in, "[REDACTED_EMAIL]")
	out = phoneRe.ReplaceAllString(out, "[REDACTED_PHONE]")
	out = codeRe.ReplaceAllString(out, "[REDACTED_CODE]")
	return out
}

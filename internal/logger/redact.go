package logger

import (
	"io"
	"regexp"
)

// RedactWriter wraps an io.Writer and masks sensitive values before writing.
// It redacts NickServ credentials, server passwords and *_pass config values.
type RedactWriter struct {
	w          io.Writer
	patterns   []*regexp.Regexp
	redactWith string
}

var defaultPatterns = []*regexp.Regexp{
	// NickServ IDENTIFY/GHOST/RELEASE [nick] password
	regexp.MustCompile(`(?i)((?:IDENTIFY|GHOST|RELEASE)\s+)[^"\s\\]+(?:\s+[^"\s\\]+)?`),
	// Server PASS line
	regexp.MustCompile(`(\bPASS\s+:?)[^"\s\\]+`),
	// nick_pass, server_pass in key=value or "key":"value" form
	regexp.MustCompile(`(?i)(\w*_pass["'\s:=]+)[^"'\s,}]+`),
	regexp.MustCompile(`(?i)(password["'\s:=]+)[^"'\s,}]+`),
}

// NewRedactWriter returns a RedactWriter that applies all default sensitive patterns.
func NewRedactWriter(w io.Writer) *RedactWriter {
	return &RedactWriter{
		w:          w,
		patterns:   defaultPatterns,
		redactWith: "[REDACTED]",
	}
}

// Write applies all redaction patterns before forwarding to the underlying writer.
func (r *RedactWriter) Write(p []byte) (int, error) {
	sanitized := p
	repl := []byte("${1}" + r.redactWith)
	for _, re := range r.patterns {
		sanitized = re.ReplaceAll(sanitized, repl)
	}
	if _, err := r.w.Write(sanitized); err != nil {
		return 0, err
	}
	// Report the original length so callers don't see short writes.
	return len(p), nil
}

// Package sanitize cleans free text before it is sent to the server or
// written to the audit trail.
package sanitize

import "regexp"

// MaxLen caps a sanitized argument, in characters.
const MaxLen = 200

var controlChars = regexp.MustCompile(`[\x00-\x1F\x7F]`)

// Arg strips ASCII control characters and truncates to MaxLen characters.
func Arg(s string) string {
	s = controlChars.ReplaceAllString(s, "")
	if len(s) <= MaxLen {
		return s
	}
	r := []rune(s)
	if len(r) > MaxLen {
		r = r[:MaxLen]
	}
	return string(r)
}

// HasControl reports whether s contains any ASCII control character.
func HasControl(s string) bool {
	return controlChars.MatchString(s)
}

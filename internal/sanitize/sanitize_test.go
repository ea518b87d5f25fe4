package sanitize

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestArgStripsControlChars(t *testing.T) {
	got := Arg("he\x02llo\r\n wor\x7Fld\x00")
	if got != "hello world" {
		t.Errorf("Arg stripped wrong: %q", got)
	}
}

func TestArgTruncates(t *testing.T) {
	long := strings.Repeat("a", 250)
	if got := Arg(long); len(got) != MaxLen {
		t.Errorf("Expected %d chars, got %d", MaxLen, len(got))
	}

	// Multi-byte characters count as one.
	wide := strings.Repeat("ä", 201)
	got := Arg(wide)
	if n := utf8.RuneCountInString(got); n != MaxLen {
		t.Errorf("Expected %d runes, got %d", MaxLen, n)
	}
	if !utf8.ValidString(got) {
		t.Error("Truncation split a rune")
	}
}

func TestArgStripsBeforeTruncating(t *testing.T) {
	in := strings.Repeat("\x01", 50) + strings.Repeat("b", 200)
	if got := Arg(in); got != strings.Repeat("b", 200) {
		t.Errorf("Control chars should not count toward the cap, got %d chars", len(got))
	}
}

func TestHasControl(t *testing.T) {
	if !HasControl("bold \x02text") {
		t.Error("Expected control char to be detected")
	}
	if !HasControl("del\x7F") {
		t.Error("Expected DEL to be detected")
	}
	if HasControl("plain text ümlaut") {
		t.Error("Plain text reported as control")
	}
}

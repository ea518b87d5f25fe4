package logger

import (
	"bytes"
	"strings"
	"testing"
)

func redact(input string) string {
	var buf bytes.Buffer
	w := NewRedactWriter(&buf)
	_, _ = w.Write([]byte(input))
	return buf.String()
}

func TestRedactNickServ(t *testing.T) {
	cases := []struct {
		input    string
		contains string
	}{
		{`PRIVMSG NickServ :IDENTIFY chanbot s3cretpw`, "IDENTIFY [REDACTED]"},
		{`PRIVMSG NickServ :GHOST chanbot s3cretpw`, "GHOST [REDACTED]"},
		{`PRIVMSG NickServ :release chanbot s3cretpw`, "release [REDACTED]"},
		{`PASS s3cretpw`, "PASS [REDACTED]"},
		{`{"nick_pass":"s3cretpw","nick":"chanbot"}`, `"nick":"chanbot"`},
		{`server_pass=s3cretpw`, "server_pass=[REDACTED]"},
	}
	for _, c := range cases {
		got := redact(c.input)
		if strings.Contains(got, "s3cretpw") {
			t.Errorf("secret survived in %q", got)
		}
		if !strings.Contains(got, c.contains) {
			t.Errorf("should contain %q, got: %q", c.contains, got)
		}
	}
}

func TestRedactLeavesPlainText(t *testing.T) {
	in := `{"level":"info","message":"joined #chan"}`
	if got := redact(in); got != in {
		t.Errorf("plain line changed: %q", got)
	}
}

func TestRedactWriterReportsOriginalLength(t *testing.T) {
	var buf bytes.Buffer
	w := NewRedactWriter(&buf)
	in := []byte("PASS x")
	n, err := w.Write(in)
	if err != nil || n != len(in) {
		t.Errorf("Write = %d, %v; want %d, nil", n, err, len(in))
	}
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	log := New("warn", "json", &buf)
	log.Info().Msg("hidden")
	log.Warn().Str("nick_pass", "topsecret").Msg("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info line should be filtered at warn level")
	}
	if !strings.Contains(out, `"message":"shown"`) {
		t.Errorf("warn line missing: %q", out)
	}
	if strings.Contains(out, "topsecret") {
		t.Errorf("secret field not redacted: %q", out)
	}
}

func TestNewBadLevelFallsBack(t *testing.T) {
	var buf bytes.Buffer
	log := New("loud", "json", &buf)
	log.Debug().Msg("debug")
	log.Info().Msg("info")
	if strings.Contains(buf.String(), `"message":"debug"`) {
		t.Error("debug should be filtered at the fallback info level")
	}
	if !strings.Contains(buf.String(), `"message":"info"`) {
		t.Errorf("info line missing: %q", buf.String())
	}
}

func TestStdBridge(t *testing.T) {
	var buf bytes.Buffer
	std := Std(New("info", "json", &buf), "ircevent")
	std.Printf("connected to %s", "irc.example.net")
	out := buf.String()
	if !strings.Contains(out, `"component":"ircevent"`) || !strings.Contains(out, "connected to irc.example.net") {
		t.Errorf("bridged line = %q", out)
	}
}

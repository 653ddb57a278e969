package logger

import (
	"bytes"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"0":       LogLevelNone,
		"3":       LogLevelInfo,
		"4":       LogLevelDebug,
		"debug":   LogLevelDebug,
		"trace":   LogLevelDebug,
		"info":    LogLevelInfo,
		"warning": LogLevelWarning,
		"error":   LogLevelError,
		"fatal":   LogLevelError,
		"none":    LogLevelNone,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil {
			t.Errorf("ParseLevel(%q) returned error: %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}

	if _, err := ParseLevel("7"); err == nil {
		t.Error("expected error for out of range numeric level")
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Error("expected error for unknown level name")
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf, LogLevelWarning)

	l.Debugf("debug line")
	l.Infof("info line")
	l.Warnf("warn line")
	l.Errorf("error line")

	out := buf.String()
	if strings.Contains(out, "debug line") || strings.Contains(out, "info line") {
		t.Errorf("lines below warning leaked: %q", out)
	}
	if !strings.Contains(out, "warn line") || !strings.Contains(out, "error line") {
		t.Errorf("expected warn and error lines, got %q", out)
	}
}

func TestWithTag(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf, LogLevelInfo).WithTag("machine")
	l.Infof("phase changed")

	if !strings.Contains(buf.String(), "tag=machine") {
		t.Errorf("expected tag field in output, got %q", buf.String())
	}
}

func TestNilWriterDiscards(t *testing.T) {
	l := NewLogger(nil, LogLevelDebug)
	l.Debugf("nothing to see")
	l.Errorf("still nothing")
}

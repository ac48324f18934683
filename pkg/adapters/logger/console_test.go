package logger

import (
	"bytes"
	"strings"
	"testing"

	"github.com/user/framegrab/pkg/ports"
)

func TestConsoleLogger_LevelFiltering(t *testing.T) {
	var stdout, stderr bytes.Buffer
	l := NewConsoleWriter(ports.LevelInfo, &stdout, &stderr)

	l.Debug("hidden %d", 1)
	l.Info("shown %d", 2)
	l.Warn("warned %d", 3)

	if strings.Contains(stdout.String(), "hidden") {
		t.Errorf("debug message should be filtered, got %q", stdout.String())
	}
	if !strings.Contains(stdout.String(), "shown 2") {
		t.Errorf("expected info on stdout, got %q", stdout.String())
	}
	if !strings.Contains(stderr.String(), "warned 3") {
		t.Errorf("expected warning on stderr, got %q", stderr.String())
	}
}

func TestConsoleLogger_Quiet(t *testing.T) {
	var buf bytes.Buffer
	l := NewConsoleWriter(ports.LevelQuiet, &buf, nil)

	l.Error("nothing")
	if buf.Len() != 0 {
		t.Errorf("quiet logger wrote %q", buf.String())
	}
}

func TestConsoleLogger_WithComponent(t *testing.T) {
	var buf bytes.Buffer
	l := NewConsoleWriter(ports.LevelDebug, &buf, nil)

	l.WithComponent("decode").WithComponent("guard").Debug("closed")

	if got := strings.TrimSpace(buf.String()); got != "[decode/guard] closed" {
		t.Errorf("unexpected line %q", got)
	}
}

func TestNoopLogger(t *testing.T) {
	l := NewNoop()
	if l.WithComponent("x") != ports.Logger(l) {
		t.Error("expected WithComponent to return the same logger")
	}
}

package logging

import "testing"

func TestNewLevels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "bogus", ""} {
		l := New(level)
		if l == nil || l.Logger == nil {
			t.Fatalf("New(%q) returned nil logger", level)
		}
	}
}

func TestDefault(t *testing.T) {
	if Default() == nil {
		t.Fatal("Default returned nil")
	}
}

func TestComponent(t *testing.T) {
	l := New("info").Component("engine")
	if l == nil || l.Logger == nil {
		t.Fatal("Component returned nil logger")
	}

	var nilLogger *Logger
	if nilLogger.Component("engine") == nil {
		t.Fatal("Component on nil logger should fall back to default")
	}
}

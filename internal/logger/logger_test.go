package logger

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	tests := []struct {
		debug     bool
		wantDebug bool
	}{
		{false, false},
		{true, true},
	}

	for _, tt := range tests {
		l, err := New(tt.debug)
		if err != nil {
			t.Fatalf("New(%v) error: %v", tt.debug, err)
		}
		if got := l.Core().Enabled(zapcore.DebugLevel); got != tt.wantDebug {
			t.Errorf("New(%v) debug enabled = %v, want %v", tt.debug, got, tt.wantDebug)
		}
		if !l.Core().Enabled(zapcore.InfoLevel) {
			t.Errorf("New(%v) should log at info level", tt.debug)
		}
	}
}

func TestOrNop(t *testing.T) {
	if OrNop(nil) == nil {
		t.Fatal("OrNop(nil) returned nil")
	}
	l, _ := New(false)
	if OrNop(l) != l {
		t.Error("OrNop should return the given logger")
	}
}

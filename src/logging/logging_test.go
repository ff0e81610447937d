package logging

import "testing"

func TestNew(t *testing.T) {
	for _, verbose := range []bool{false, true} {
		logger, err := New(verbose)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if logger == nil {
			t.Fatalf("expected logger instance")
		}
		if got := logger.Core().Enabled(-1); got != verbose {
			t.Fatalf("debug enabled = %v, want %v", got, verbose)
		}
		_ = logger.Sync()
	}
}

func TestOrNop(t *testing.T) {
	if OrNop(nil) == nil {
		t.Fatalf("expected no-op logger for nil")
	}
}

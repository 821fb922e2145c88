package logger

import (
	"testing"

	"go.uber.org/zap"
)

func TestNew(t *testing.T) {
	for _, tc := range []struct {
		mode    string
		verbose bool
		debug   bool
	}{
		{"", false, false},
		{"console", true, true},
		{"json", false, false},
		{"prod", true, true},
	} {
		log, err := New(tc.mode, tc.verbose)
		if err != nil {
			t.Fatalf("New(%q): %v", tc.mode, err)
		}
		if got := log.Core().Enabled(zap.DebugLevel); got != tc.debug {
			t.Errorf("New(%q, %v) debug enabled = %v, want %v", tc.mode, tc.verbose, got, tc.debug)
		}
	}
}

func TestNewUnknownMode(t *testing.T) {
	if _, err := New("xml", false); err == nil {
		t.Error("expected error for unknown log format")
	}
}

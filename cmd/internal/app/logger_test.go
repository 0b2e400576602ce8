package app

import (
	"context"
	"log/slog"
	"testing"
)

func TestNewLoggerLevels(t *testing.T) {
	cases := []struct {
		level   string
		debugOn bool
	}{
		{level: "debug", debugOn: true},
		{level: "info", debugOn: false},
		{level: "warn", debugOn: false},
		{level: "nonsense", debugOn: false},
		{level: "", debugOn: false},
	}

	for _, tc := range cases {
		log := NewLogger(tc.level)
		got := log.Handler().Enabled(context.Background(), slog.LevelDebug)
		if got != tc.debugOn {
			t.Fatalf("level %q: debug enabled = %v, want %v", tc.level, got, tc.debugOn)
		}
	}
}

package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"info", zapcore.InfoLevel},
		{"warn", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"verbose", zapcore.InfoLevel},
		{"", zapcore.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestSugaredHelpers(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	previous := base
	Set(zap.New(core))
	t.Cleanup(func() { Set(previous) })

	Debug("hidden", "k", 1)
	Info("match created", "matchId", "m-1")
	Warn("slow store", "elapsed", "2s")
	Error("store failed", "error", "boom")

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, "match created", entries[0].Message)
	assert.Equal(t, "m-1", entries[0].ContextMap()["matchId"])
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)
}

func TestInit_ReturnsConfiguredLogger(t *testing.T) {
	previous := base
	t.Cleanup(func() { Set(previous) })

	l := Init("production", "warn")
	require.NotNil(t, l)
	assert.False(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, l.Core().Enabled(zapcore.WarnLevel))
}

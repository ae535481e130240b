package logger

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"DEBUG": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"WARN":  slog.LevelWarn,
		"ERROR": slog.LevelError,
	} {
		lv, err := parseLevel(in)
		require.NoError(t, err)
		require.Equal(t, want, lv)
	}
}

func TestParseLevelFallsBackToInfo(t *testing.T) {
	lv, err := parseLevel("verbose")
	require.Error(t, err)
	require.Equal(t, slog.LevelInfo, lv)
}

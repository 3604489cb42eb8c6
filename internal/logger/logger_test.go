package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelFromString(t *testing.T) {
	tests := map[string]zerolog.Level{
		"DEBUG":    zerolog.DebugLevel,
		"info":     zerolog.InfoLevel,
		"WARNING":  zerolog.WarnLevel,
		"warn":     zerolog.WarnLevel,
		"ERROR":    zerolog.ErrorLevel,
		"CRITICAL": zerolog.ErrorLevel,
		"":         zerolog.InfoLevel,
		"verbose":  zerolog.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, LevelFromString(in), in)
	}
}

func TestNew_FileAndConsole(t *testing.T) {
	path := filepath.Join(t.TempDir(), "monyt.log")
	var console bytes.Buffer

	l, closer := New(Config{Level: "INFO", File: path, MaxSize: 1, Retention: 2, Console: true}, &console)
	l.Debug().Msg("hidden")
	l.Info().Msg("Successful ping")
	Critical(&l).Msg("Failed to ping")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"Successful ping"`)
	assert.Contains(t, string(data), `"critical":true`)
	assert.Contains(t, string(data), `"time":`)
	assert.NotContains(t, string(data), "hidden")

	assert.Contains(t, console.String(), "Failed to ping")
	assert.Contains(t, console.String(), "ERR")
}

func TestNew_NoSinks(t *testing.T) {
	l, closer := New(Config{Level: "DEBUG"}, nil)
	l.Info().Msg("dropped")
	assert.NoError(t, closer.Close())
}

func TestNew_CriticalLevelKeepsOnlyCriticalEvents(t *testing.T) {
	var console bytes.Buffer
	l, closer := New(Config{Level: "CRITICAL", Console: true}, &console)
	defer closer.Close()

	l.Warn().Msg("slow peer")
	l.Error().Msg("failed to replace default route")
	Critical(&l).Msg("Failed to ping 10.0.2.10")

	assert.NotContains(t, console.String(), "slow peer")
	assert.NotContains(t, console.String(), "failed to replace default route")
	assert.Contains(t, console.String(), "Failed to ping 10.0.2.10")
}

func TestNew_ErrorLevelKeepsPlainErrors(t *testing.T) {
	var console bytes.Buffer
	l, closer := New(Config{Level: "ERROR", Console: true}, &console)
	defer closer.Close()

	l.Error().Msg("failed to replace default route")
	Critical(&l).Msg("Failed to ping 10.0.2.10")

	assert.Contains(t, console.String(), "failed to replace default route")
	assert.Contains(t, console.String(), "Failed to ping 10.0.2.10")
}

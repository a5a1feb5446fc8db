package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, getDefaultConfig(), cfg)
	assert.FileExists(t, path)

	// The written file must load back to the same values.
	again, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}

func TestLoadConfigPartialOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[app]
Volume = 0.8
LoopMode = "all"

[visual]
ScopeWindow = "20ms"
SeekStep = "10s"

[keymap]
Quit = "ctrl+q"
TogglePause = ["space", "p"]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 0.8, cfg.App.Volume)
	assert.Equal(t, "all", cfg.App.LoopMode)
	assert.Equal(t, 20*time.Millisecond, cfg.Visual.ScopeWindow.Duration)
	assert.Equal(t, 10*time.Second, cfg.Visual.SeekStep.Duration)
	assert.Equal(t, Key{"ctrl+q"}, cfg.Keymap.Quit)
	assert.Equal(t, Key{"space", "p"}, cfg.Keymap.TogglePause)

	defaults := getDefaultConfig()
	assert.Equal(t, defaults.Visual.PeakPoints, cfg.Visual.PeakPoints)
	assert.Equal(t, defaults.Keymap.NextSong, cfg.Keymap.NextSong)
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"volume out of range", "[app]\nVolume = 1.5\n"},
		{"unknown loop mode", "[app]\nLoopMode = \"sometimes\"\n"},
		{"zero peak points", "[visual]\nPeakPoints = 0\n"},
		{"duplicate key", "[keymap]\nStop = \"d\"\n"},
		{"space spelled twice", "[keymap]\nStop = \"space\"\n"},
		{"bad key type", "[keymap]\nStop = 3\n"},
		{"bad duration", "[visual]\nTickInterval = \"often\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0644))

			_, err := LoadConfig(path)
			assert.Error(t, err)
		})
	}
}

func TestValidateReportsInvalidConfig(t *testing.T) {
	cfg := getDefaultConfig()
	cfg.Keymap.Stop = Key{"d"}

	err := cfg.Validate()
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "NextSong")
}

func TestKeyUnmarshal(t *testing.T) {
	var v struct {
		One  Key
		Many Key
	}
	_, err := toml.Decode("One = \"x\"\nMany = [\"a\", \"b\"]\n", &v)
	require.NoError(t, err)
	assert.Equal(t, Key{"x"}, v.One)
	assert.Equal(t, Key{"a", "b"}, v.Many)
}

func TestNormalizeKey(t *testing.T) {
	assert.Equal(t, " ", normalizeKey("space"))
	assert.Equal(t, " ", normalizeKey(" "))
	assert.Equal(t, "up", normalizeKey("ArrowUp"))
	assert.Equal(t, "ctrl+c", normalizeKey(" Ctrl+C "))
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := expandHome("~/music/x.toml")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "music", "x.toml"), got)

	got, err = expandHome("/etc/x.toml")
	require.NoError(t, err)
	assert.Equal(t, "/etc/x.toml", got)
}

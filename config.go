package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Key is a custom type to handle single keys or a list of keys in the TOML file.
type Key []string

// UnmarshalTOML allows the Key type to be parsed from either a string or a list of strings.
func (k *Key) UnmarshalTOML(data any) error {
	switch v := data.(type) {
	case string:
		*k = Key{v}
		return nil
	case []any:
		keys := make(Key, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return fmt.Errorf("key must be a string or a list of strings")
			}
			keys = append(keys, s)
		}
		*k = keys
		return nil
	}
	return fmt.Errorf("key must be a string or a list of strings")
}

// Duration is a time.Duration written as "50ms" or "5s" in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Config holds the application's configuration, loaded from a TOML file.
type Config struct {
	App    AppConfig    `toml:"app"`
	Visual VisualConfig `toml:"visual"`
	Log    LogConfig    `toml:"log"`
	Keymap Keymap       `toml:"keymap"`
}

// AppConfig holds general player settings.
type AppConfig struct {
	Storage           string   `toml:"Storage"`
	RememberSettings  bool     `toml:"RememberSettings"`
	MPRIS             bool     `toml:"MPRIS"`
	Notifications     bool     `toml:"Notifications"`
	Volume            float64  `toml:"Volume"`
	LoopMode          string   `toml:"LoopMode"`
	Shuffle           bool     `toml:"Shuffle"`
	SampleRate        int      `toml:"SampleRate"`
	SpeakerBuffer     Duration `toml:"SpeakerBuffer"`
	ResamplingQuality string   `toml:"ResamplingQuality"`
	ShutdownGrace     Duration `toml:"ShutdownGrace"`
}

// VisualConfig tunes the waveform and scope projections.
type VisualConfig struct {
	PeakPoints   int      `toml:"PeakPoints"`
	Decimation   int      `toml:"Decimation"`
	ScopeWindow  Duration `toml:"ScopeWindow"`
	TickInterval Duration `toml:"TickInterval"`
	SeekStep     Duration `toml:"SeekStep"`
	Epsilon      Duration `toml:"Epsilon"`
}

// LogConfig configures the rotating log file.
type LogConfig struct {
	Level      string `toml:"Level"`
	File       string `toml:"File"`
	MaxSize    int    `toml:"MaxSize"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAge     int    `toml:"MaxAge"`
	Compress   bool   `toml:"Compress"`
}

// Keymap defines the player keybindings. Keys use bubbletea key names.
type Keymap struct {
	Quit           Key `toml:"Quit"`
	TogglePause    Key `toml:"TogglePause"`
	Stop           Key `toml:"Stop"`
	SeekForward    Key `toml:"SeekForward"`
	SeekBackward   Key `toml:"SeekBackward"`
	VolumeUp       Key `toml:"VolumeUp"`
	VolumeDown     Key `toml:"VolumeDown"`
	ToggleMute     Key `toml:"ToggleMute"`
	NextSong       Key `toml:"NextSong"`
	PrevSong       Key `toml:"PrevSong"`
	CycleLoopMode  Key `toml:"CycleLoopMode"`
	ToggleShuffle  Key `toml:"ToggleShuffle"`
	NavUp          Key `toml:"NavUp"`
	NavDown        Key `toml:"NavDown"`
	PlaySelected   Key `toml:"PlaySelected"`
	RemoveSelected Key `toml:"RemoveSelected"`
	ClearTracks    Key `toml:"ClearTracks"`
}

// getDefaultConfig returns a Config struct with the default settings.
func getDefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Storage:           "~/.local/share/wavescope/storage.json",
			RememberSettings:  true,
			MPRIS:             true,
			Volume:            0.5,
			LoopMode:          LoopNone.String(),
			SampleRate:        44100,
			SpeakerBuffer:     Duration{100 * time.Millisecond},
			ResamplingQuality: "high",
			ShutdownGrace:     Duration{500 * time.Millisecond},
		},
		Visual: VisualConfig{
			PeakPoints:   defaultPeakPoints,
			Decimation:   defaultDecimation,
			ScopeWindow:  Duration{defaultScopeWindow},
			TickInterval: Duration{50 * time.Millisecond},
			SeekStep:     Duration{5 * time.Second},
			Epsilon:      Duration{defaultEpsilon},
		},
		Log: LogConfig{
			Level:      "info",
			File:       "~/.cache/wavescope/wavescope.log",
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     28,
		},
		Keymap: Keymap{
			Quit:           Key{"esc", "ctrl+c"},
			TogglePause:    Key{" "},
			Stop:           Key{"x"},
			SeekForward:    Key{"e", "right"},
			SeekBackward:   Key{"q", "left"},
			VolumeUp:       Key{"w", "+"},
			VolumeDown:     Key{"s", "-"},
			ToggleMute:     Key{"m"},
			NextSong:       Key{"d"},
			PrevSong:       Key{"a"},
			CycleLoopMode:  Key{"r"},
			ToggleShuffle:  Key{"z"},
			NavUp:          Key{"k", "up"},
			NavDown:        Key{"j", "down"},
			PlaySelected:   Key{"enter"},
			RemoveSelected: Key{"backspace", "delete"},
			ClearTracks:    Key{"c"},
		},
	}
}

// defaultConfigPath returns ~/.config/wavescope/config.toml.
func defaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not get user home directory: %w", err)
	}
	return filepath.Join(home, ".config", "wavescope", "config.toml"), nil
}

// LoadConfig loads the configuration from path. If the file doesn't exist,
// it creates it with default values.
func LoadConfig(path string) (*Config, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("could not create config directory: %w", err)
	}

	defaultConf := getDefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		// File does not exist, create it with default config
		buf := new(bytes.Buffer)
		if err := toml.NewEncoder(buf).Encode(defaultConf); err != nil {
			return nil, fmt.Errorf("could not encode default config: %w", err)
		}
		if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
			return nil, fmt.Errorf("could not write default config file: %w", err)
		}
		return defaultConf, nil
	}

	// Start from the defaults so a partial file only overrides what it names.
	config := defaultConf
	if _, err := toml.DecodeFile(path, config); err != nil {
		return nil, fmt.Errorf("could not decode config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks ranges and keybinding conflicts.
func (c *Config) Validate() error {
	if c.App.Volume < 0 || c.App.Volume > 1 {
		return fmt.Errorf("%w: [app] Volume %.2f outside 0..1", ErrInvalidConfig, c.App.Volume)
	}
	if _, err := ParseLoopMode(c.App.LoopMode); err != nil {
		return err
	}
	if c.App.SampleRate <= 0 {
		return fmt.Errorf("%w: [app] SampleRate must be positive", ErrInvalidConfig)
	}
	if c.Visual.PeakPoints <= 0 || c.Visual.Decimation <= 0 {
		return fmt.Errorf("%w: [visual] PeakPoints and Decimation must be positive", ErrInvalidConfig)
	}
	if c.Visual.ScopeWindow.Duration <= 0 || c.Visual.TickInterval.Duration <= 0 {
		return fmt.Errorf("%w: [visual] ScopeWindow and TickInterval must be positive", ErrInvalidConfig)
	}
	return validateKeymap(c.Keymap)
}

// validateKeymap checks for duplicate or empty keybindings.
func validateKeymap(keymap Keymap) error {
	assignedKeys := make(map[string]string)
	v := reflect.ValueOf(keymap)
	t := v.Type()

	for j := 0; j < v.NumField(); j++ {
		fieldName := t.Field(j).Name
		keys, ok := v.Field(j).Interface().(Key)
		if !ok {
			continue
		}
		for _, keyStr := range keys {
			k := normalizeKey(keyStr)
			if k == "" {
				return fmt.Errorf("%w: empty key in [keymap] %s", ErrInvalidConfig, fieldName)
			}
			if existing, duplicated := assignedKeys[k]; duplicated {
				return fmt.Errorf("%w: key '%s' is assigned to both '%s' and '%s'", ErrInvalidConfig, keyStr, existing, fieldName)
			}
			assignedKeys[k] = fieldName
		}
	}
	return nil
}

// normalizeKey maps config spellings onto bubbletea key names.
func normalizeKey(s string) string {
	if s == " " {
		return " "
	}
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "space":
		return " "
	case "arrowup":
		return "up"
	case "arrowdown":
		return "down"
	case "arrowleft":
		return "left"
	case "arrowright":
		return "right"
	}
	return s
}

// expandHome resolves a leading "~/" against the user's home directory.
func expandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not get user home directory: %w", err)
	}
	return filepath.Join(home, path[2:]), nil
}

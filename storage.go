package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// StorageData holds the data stored in the storage.json file.
type StorageData struct {
	Volume   *float64 `json:"volume,omitempty"`
	LoopMode *string  `json:"loop_mode,omitempty"`
	Shuffle  *bool    `json:"shuffle,omitempty"`
}

// Storage reads and writes the settings file at Path.
type Storage struct {
	Path    string
	Enabled bool
}

// NewStorage resolves path (which may start with "~/").
func NewStorage(path string, enabled bool) (*Storage, error) {
	resolved, err := expandHome(path)
	if err != nil {
		return nil, err
	}
	return &Storage{Path: resolved, Enabled: enabled}, nil
}

// Load loads data from the storage file. A missing or empty file yields
// empty data.
func (s *Storage) Load() (*StorageData, error) {
	if !s.Enabled {
		return &StorageData{}, nil
	}

	data, err := os.ReadFile(s.Path)
	if os.IsNotExist(err) {
		return &StorageData{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not read storage file: %w", err)
	}
	if len(data) == 0 {
		return &StorageData{}, nil
	}

	var storageData StorageData
	if err := json.Unmarshal(data, &storageData); err != nil {
		return nil, fmt.Errorf("could not decode storage file: %w", err)
	}
	return &storageData, nil
}

// Save writes data to the storage file.
func (s *Storage) Save(data *StorageData) error {
	if !s.Enabled {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(s.Path), 0755); err != nil {
		return fmt.Errorf("could not create storage directory: %w", err)
	}

	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("could not encode storage data: %w", err)
	}

	if err := os.WriteFile(s.Path, jsonData, 0644); err != nil {
		return fmt.Errorf("could not write storage file: %w", err)
	}
	return nil
}

// SaveSettings stores the transport's volume and play modes.
func (s *Storage) SaveSettings(snap Snapshot) error {
	loop := snap.Loop.String()
	shuffle := snap.Shuffle
	data := &StorageData{LoopMode: &loop, Shuffle: &shuffle}
	// Muting is per session; a muted volume is not remembered.
	if !snap.Muted {
		volume := snap.Volume
		data.Volume = &volume
	}
	return s.Save(data)
}

// ApplySettings overrides cfg with remembered settings.
func (d *StorageData) ApplySettings(cfg *AppConfig) {
	if d.Volume != nil && *d.Volume >= 0 && *d.Volume <= 1 {
		cfg.Volume = *d.Volume
	}
	if d.LoopMode != nil {
		if _, err := ParseLoopMode(*d.LoopMode); err == nil {
			cfg.LoopMode = *d.LoopMode
		}
	}
	if d.Shuffle != nil {
		cfg.Shuffle = *d.Shuffle
	}
}

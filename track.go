package main

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Track is one entry of the track list. Duration is 0 when unknown.
type Track struct {
	Path     string
	Duration time.Duration
}

// Name is the file name without its extension.
func (t Track) Name() string {
	base := filepath.Base(t.Path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// TrackMetadataProvider supplies the one piece of metadata the core needs.
type TrackMetadataProvider interface {
	DurationOf(path string) (time.Duration, error)
}

// beepMetadata reads durations from the decoder header: total frames divided
// by the stream's sample rate.
type beepMetadata struct{}

func (beepMetadata) DurationOf(path string) (time.Duration, error) {
	stream, err := openAudio(path)
	if err != nil {
		return 0, err
	}
	defer stream.Close()
	return stream.Duration(), nil
}

// LoopMode is the repeat policy applied when a track ends.
type LoopMode int

const (
	LoopNone LoopMode = iota
	LoopAll
	LoopOne
)

func (l LoopMode) String() string {
	switch l {
	case LoopNone:
		return "none"
	case LoopAll:
		return "all"
	case LoopOne:
		return "one"
	}
	return "UNKNOWN_LOOP_MODE"
}

// ParseLoopMode accepts the names produced by LoopMode.String.
func ParseLoopMode(s string) (LoopMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "off":
		return LoopNone, nil
	case "all":
		return LoopAll, nil
	case "one":
		return LoopOne, nil
	}
	return LoopNone, fmt.Errorf("%w: loop mode %q (want none, all or one)", ErrInvalidConfig, s)
}

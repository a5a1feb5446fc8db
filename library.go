package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"
)

// Library turns command-line paths into the track list.
type Library struct {
	meta TrackMetadataProvider
	log  *zap.Logger
}

// NewLibrary creates a new instance of Library.
func NewLibrary(meta TrackMetadataProvider, log *zap.Logger) *Library {
	return &Library{meta: meta, log: log}
}

// Collect expands files and directories into tracks. Directories are walked
// recursively and their audio files sorted by path; explicit files keep the
// order given. Unsupported files are skipped. A track whose duration cannot
// be read is kept with Duration 0.
func (l *Library) Collect(paths []string) ([]Track, error) {
	var tracks []Track
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("could not read %s: %w", p, err)
		}

		if !info.IsDir() {
			if !isSupportedAudio(p) {
				l.log.Warn("skipping unsupported file", zap.String("path", p))
				continue
			}
			tracks = append(tracks, l.track(p))
			continue
		}

		songsInDir, err := l.scanDirectory(p)
		if err != nil {
			return nil, err
		}
		for _, songPath := range songsInDir {
			tracks = append(tracks, l.track(songPath))
		}
	}

	if len(tracks) == 0 {
		return nil, ErrNoTracks
	}
	return tracks, nil
}

// scanDirectory returns every supported audio file below path.
func (l *Library) scanDirectory(path string) ([]string, error) {
	var songsInDir []string
	err := filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			l.log.Warn("skipping unreadable entry", zap.String("path", p), zap.Error(err))
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if !d.IsDir() && isSupportedAudio(d.Name()) {
			songsInDir = append(songsInDir, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("could not scan %s: %w", path, err)
	}
	sort.Strings(songsInDir)
	return songsInDir, nil
}

func (l *Library) track(path string) Track {
	d, err := l.meta.DurationOf(path)
	if err != nil {
		l.log.Warn("duration unknown", zap.String("path", path), zap.Error(err))
		d = 0
	}
	return Track{Path: path, Duration: d}
}

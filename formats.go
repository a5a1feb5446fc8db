package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/gopxl/beep/v2/wav"
)

type decodeFunc func(f *os.File) (beep.StreamSeekCloser, beep.Format, error)

// formats maps lower-case file extensions to their beep decoder.
var formats = map[string]decodeFunc{
	".flac": func(f *os.File) (beep.StreamSeekCloser, beep.Format, error) { return flac.Decode(f) },
	".mp3":  func(f *os.File) (beep.StreamSeekCloser, beep.Format, error) { return mp3.Decode(f) },
	".wav":  func(f *os.File) (beep.StreamSeekCloser, beep.Format, error) { return wav.Decode(f) },
	".ogg":  func(f *os.File) (beep.StreamSeekCloser, beep.Format, error) { return vorbis.Decode(f) },
	".oga":  func(f *os.File) (beep.StreamSeekCloser, beep.Format, error) { return vorbis.Decode(f) },
}

func supportedExtensions() []string {
	exts := make([]string, 0, len(formats))
	for ext := range formats {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

func isSupportedAudio(path string) bool {
	_, ok := formats[strings.ToLower(filepath.Ext(path))]
	return ok
}

// audioStream is an opened, decoding audio file. Close releases both the
// decoder and the underlying file.
type audioStream struct {
	beep.StreamSeekCloser
	file   *os.File
	format beep.Format
}

func (s *audioStream) Close() error {
	err := s.StreamSeekCloser.Close()
	// Most decoders close the reader themselves; a second close is harmless.
	_ = s.file.Close()
	return err
}

// Duration is the stream length converted with the stream's own rate.
func (s *audioStream) Duration() time.Duration {
	if s.format.SampleRate <= 0 || s.Len() <= 0 {
		return 0
	}
	return s.format.SampleRate.D(s.Len())
}

// openAudio opens path with the decoder registered for its extension.
func openAudio(path string) (*audioStream, error) {
	decode, ok := formats[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}

	streamer, format, err := decode(f)
	if err != nil {
		f.Close()
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: %v", ErrEmptyAudio, err)
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	return &audioStream{StreamSeekCloser: streamer, file: f, format: format}, nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Error types for common failure scenarios.
var (
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	ErrEmptyAudio        = errors.New("audio file contains no samples")
	ErrNoTracks          = errors.New("no playable tracks")
	ErrBackendNotLoaded  = errors.New("no track loaded in audio backend")
	ErrInvalidConfig     = errors.New("invalid configuration")
)

// DecodeError reports a file the sample decoder could not turn into buffers.
// It only disables the visuals; playback keeps working.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// BackendError reports a failed call into the audio backend.
type BackendError struct {
	Op  string
	Err error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("audio backend %s: %v", e.Op, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

func newDecodeError(path string, err error) error {
	if err == nil {
		return nil
	}
	// Cancellation is not a decode failure and must stay recognisable.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &DecodeError{Path: path, Err: err}
}

func newBackendError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &BackendError{Op: op, Err: err}
}

// Suggestion returns a short hint for the status line, or "" if none applies.
func Suggestion(err error) string {
	if err == nil {
		return ""
	}

	if errors.Is(err, ErrUnsupportedFormat) {
		return "Supported formats: " + strings.Join(supportedExtensions(), ", ")
	}
	if errors.Is(err, ErrEmptyAudio) {
		return "The file decoded to silence; it may be truncated"
	}
	if errors.Is(err, ErrNoTracks) {
		return "Pass audio files or directories on the command line"
	}

	var decErr *DecodeError
	if errors.As(err, &decErr) {
		return "Waveform unavailable, playback is unaffected"
	}

	var backendErr *BackendError
	if errors.As(err, &backendErr) {
		return "Playback stopped; press play to retry or pick another track"
	}

	return ""
}

// FormatError renders an error with its suggestion, if any.
func FormatError(err error) string {
	if err == nil {
		return ""
	}
	if s := Suggestion(err); s != "" {
		return fmt.Sprintf("%s (%s)", err.Error(), s)
	}
	return err.Error()
}

package main

import "fmt"

// Event is reported by the TransportController on the UI goroutine.
type Event interface {
	Message() string
}

type TrackChanged struct {
	Index int
	Track Track
}

func (e TrackChanged) Message() string {
	return fmt.Sprintf("now playing %s", e.Track.Name())
}

type PhaseChanged struct {
	Phase Phase
}

func (e PhaseChanged) Message() string {
	return e.Phase.String()
}

// DecodeFailed means the visuals for Path are unavailable.
type DecodeFailed struct {
	Path string
	Err  error
}

func (e DecodeFailed) Message() string {
	return FormatError(e.Err)
}

// PlaybackFailed means the backend rejected a transport call; the clock is
// Stopped.
type PlaybackFailed struct {
	Err error
}

func (e PlaybackFailed) Message() string {
	return FormatError(e.Err)
}

package main

import "time"

const defaultScopeWindow = 50 * time.Millisecond

// VisualProjector maps a playback position onto the decoded buffers. It holds
// no state beyond its configuration and never reads a clock.
type VisualProjector struct {
	ScopeWindow time.Duration
}

func NewVisualProjector(window time.Duration) VisualProjector {
	if window <= 0 {
		window = defaultScopeWindow
	}
	return VisualProjector{ScopeWindow: window}
}

// MarkerRatio is the marker position over the static waveform, in [0,1].
// An unknown duration yields 0.
func (VisualProjector) MarkerRatio(pos, dur time.Duration) float64 {
	if dur <= 0 {
		return 0
	}
	r := float64(pos) / float64(dur)
	switch {
	case r < 0:
		return 0
	case r > 1:
		return 1
	}
	return r
}

// Window returns the scope samples covering ScopeWindow starting at pos. The
// start is clamped so the window always fits; nil means nothing to draw.
func (v VisualProjector) Window(pos time.Duration, bufs *SampleBuffers) []float64 {
	if bufs == nil || bufs.ScopeRate <= 0 {
		return nil
	}
	n := int(v.ScopeWindow.Seconds() * bufs.ScopeRate)
	if n <= 0 || len(bufs.Scope) < n {
		return nil
	}

	start := int(pos.Seconds() * bufs.ScopeRate)
	start = max(0, min(start, len(bufs.Scope)-n))
	return bufs.Scope[start : start+n]
}

package main

import (
	"time"
)

// Backend is the audio output the clock drives. Its only notion of time is
// the elapsed playback since the last Play or Unpause call.
type Backend interface {
	Load(path string) error
	Play(start time.Duration) error

	// Cue positions the track at start without producing audio. A following
	// Unpause plays from there.
	Cue(start time.Duration) error

	Pause() error
	Unpause() error
	Stop() error
	SetVolume(v float64) error
	Volume() float64

	// Elapsed reports playback time since the last Play or Unpause. The
	// boolean is false when the backend is not playing at all.
	Elapsed() (time.Duration, bool)

	// Active reports whether the backend is still producing audio.
	Active() bool
}

// Phase is the transport phase of a PlaybackClock.
type Phase int

const (
	Stopped Phase = iota
	Playing
	Paused
)

func (p Phase) String() string {
	switch p {
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	default:
		return "stopped"
	}
}

const (
	defaultEpsilon = 50 * time.Millisecond

	// defaultOverrunGrace is how far past the known duration the computed
	// position may run while the backend still claims to be active.
	defaultOverrunGrace = time.Second
)

// PlaybackClock derives the playback position by folding backend elapsed time
// into a base offset on every transition out of Playing. It is not safe for
// concurrent use; the UI goroutine owns it.
type PlaybackClock struct {
	backend Backend

	phase    Phase
	base     time.Duration
	duration time.Duration

	Epsilon      time.Duration
	OverrunGrace time.Duration
}

func NewPlaybackClock(backend Backend) *PlaybackClock {
	return &PlaybackClock{
		backend:      backend,
		Epsilon:      defaultEpsilon,
		OverrunGrace: defaultOverrunGrace,
	}
}

func (c *PlaybackClock) Phase() Phase { return c.phase }

func (c *PlaybackClock) Duration() time.Duration { return c.duration }

// SetDuration sets the length of the loaded track; 0 means unknown.
func (c *PlaybackClock) SetDuration(d time.Duration) {
	c.duration = max(d, 0)
}

// Reset returns the clock to Stopped at offset. The backend is not touched.
func (c *PlaybackClock) Reset(offset time.Duration) {
	c.phase = Stopped
	c.base = c.clamp(offset)
}

// Position is the current playback position. It never blocks.
func (c *PlaybackClock) Position() time.Duration {
	if c.phase != Playing {
		return c.base
	}
	elapsed, ok := c.backend.Elapsed()
	if !ok && c.duration > 0 {
		// The backend has already let go of the track.
		return c.duration
	}
	return c.limit(c.base + max(elapsed, 0))
}

// Play starts the backend at from.
func (c *PlaybackClock) Play(from time.Duration) error {
	from = c.clamp(from)
	if err := c.backend.Play(from); err != nil {
		c.fail()
		return newBackendError("play", err)
	}
	c.base = from
	c.phase = Playing
	return nil
}

// Pause folds the elapsed time into the base offset, then pauses the backend.
// It is a no-op unless Playing.
func (c *PlaybackClock) Pause() error {
	if c.phase != Playing {
		return nil
	}
	c.base = c.Position()
	if err := c.backend.Pause(); err != nil {
		c.fail()
		return newBackendError("pause", err)
	}
	c.phase = Paused
	return nil
}

// Resume continues from the preserved offset. From Stopped it behaves like
// Play(base).
func (c *PlaybackClock) Resume() error {
	switch c.phase {
	case Playing:
		return nil
	case Stopped:
		return c.Play(c.base)
	}
	if err := c.backend.Unpause(); err != nil {
		c.fail()
		return newBackendError("unpause", err)
	}
	c.phase = Playing
	return nil
}

// Seek moves to target, clamped to the track. A paused clock stays paused and
// a stopped clock only moves its offset.
func (c *PlaybackClock) Seek(target time.Duration) error {
	target = c.clamp(target)

	switch c.phase {
	case Stopped:
		c.base = target
		return nil
	case Paused:
		if err := c.backend.Cue(target); err != nil {
			c.fail()
			return newBackendError("seek", err)
		}
		c.base = target
		return nil
	default:
		if err := c.backend.Play(target); err != nil {
			c.fail()
			return newBackendError("seek", err)
		}
		c.base = target
		return nil
	}
}

// Stop folds the current position into the offset and stops the backend.
func (c *PlaybackClock) Stop() error {
	c.base = c.Position()
	c.phase = Stopped
	if err := c.backend.Stop(); err != nil {
		return newBackendError("stop", err)
	}
	return nil
}

// CheckEnded reports whether the playing track has finished. On the first
// true result the clock moves to Stopped with the offset at the duration.
func (c *PlaybackClock) CheckEnded() bool {
	if c.phase != Playing {
		return false
	}
	elapsed, playing := c.backend.Elapsed()
	pos := c.base + max(elapsed, 0)

	ended := false
	switch {
	case !c.backend.Active():
		ended = !playing || pos >= c.duration-c.Epsilon
	case c.duration > 0 && pos > c.duration+c.OverrunGrace:
		ended = true
	}
	if !ended {
		return false
	}

	c.phase = Stopped
	if c.duration > 0 {
		c.base = c.duration
	} else {
		c.base = pos
	}
	return true
}

// fail leaves the clock in a defined state after a backend error, keeping the
// last good offset. The backend is stopped best-effort so it cannot keep
// playing behind a Stopped clock.
func (c *PlaybackClock) fail() {
	c.phase = Stopped
	_ = c.backend.Stop()
}

// clamp bounds a seek target to [0, duration-epsilon].
func (c *PlaybackClock) clamp(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	if c.duration > 0 {
		return min(d, max(c.duration-c.Epsilon, 0))
	}
	return d
}

// limit bounds a computed position to [0, duration+epsilon].
func (c *PlaybackClock) limit(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	if c.duration > 0 {
		return min(d, c.duration+c.Epsilon)
	}
	return d
}

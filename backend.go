package main

import (
	"math"
	"sync/atomic"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/speaker"
	"go.uber.org/zap"
)

// getResamplingQuality converts the quality string from config to a beep
// resampler quality.
func getResamplingQuality(quality string) int {
	switch quality {
	case "quick":
		return 1
	case "low":
		return 2
	case "medium":
		return 3
	case "high":
		return 4
	case "very_high":
		return 6
	default:
		return 4
	}
}

// countingStreamer counts the source frames pulled through it. Guarded by
// speaker.Lock.
type countingStreamer struct {
	s beep.Streamer
	n int
}

func (c *countingStreamer) Stream(samples [][2]float64) (n int, ok bool) {
	n, ok = c.s.Stream(samples)
	c.n += n
	return n, ok
}

func (c *countingStreamer) Err() error {
	return c.s.Err()
}

// speakerBackend plays one track at a time through the beep speaker:
// source -> counter -> ctrl -> resampler -> volume.
// Elapsed is measured in source frames, so it stays in track time.
type speakerBackend struct {
	sampleRate beep.SampleRate
	quality    int
	log        *zap.Logger

	stream  *audioStream
	counter *countingStreamer
	ctrl    *beep.Ctrl
	volume  *effects.Volume
	level   float64

	playing  bool
	gen      atomic.Uint64
	finished atomic.Bool
}

func newSpeakerBackend(rate beep.SampleRate, buffer time.Duration, quality string, log *zap.Logger) (*speakerBackend, error) {
	if err := speaker.Init(rate, rate.N(buffer)); err != nil {
		return nil, err
	}
	return &speakerBackend{
		sampleRate: rate,
		quality:    getResamplingQuality(quality),
		log:        log,
		level:      1,
	}, nil
}

func (b *speakerBackend) Load(path string) error {
	b.release()

	stream, err := openAudio(path)
	if err != nil {
		return err
	}

	counter := &countingStreamer{s: stream}
	ctrl := &beep.Ctrl{Streamer: counter, Paused: true}
	var s beep.Streamer = ctrl
	if stream.format.SampleRate != b.sampleRate {
		s = beep.Resample(b.quality, stream.format.SampleRate, b.sampleRate, ctrl)
	}
	vol := &effects.Volume{Streamer: s, Base: 2}

	b.stream, b.counter, b.ctrl, b.volume = stream, counter, ctrl, vol
	b.applyVolume()

	b.log.Debug("backend loaded",
		zap.String("path", path),
		zap.Int("sample_rate", int(stream.format.SampleRate)),
		zap.Int("frames", stream.Len()),
	)
	return nil
}

func (b *speakerBackend) Play(start time.Duration) error {
	return b.start(start, false)
}

// Cue seeks and hands the chain to the speaker with ctrl already paused, so
// no source frames are pulled until Unpause.
func (b *speakerBackend) Cue(start time.Duration) error {
	return b.start(start, true)
}

func (b *speakerBackend) start(start time.Duration, paused bool) error {
	if b.stream == nil {
		return ErrBackendNotLoaded
	}
	speaker.Clear()

	speaker.Lock()
	pos := b.stream.format.SampleRate.N(start)
	pos = max(0, min(pos, b.stream.Len()-1))
	err := b.stream.Seek(pos)
	b.counter.n = 0
	b.ctrl.Paused = paused
	speaker.Unlock()
	if err != nil {
		return err
	}

	gen := b.gen.Add(1)
	b.finished.Store(false)
	speaker.Play(beep.Seq(b.volume, beep.Callback(func() {
		if b.gen.Load() == gen {
			b.finished.Store(true)
		}
	})))
	b.playing = true
	return nil
}

func (b *speakerBackend) Pause() error {
	if b.ctrl == nil {
		return ErrBackendNotLoaded
	}
	speaker.Lock()
	b.ctrl.Paused = true
	speaker.Unlock()
	return nil
}

func (b *speakerBackend) Unpause() error {
	if b.ctrl == nil {
		return ErrBackendNotLoaded
	}
	speaker.Lock()
	b.counter.n = 0
	b.ctrl.Paused = false
	speaker.Unlock()
	return nil
}

func (b *speakerBackend) Stop() error {
	b.gen.Add(1)
	speaker.Clear()
	b.playing = false
	if b.ctrl != nil {
		speaker.Lock()
		b.ctrl.Paused = true
		speaker.Unlock()
	}
	return nil
}

func (b *speakerBackend) SetVolume(v float64) error {
	b.level = max(0, min(v, 1))
	b.applyVolume()
	return nil
}

func (b *speakerBackend) Volume() float64 { return b.level }

// applyVolume maps the linear level onto the Base-2 volume effect.
func (b *speakerBackend) applyVolume() {
	if b.volume == nil {
		return
	}
	speaker.Lock()
	b.volume.Silent = b.level <= 0
	if b.level > 0 {
		b.volume.Volume = math.Log2(b.level)
	}
	speaker.Unlock()
}

func (b *speakerBackend) Elapsed() (time.Duration, bool) {
	if b.counter == nil || !b.playing {
		return 0, false
	}
	speaker.Lock()
	n := b.counter.n
	speaker.Unlock()
	d := b.stream.format.SampleRate.D(n)
	if b.finished.Load() {
		return d, false
	}
	return d, true
}

func (b *speakerBackend) Active() bool {
	return b.playing && !b.finished.Load()
}

// Close stops playback and releases the loaded file.
func (b *speakerBackend) Close() {
	b.release()
}

func (b *speakerBackend) release() {
	_ = b.Stop()
	if b.stream != nil {
		if err := b.stream.Close(); err != nil {
			b.log.Debug("closing stream", zap.Error(err))
		}
	}
	b.stream, b.counter, b.ctrl, b.volume = nil, nil, nil, nil
}

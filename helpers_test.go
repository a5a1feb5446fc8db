package main

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/wav"
	"github.com/stretchr/testify/require"
)

// fakeBackend simulates an audio output whose time only moves on advance.
type fakeBackend struct {
	loaded  string
	elapsed time.Duration
	playing bool
	active  bool
	paused  bool
	volume  float64

	lastStart time.Duration
	calls     []string
	failOn    map[string]error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{volume: 1, failOn: map[string]error{}}
}

func (b *fakeBackend) call(op string) error {
	b.calls = append(b.calls, op)
	return b.failOn[op]
}

func (b *fakeBackend) Load(path string) error {
	if err := b.call("load"); err != nil {
		return err
	}
	b.loaded = path
	b.playing, b.active, b.paused, b.elapsed = false, false, false, 0
	return nil
}

func (b *fakeBackend) Play(start time.Duration) error {
	if err := b.call("play"); err != nil {
		return err
	}
	b.lastStart = start
	b.playing, b.active, b.paused, b.elapsed = true, true, false, 0
	return nil
}

func (b *fakeBackend) Cue(start time.Duration) error {
	if err := b.call("cue"); err != nil {
		return err
	}
	b.lastStart = start
	b.playing, b.active, b.paused, b.elapsed = true, true, true, 0
	return nil
}

func (b *fakeBackend) Pause() error {
	if err := b.call("pause"); err != nil {
		return err
	}
	b.paused = true
	return nil
}

func (b *fakeBackend) Unpause() error {
	if err := b.call("unpause"); err != nil {
		return err
	}
	b.paused = false
	b.elapsed = 0
	return nil
}

func (b *fakeBackend) Stop() error {
	if err := b.call("stop"); err != nil {
		return err
	}
	b.playing, b.active, b.paused = false, false, false
	return nil
}

func (b *fakeBackend) SetVolume(v float64) error {
	if err := b.call("volume"); err != nil {
		return err
	}
	b.volume = v
	return nil
}

func (b *fakeBackend) Volume() float64 { return b.volume }

func (b *fakeBackend) Elapsed() (time.Duration, bool) { return b.elapsed, b.playing }

func (b *fakeBackend) Active() bool { return b.active }

// advance lets d of audio play unless paused.
func (b *fakeBackend) advance(d time.Duration) {
	if b.playing && !b.paused {
		b.elapsed += d
	}
}

// finish simulates the source draining.
func (b *fakeBackend) finish() {
	b.active = false
	b.playing = false
}

// fakeLoader returns canned buffers. When gate is non-nil each Decode waits
// for it to close or for ctx to be cancelled.
type fakeLoader struct {
	mu    sync.Mutex
	gate  chan struct{}
	errs  map[string]error
	calls []string
}

func (l *fakeLoader) callCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.calls)
}

func newFakeLoader() *fakeLoader {
	return &fakeLoader{errs: map[string]error{}}
}

func (l *fakeLoader) setErr(path string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errs[path] = err
}

func (l *fakeLoader) Decode(ctx context.Context, path string) (*SampleBuffers, error) {
	l.mu.Lock()
	l.calls = append(l.calls, path)
	gate := l.gate
	err := l.errs[path]
	l.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}
	return testBuffers(path), nil
}

func testBuffers(path string) *SampleBuffers {
	scope := make([]float64, 1000)
	for i := range scope {
		scope[i] = math.Sin(float64(i) / 10)
	}
	return &SampleBuffers{
		Path:      path,
		Peaks:     []float64{0.1, 0.5, 1, 0.5, 0.1},
		Scope:     scope,
		ScopeRate: 100,
	}
}

// recordingRenderer counts draw calls.
type recordingRenderer struct {
	waveforms    int
	scopes       int
	placeholders []string
	lastPeaks    []float64
	lastMarker   float64
	lastWindow   []float64
}

func (r *recordingRenderer) DrawWaveform(peaks []float64, marker float64) {
	r.waveforms++
	r.lastPeaks = peaks
	r.lastMarker = marker
}

func (r *recordingRenderer) DrawScope(window []float64) {
	r.scopes++
	r.lastWindow = window
}

func (r *recordingRenderer) DrawPlaceholder(msg string) {
	r.placeholders = append(r.placeholders, msg)
}

func (r *recordingRenderer) lastPlaceholder() string {
	if len(r.placeholders) == 0 {
		return ""
	}
	return r.placeholders[len(r.placeholders)-1]
}

// chanDispatcher buffers sent messages for the test to receive.
type chanDispatcher struct {
	msgs chan tea.Msg
}

func newChanDispatcher() *chanDispatcher {
	return &chanDispatcher{msgs: make(chan tea.Msg, 64)}
}

func (d *chanDispatcher) Send(msg tea.Msg) { d.msgs <- msg }

func (d *chanDispatcher) next(t *testing.T) tea.Msg {
	t.Helper()
	select {
	case msg := <-d.msgs:
		return msg
	case <-time.After(2 * time.Second):
		require.FailNow(t, "timed out waiting for a dispatched message")
		return nil
	}
}

func (d *chanDispatcher) nextDecode(t *testing.T) decodeResultMsg {
	t.Helper()
	msg, ok := d.next(t).(decodeResultMsg)
	require.True(t, ok, "expected a decode result")
	return msg
}

// writeTestWAV writes a 16-bit sine wave of the given length and amplitude.
func writeTestWAV(t *testing.T, dir, name string, rate beep.SampleRate, length time.Duration, amp float64) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	total := rate.N(length)
	written := 0
	s := beep.StreamerFunc(func(samples [][2]float64) (int, bool) {
		if written >= total {
			return 0, false
		}
		n := min(len(samples), total-written)
		for i := 0; i < n; i++ {
			v := amp * math.Sin(2*math.Pi*440*float64(written+i)/float64(rate))
			samples[i] = [2]float64{v, v}
		}
		written += n
		return n, true
	})

	format := beep.Format{SampleRate: rate, NumChannels: 2, Precision: 2}
	require.NoError(t, wav.Encode(f, s, format))
	return path
}

var errBoom = errors.New("boom")

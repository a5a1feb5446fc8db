package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"
)

// Renderer draws what the controller projects. It never sees the clock.
type Renderer interface {
	DrawWaveform(peaks []float64, marker float64)
	DrawScope(window []float64)
	DrawPlaceholder(msg string)
}

// Dispatcher hands a message to the UI goroutine. *tea.Program satisfies it.
type Dispatcher interface {
	Send(msg tea.Msg)
}

// TransportState is the controller's own lifecycle, orthogonal to the clock
// phase.
type TransportState int

const (
	Idle TransportState = iota
	Loading
	Ready
	EndedAdvancing
)

func (s TransportState) String() string {
	switch s {
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case EndedAdvancing:
		return "advancing"
	default:
		return "idle"
	}
}

// decodeResultMsg carries a finished decode job back to the UI goroutine.
type decodeResultMsg struct {
	jobID uint64
	path  string
	bufs  *SampleBuffers
	err   error
}

type decodeJob struct {
	id     uint64
	path   string
	cancel context.CancelFunc
	done   chan struct{}
}

// TransportOptions wires a TransportController to its collaborators.
type TransportOptions struct {
	Backend    Backend
	Loader     SampleLoader
	Renderer   Renderer
	Dispatcher Dispatcher
	Projector  VisualProjector
	Logger     *zap.Logger

	// Rand drives shuffle; nil seeds from the wall clock.
	Rand *rand.Rand

	// Epsilon absorbs backend rounding near the track end.
	Epsilon time.Duration

	OnEvent func(Event)
}

// TransportController owns the track list, the playback clock, the current
// decode job and the decoded buffers. Every method must be called from the UI
// goroutine; the only cross-goroutine path is the decode result, which
// arrives through the Dispatcher and is applied by ApplyDecodeResult.
type TransportController struct {
	tracks  []Track
	current int
	state   TransportState
	loop    LoopMode
	shuffle bool

	clock     *PlaybackClock
	backend   Backend
	loader    SampleLoader
	projector VisualProjector
	renderer  Renderer
	dispatch  Dispatcher
	log       *zap.Logger
	rng       *rand.Rand
	onEvent   func(Event)

	buffers    *SampleBuffers
	visualErr  error
	job        *decodeJob
	jobSeq     uint64
	workers    sync.WaitGroup
	loadedPath string

	scrubbing bool
	scrubPos  time.Duration

	muted      bool
	prevVolume float64

	lastErr error
}

func NewTransportController(opts TransportOptions) *TransportController {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	projector := opts.Projector
	if projector.ScopeWindow <= 0 {
		projector = NewVisualProjector(0)
	}

	clock := NewPlaybackClock(opts.Backend)
	if opts.Epsilon > 0 {
		clock.Epsilon = opts.Epsilon
	}

	return &TransportController{
		current:   -1,
		clock:     clock,
		backend:   opts.Backend,
		loader:    opts.Loader,
		projector: projector,
		renderer:  opts.Renderer,
		dispatch:  opts.Dispatcher,
		log:       log,
		rng:       rng,
		onEvent:   opts.OnEvent,
	}
}

// --- Track list ---

func (c *TransportController) Tracks() []Track { return c.tracks }

func (c *TransportController) AddTracks(tracks ...Track) {
	c.tracks = append(c.tracks, tracks...)
}

// RemoveTrack drops a track from the list. Removing the current track stops
// playback and cancels its decode job.
func (c *TransportController) RemoveTrack(index int) error {
	if index < 0 || index >= len(c.tracks) {
		return fmt.Errorf("track index %d out of range", index)
	}

	switch {
	case index == c.current:
		c.unload()
	case index < c.current:
		c.current--
	}

	c.tracks = append(c.tracks[:index], c.tracks[index+1:]...)
	return nil
}

// ClearTracks empties the track list, stopping playback.
func (c *TransportController) ClearTracks() {
	c.unload()
	c.tracks = nil
	c.log.Info("track list cleared")
}

// unload stops the current track, cancels its decode job and leaves nothing
// current.
func (c *TransportController) unload() {
	c.cancelJob()
	if c.clock.Phase() != Stopped {
		c.report(c.clock.Stop())
	}
	c.clock.Reset(0)
	c.clock.SetDuration(0)
	c.buffers = nil
	c.visualErr = nil
	c.loadedPath = ""
	c.current = -1
	c.state = Idle
	c.redraw(0)
}

// --- Loading ---

// Load makes tracks[index] current. The previous decode job is cancelled
// without waiting; a stale result is dropped by ApplyDecodeResult. When the
// same path was stopped mid-track the stopped offset is kept, and buffers
// already decoded for the path are reused.
func (c *TransportController) Load(index int, autoplay bool) error {
	if index < 0 || index >= len(c.tracks) {
		if len(c.tracks) == 0 {
			return ErrNoTracks
		}
		return fmt.Errorf("track index %d out of range", index)
	}
	t := c.tracks[index]

	c.cancelJob()

	samePath := c.loadedPath == t.Path && c.current >= 0
	var resumeAt time.Duration
	if samePath && c.clock.Phase() == Stopped {
		pos := c.clock.Position()
		if t.Duration <= 0 || pos < t.Duration-c.clock.Epsilon {
			resumeAt = pos
		}
	}
	if c.clock.Phase() != Stopped {
		if err := c.clock.Stop(); err != nil {
			c.log.Warn("stopping previous track", zap.Error(err))
		}
	}

	if c.buffers != nil && c.buffers.Path != t.Path {
		c.buffers = nil
	}
	c.visualErr = nil
	c.current = index
	c.clock.SetDuration(t.Duration)
	c.clock.Reset(resumeAt)

	c.loadedPath = ""
	if err := c.backend.Load(t.Path); err != nil {
		c.report(newBackendError("load", err))
	} else {
		c.loadedPath = t.Path
	}

	if c.buffers == nil {
		c.startJob(t.Path)
		c.state = Loading
	} else {
		c.state = Ready
	}
	c.log.Info("track loaded",
		zap.Int("index", index),
		zap.String("path", t.Path),
		zap.Duration("duration", t.Duration),
		zap.Duration("resume_at", resumeAt),
		zap.Bool("cached_visuals", c.state == Ready),
	)
	c.emit(TrackChanged{Index: index, Track: t})
	c.redraw(resumeAt)

	if autoplay && c.loadedPath != "" {
		c.play(resumeAt)
	}
	return nil
}

func (c *TransportController) startJob(path string) {
	c.jobSeq++
	ctx, cancel := context.WithCancel(context.Background())
	job := &decodeJob{id: c.jobSeq, path: path, cancel: cancel, done: make(chan struct{})}
	c.job = job

	loader, dispatch, log := c.loader, c.dispatch, c.log
	c.workers.Add(1)
	go func() {
		defer c.workers.Done()
		defer close(job.done)
		bufs, err := decodeSafely(ctx, loader, path)
		if ctx.Err() != nil {
			log.Debug("decode cancelled", zap.Uint64("job", job.id), zap.String("path", path))
			return
		}
		dispatch.Send(decodeResultMsg{jobID: job.id, path: path, bufs: bufs, err: err})
	}()
}

// decodeSafely keeps a panicking decoder from taking the process down with it.
func decodeSafely(ctx context.Context, loader SampleLoader, path string) (bufs *SampleBuffers, err error) {
	defer func() {
		if r := recover(); r != nil {
			bufs, err = nil, &DecodeError{Path: path, Err: fmt.Errorf("decoder panic: %v", r)}
		}
	}()
	return loader.Decode(ctx, path)
}

func (c *TransportController) cancelJob() {
	if c.job == nil {
		return
	}
	c.job.cancel()
	c.job = nil
}

// ApplyDecodeResult installs a decode result if it belongs to the current
// job and track; anything else is dropped silently.
func (c *TransportController) ApplyDecodeResult(msg decodeResultMsg) {
	if c.job == nil || msg.jobID != c.job.id || msg.path != c.currentPath() {
		c.log.Debug("dropping stale decode result", zap.Uint64("job", msg.jobID), zap.String("path", msg.path))
		return
	}
	c.job.cancel()
	c.job = nil
	c.state = Ready

	if msg.err != nil {
		c.buffers = nil
		c.visualErr = msg.err
		c.report(msg.err)
		c.redraw(c.clock.Position())
		return
	}

	c.buffers = msg.bufs
	c.visualErr = nil
	c.redraw(c.clock.Position())
}

// --- Transport ---

// TogglePlay pauses, resumes, or starts playback depending on the phase.
func (c *TransportController) TogglePlay() {
	switch c.clock.Phase() {
	case Playing:
		c.report(c.clock.Pause())
		c.emit(PhaseChanged{Phase: c.clock.Phase()})
	case Paused:
		c.report(c.clock.Resume())
		c.emit(PhaseChanged{Phase: c.clock.Phase()})
	default:
		c.Play()
	}
	c.redraw(c.clock.Position())
}

// Play starts the current track from the clock's offset, loading the first
// track when nothing is current yet.
func (c *TransportController) Play() {
	if c.current < 0 || c.loadedPath == "" {
		index := max(c.current, 0)
		c.report(c.Load(index, true))
		return
	}
	if c.clock.Phase() == Paused {
		c.report(c.clock.Resume())
		c.emit(PhaseChanged{Phase: c.clock.Phase()})
		return
	}
	if c.clock.Phase() == Stopped {
		c.play(c.clock.Position())
	}
}

func (c *TransportController) play(from time.Duration) {
	if err := c.clock.Play(from); err != nil {
		c.report(err)
	}
	c.emit(PhaseChanged{Phase: c.clock.Phase()})
}

// Pause is a no-op unless playing.
func (c *TransportController) Pause() {
	if c.clock.Phase() != Playing {
		return
	}
	c.report(c.clock.Pause())
	c.emit(PhaseChanged{Phase: c.clock.Phase()})
	c.redraw(c.clock.Position())
}

// Stop halts playback and remembers the position for the next Play.
func (c *TransportController) Stop() {
	if c.clock.Phase() == Stopped {
		return
	}
	c.report(c.clock.Stop())
	c.emit(PhaseChanged{Phase: Stopped})
	c.redraw(c.clock.Position())
}

// Next moves to the following track (random under shuffle) and plays it.
func (c *TransportController) Next() {
	n := len(c.tracks)
	if n == 0 {
		return
	}
	next := (c.current + 1) % n
	if c.shuffle && n >= 2 && c.current >= 0 {
		next = c.randomOther()
	}
	c.report(c.Load(next, true))
}

// Previous moves to the preceding track, wrapping, and plays it.
func (c *TransportController) Previous() {
	n := len(c.tracks)
	if n == 0 {
		return
	}
	prev := (max(c.current, 0) - 1 + n) % n
	c.report(c.Load(prev, true))
}

// SeekTo moves the playback position; out-of-range targets are clamped.
func (c *TransportController) SeekTo(pos time.Duration) {
	if c.current < 0 {
		return
	}
	wasPhase := c.clock.Phase()
	if err := c.clock.Seek(pos); err != nil {
		c.report(err)
		if wasPhase != c.clock.Phase() {
			c.emit(PhaseChanged{Phase: c.clock.Phase()})
		}
	}
	c.redraw(c.clock.Position())
}

func (c *TransportController) SeekBy(delta time.Duration) {
	c.SeekTo(c.clock.Position() + delta)
}

// --- Scrubbing ---

// BeginScrub starts a drag on the waveform. Until EndScrub, ticks stop
// writing the position to the display.
func (c *TransportController) BeginScrub() {
	if c.current < 0 {
		return
	}
	c.scrubbing = true
	c.scrubPos = c.clock.Position()
}

// Scrub previews pos without touching the clock.
func (c *TransportController) Scrub(pos time.Duration) {
	if !c.scrubbing {
		return
	}
	c.scrubPos = max(pos, 0)
	if d := c.clock.Duration(); d > 0 {
		c.scrubPos = min(c.scrubPos, d)
	}
	c.redraw(c.scrubPos)
}

// EndScrub seeks to pos and redraws immediately.
func (c *TransportController) EndScrub(pos time.Duration) {
	if !c.scrubbing {
		return
	}
	c.scrubbing = false
	c.SeekTo(pos)
}

func (c *TransportController) Scrubbing() bool { return c.scrubbing }

// --- Volume and modes ---

func (c *TransportController) SetVolume(v float64) {
	v = max(0, min(v, 1))
	c.report(newBackendError("volume", c.backend.SetVolume(v)))
	c.muted = false
}

// ToggleMute silences the backend, restoring the previous volume on unmute.
func (c *TransportController) ToggleMute() {
	if c.muted {
		c.report(newBackendError("volume", c.backend.SetVolume(c.prevVolume)))
		c.muted = false
		return
	}
	c.prevVolume = c.backend.Volume()
	c.report(newBackendError("volume", c.backend.SetVolume(0)))
	c.muted = true
}

func (c *TransportController) CycleLoopMode() LoopMode {
	c.loop = (c.loop + 1) % 3
	return c.loop
}

func (c *TransportController) SetLoopMode(m LoopMode) { c.loop = m }

func (c *TransportController) ToggleShuffle() bool {
	c.shuffle = !c.shuffle
	return c.shuffle
}

func (c *TransportController) SetShuffle(on bool) { c.shuffle = on }

// --- Tick ---

// Playing reports whether periodic ticks are needed.
func (c *TransportController) Playing() bool {
	return c.clock.Phase() == Playing
}

// Tick pushes the current position through the projector and applies the
// end-of-track policy. It does nothing unless playing.
func (c *TransportController) Tick() {
	if c.clock.Phase() != Playing {
		return
	}
	if !c.scrubbing {
		c.redraw(c.clock.Position())
	}
	if c.clock.CheckEnded() {
		c.handleTrackEnd()
	}
}

func (c *TransportController) handleTrackEnd() {
	c.state = EndedAdvancing
	c.emit(PhaseChanged{Phase: Stopped})

	next, ok := c.nextOnEnd()
	if !ok {
		c.log.Info("end of track list")
		if err := c.backend.Stop(); err != nil {
			c.log.Warn("stopping backend", zap.Error(err))
		}
		c.clock.Reset(0)
		c.state = Ready
		c.redraw(0)
		return
	}
	c.report(c.Load(next, true))
}

// nextOnEnd applies the end-of-track policy: loop-one replays, shuffle picks
// another track at random, loop-all wraps and none stops after the last.
func (c *TransportController) nextOnEnd() (int, bool) {
	n := len(c.tracks)
	if n == 0 || c.current < 0 {
		return -1, false
	}
	switch {
	case c.loop == LoopOne:
		return c.current, true
	case c.shuffle && n >= 2:
		return c.randomOther(), true
	case c.shuffle:
		if c.loop == LoopAll {
			return c.current, true
		}
		return -1, false
	case c.loop == LoopAll:
		return (c.current + 1) % n, true
	case c.current < n-1:
		return c.current + 1, true
	}
	return -1, false
}

// randomOther picks uniformly among all indices except the current one.
func (c *TransportController) randomOther() int {
	i := c.rng.Intn(len(c.tracks) - 1)
	if i >= c.current {
		i++
	}
	return i
}

// --- Drawing ---

func (c *TransportController) redraw(pos time.Duration) {
	if c.renderer == nil {
		return
	}
	if c.buffers == nil {
		c.renderer.DrawPlaceholder(c.placeholder())
		return
	}
	c.renderer.DrawWaveform(c.buffers.Peaks, c.projector.MarkerRatio(pos, c.clock.Duration()))
	c.renderer.DrawScope(c.projector.Window(pos, c.buffers))
}

func (c *TransportController) placeholder() string {
	switch {
	case c.current < 0:
		return "no track"
	case c.visualErr != nil:
		return "waveform unavailable"
	case c.state == Loading:
		return "generating waveform..."
	}
	return ""
}

// --- Shutdown ---

// Shutdown cancels the live decode job and waits at most grace for every
// decode goroutine, superseded ones included, to exit. Then it stops the
// backend.
func (c *TransportController) Shutdown(grace time.Duration) {
	c.cancelJob()

	done := make(chan struct{})
	go func() {
		c.workers.Wait()
		close(done)
	}()
	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		c.log.Warn("decode workers did not exit in time", zap.Duration("grace", grace))
	}

	if c.clock.Phase() != Stopped {
		c.report(c.clock.Stop())
	}
}

// --- Snapshot ---

// Snapshot is a read-only view of the transport for status displays.
type Snapshot struct {
	Index    int
	Track    Track
	Tracks   int
	Phase    Phase
	State    TransportState
	Position time.Duration
	Duration time.Duration
	Volume   float64
	Muted    bool
	Loop     LoopMode
	Shuffle  bool
	Err      error
}

func (c *TransportController) Snapshot() Snapshot {
	s := Snapshot{
		Index:    c.current,
		Tracks:   len(c.tracks),
		Phase:    c.clock.Phase(),
		State:    c.state,
		Position: c.clock.Position(),
		Duration: c.clock.Duration(),
		Volume:   c.backend.Volume(),
		Muted:    c.muted,
		Loop:     c.loop,
		Shuffle:  c.shuffle,
		Err:      c.lastErr,
	}
	if c.scrubbing {
		s.Position = c.scrubPos
	}
	if c.current >= 0 {
		s.Track = c.tracks[c.current]
	}
	return s
}

func (c *TransportController) currentPath() string {
	if c.current < 0 || c.current >= len(c.tracks) {
		return ""
	}
	return c.tracks[c.current].Path
}

// --- Events ---

func (c *TransportController) report(err error) {
	if err == nil {
		return
	}
	c.lastErr = err
	c.log.Warn("transport error", zap.Error(err))

	var decErr *DecodeError
	var backendErr *BackendError
	switch {
	case errors.As(err, &decErr):
		c.emit(DecodeFailed{Path: decErr.Path, Err: err})
	case errors.As(err, &backendErr):
		c.emit(PlaybackFailed{Err: err})
		c.emit(PhaseChanged{Phase: c.clock.Phase()})
	default:
		c.emit(PlaybackFailed{Err: err})
	}
}

func (c *TransportController) emit(e Event) {
	if c.onEvent != nil {
		c.onEvent(e)
	}
}

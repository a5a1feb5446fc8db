package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"
)

const (
	volumeStep   = 0.05
	waveHeight   = 8
	scopeHeight  = 5
	headerHeight = 3 // title, status, blank
	statusTTL    = 5 * time.Second
)

type tickMsg time.Time

// keyMap adapts the configured Keymap to bubbles key bindings.
type keyMap struct {
	Quit           key.Binding
	TogglePause    key.Binding
	Stop           key.Binding
	SeekForward    key.Binding
	SeekBackward   key.Binding
	VolumeUp       key.Binding
	VolumeDown     key.Binding
	ToggleMute     key.Binding
	NextSong       key.Binding
	PrevSong       key.Binding
	CycleLoopMode  key.Binding
	ToggleShuffle  key.Binding
	NavUp          key.Binding
	NavDown        key.Binding
	PlaySelected   key.Binding
	RemoveSelected key.Binding
	ClearTracks    key.Binding
}

func binding(keys Key, desc string) key.Binding {
	names := make([]string, 0, len(keys))
	for _, k := range keys {
		names = append(names, normalizeKey(k))
	}
	shown := make([]string, 0, len(names))
	for _, n := range names {
		if n == " " {
			n = "space"
		}
		shown = append(shown, n)
	}
	return key.NewBinding(key.WithKeys(names...), key.WithHelp(strings.Join(shown, "/"), desc))
}

func newKeyMap(k Keymap) keyMap {
	return keyMap{
		Quit:           binding(k.Quit, "quit"),
		TogglePause:    binding(k.TogglePause, "play/pause"),
		Stop:           binding(k.Stop, "stop"),
		SeekForward:    binding(k.SeekForward, "seek +"),
		SeekBackward:   binding(k.SeekBackward, "seek -"),
		VolumeUp:       binding(k.VolumeUp, "vol +"),
		VolumeDown:     binding(k.VolumeDown, "vol -"),
		ToggleMute:     binding(k.ToggleMute, "mute"),
		NextSong:       binding(k.NextSong, "next"),
		PrevSong:       binding(k.PrevSong, "prev"),
		CycleLoopMode:  binding(k.CycleLoopMode, "loop"),
		ToggleShuffle:  binding(k.ToggleShuffle, "shuffle"),
		NavUp:          binding(k.NavUp, "up"),
		NavDown:        binding(k.NavDown, "down"),
		PlaySelected:   binding(k.PlaySelected, "play selected"),
		RemoveSelected: binding(k.RemoveSelected, "remove"),
		ClearTracks:    binding(k.ClearTracks, "clear list"),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.TogglePause, k.SeekBackward, k.SeekForward, k.PrevSong, k.NextSong, k.CycleLoopMode, k.ToggleShuffle, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.TogglePause, k.Stop, k.SeekBackward, k.SeekForward},
		{k.VolumeUp, k.VolumeDown, k.ToggleMute},
		{k.PrevSong, k.NextSong, k.CycleLoopMode, k.ToggleShuffle},
		{k.NavUp, k.NavDown, k.PlaySelected, k.RemoveSelected, k.ClearTracks, k.Quit},
	}
}

// model is the bubbletea model. Update runs on the UI goroutine, which is the
// only goroutine allowed to touch ctrl.
type model struct {
	ctrl   *TransportController
	frame  *frame
	mpris  *MPRISServer
	notify *Notifier

	keys     keyMap
	help     help.Model
	theme    Theme
	seekStep time.Duration
	interval time.Duration
	log      *zap.Logger

	width  int
	height int
	cursor int

	ticking  bool
	dragging bool

	status       string
	statusErr    bool
	statusExpiry time.Time
}

func newModel(cfg *Config, log *zap.Logger) *model {
	return &model{
		frame:    &frame{},
		keys:     newKeyMap(cfg.Keymap),
		help:     help.New(),
		theme:    defaultTheme(),
		seekStep: cfg.Visual.SeekStep.Duration,
		interval: cfg.Visual.TickInterval.Duration,
		log:      log,
	}
}

// attach binds the controller once the program (its Dispatcher) exists.
func (m *model) attach(ctrl *TransportController, mpris *MPRISServer, notify *Notifier) {
	m.ctrl = ctrl
	m.mpris = mpris
	m.notify = notify
	m.publish()
}

// onEvent is the controller's event sink.
func (m *model) onEvent(e Event) {
	switch ev := e.(type) {
	case TrackChanged:
		m.cursor = ev.Index
		m.setStatus(ev.Message(), false)
		m.notify.TrackChanged(ev.Track)
	case DecodeFailed, PlaybackFailed:
		m.setStatus(e.Message(), true)
	case PhaseChanged:
		m.log.Debug("phase changed", zap.Stringer("phase", ev.Phase))
	}
}

func (m *model) setStatus(msg string, isErr bool) {
	m.status = msg
	m.statusErr = isErr
	m.statusExpiry = time.Now().Add(statusTTL)
}

func (m *model) Init() tea.Cmd {
	return tea.Batch(tea.HideCursor, m.ensureTick())
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.MouseMsg:
		m.handleMouse(msg)
		return m, m.afterAction()

	case tickMsg:
		m.ticking = false
		m.ctrl.Tick()
		return m, m.afterAction()

	case decodeResultMsg:
		m.ctrl.ApplyDecodeResult(msg)
		return m, nil

	case remoteMsg:
		if msg.cmd == remoteQuit {
			return m, tea.Quit
		}
		m.handleRemote(msg)
		return m, m.afterAction()
	}
	return m, nil
}

// afterAction publishes the new state and restarts the tick loop if needed.
func (m *model) afterAction() tea.Cmd {
	m.publish()
	return m.ensureTick()
}

// ensureTick schedules the next tick while playing. At most one tick is in
// flight.
func (m *model) ensureTick() tea.Cmd {
	if m.ctrl == nil || m.ticking || !m.ctrl.Playing() {
		return nil
	}
	m.ticking = true
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m *model) publish() {
	if m.mpris != nil && m.ctrl != nil {
		m.mpris.Publish(m.ctrl.Snapshot())
	}
}

func (m *model) seekBy(delta time.Duration) {
	m.ctrl.SeekBy(delta)
	m.notifySeeked()
}

func (m *model) seekTo(pos time.Duration) {
	m.ctrl.SeekTo(pos)
	m.notifySeeked()
}

func (m *model) notifySeeked() {
	if m.mpris != nil {
		m.mpris.NotifySeeked(m.ctrl.Snapshot().Position)
	}
}

func (m *model) changeVolume(delta float64) {
	snap := m.ctrl.Snapshot()
	if snap.Muted {
		m.ctrl.ToggleMute()
		snap = m.ctrl.Snapshot()
	}
	m.ctrl.SetVolume(snap.Volume + delta)
}

func (m *model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	tracks := len(m.ctrl.Tracks())

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.TogglePause):
		m.ctrl.TogglePlay()
	case key.Matches(msg, m.keys.Stop):
		m.ctrl.Stop()
	case key.Matches(msg, m.keys.SeekForward):
		m.seekBy(m.seekStep)
	case key.Matches(msg, m.keys.SeekBackward):
		m.seekBy(-m.seekStep)
	case key.Matches(msg, m.keys.VolumeUp):
		m.changeVolume(volumeStep)
	case key.Matches(msg, m.keys.VolumeDown):
		m.changeVolume(-volumeStep)
	case key.Matches(msg, m.keys.ToggleMute):
		m.ctrl.ToggleMute()
	case key.Matches(msg, m.keys.NextSong):
		m.ctrl.Next()
	case key.Matches(msg, m.keys.PrevSong):
		m.ctrl.Previous()
	case key.Matches(msg, m.keys.CycleLoopMode):
		m.setStatus("loop "+m.ctrl.CycleLoopMode().String(), false)
	case key.Matches(msg, m.keys.ToggleShuffle):
		m.setStatus("shuffle "+onOff(m.ctrl.ToggleShuffle()), false)
	case key.Matches(msg, m.keys.NavUp):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, m.keys.NavDown):
		if m.cursor < tracks-1 {
			m.cursor++
		}
	case key.Matches(msg, m.keys.PlaySelected):
		if tracks > 0 {
			if err := m.ctrl.Load(m.cursor, true); err != nil {
				m.setStatus(FormatError(err), true)
			}
		}
	case key.Matches(msg, m.keys.RemoveSelected):
		if tracks > 0 {
			if err := m.ctrl.RemoveTrack(m.cursor); err != nil {
				m.setStatus(FormatError(err), true)
			}
			m.cursor = max(0, min(m.cursor, len(m.ctrl.Tracks())-1))
		}
	case key.Matches(msg, m.keys.ClearTracks):
		m.ctrl.ClearTracks()
		m.cursor = 0
		m.setStatus("track list cleared", false)
	case msg.String() == "?":
		m.help.ShowAll = !m.help.ShowAll
	default:
		return m, nil
	}
	return m, m.afterAction()
}

// waveformTop is the first screen row of the waveform.
func (m *model) waveformTop() int { return headerHeight }

// positionAt maps a screen column onto a track position.
func (m *model) positionAt(x int) (time.Duration, bool) {
	dur := m.ctrl.Snapshot().Duration
	if dur <= 0 || m.width <= 0 {
		return 0, false
	}
	ratio := 0.0
	if m.width > 1 {
		ratio = float64(max(0, min(x, m.width-1))) / float64(m.width-1)
	}
	return time.Duration(ratio * float64(dur)), true
}

// handleMouse turns a left-button drag over the waveform into a scrub.
func (m *model) handleMouse(msg tea.MouseMsg) {
	if msg.Button != tea.MouseButtonLeft && msg.Action != tea.MouseActionRelease {
		return
	}
	pos, ok := m.positionAt(msg.X)

	switch msg.Action {
	case tea.MouseActionPress:
		top := m.waveformTop()
		if !ok || msg.Y < top || msg.Y >= top+waveHeight {
			return
		}
		m.dragging = true
		m.ctrl.BeginScrub()
		m.ctrl.Scrub(pos)
	case tea.MouseActionMotion:
		if m.dragging && ok {
			m.ctrl.Scrub(pos)
		}
	case tea.MouseActionRelease:
		if !m.dragging {
			return
		}
		m.dragging = false
		if !ok {
			pos = m.ctrl.Snapshot().Position
		}
		m.ctrl.EndScrub(pos)
		m.notifySeeked()
	}
}

func (m *model) handleRemote(msg remoteMsg) {
	switch msg.cmd {
	case remotePlay:
		m.ctrl.Play()
	case remotePause:
		m.ctrl.Pause()
	case remotePlayPause:
		m.ctrl.TogglePlay()
	case remoteStop:
		m.ctrl.Stop()
	case remoteNext:
		m.ctrl.Next()
	case remotePrevious:
		m.ctrl.Previous()
	case remoteSeekBy:
		m.seekBy(msg.position)
	case remoteSeekTo:
		m.seekTo(msg.position)
	case remoteSetVolume:
		m.ctrl.SetVolume(msg.volume)
	case remoteSetLoop:
		m.ctrl.SetLoopMode(msg.loop)
	case remoteSetShuffle:
		m.ctrl.SetShuffle(msg.shuffle)
	}
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

// --- View ---

func (m *model) View() string {
	if m.width == 0 || m.ctrl == nil {
		return "loading..."
	}
	snap := m.ctrl.Snapshot()
	th := m.theme

	title := th.Title.Render("wavescope")
	if snap.Index >= 0 {
		title = th.Title.Render(snap.Track.Name())
	}

	var visuals string
	if m.frame.placeholder != "" || m.frame.peaks == nil {
		visuals = lipgloss.JoinVertical(lipgloss.Left,
			renderPlaceholder(m.frame.placeholder, m.width, waveHeight, th),
			renderScope(nil, m.width, scopeHeight, th),
		)
	} else {
		visuals = lipgloss.JoinVertical(lipgloss.Left,
			renderWaveform(m.frame.peaks, m.frame.marker, m.width, waveHeight, th),
			renderScope(m.frame.scope, m.width, scopeHeight, th),
		)
	}

	helpView := m.help.View(m.keys)
	used := headerHeight + waveHeight + scopeHeight + 1 + lipgloss.Height(helpView)
	list := m.renderTrackList(snap, max(0, m.height-used))

	return lipgloss.JoinVertical(lipgloss.Left,
		title,
		m.renderStatus(snap),
		"",
		visuals,
		"",
		list,
		helpView,
	)
}

func (m *model) renderStatus(snap Snapshot) string {
	th := m.theme
	icon := "■"
	switch snap.Phase {
	case Playing:
		icon = "▶"
	case Paused:
		icon = "⏸"
	}

	vol := fmt.Sprintf("vol %3.0f%%", snap.Volume*100)
	if snap.Muted {
		vol = "muted"
	}
	parts := []string{
		fmt.Sprintf("%s %s / %s", icon, formatDuration(snap.Position), formatDuration(snap.Duration)),
		vol,
		"loop " + snap.Loop.String(),
		"shuffle " + onOff(snap.Shuffle),
	}
	line := th.Muted.Render(strings.Join(parts, "  "))

	if m.status != "" && time.Now().Before(m.statusExpiry) {
		style := th.Muted
		if m.statusErr {
			style = th.Error
		}
		line += "  " + style.Render(m.status)
	}
	return line
}

// renderTrackList shows a window of the track list that keeps the cursor
// visible.
func (m *model) renderTrackList(snap Snapshot, rows int) string {
	tracks := m.ctrl.Tracks()
	if rows <= 0 || len(tracks) == 0 {
		return ""
	}

	start := 0
	if m.cursor >= rows {
		start = m.cursor - rows + 1
	}
	end := min(start+rows, len(tracks))

	lines := make([]string, 0, end-start)
	for i := start; i < end; i++ {
		prefix := "  "
		if i == snap.Index {
			prefix = "▶ "
		}
		line := fmt.Sprintf("%s%3d. %s  %s", prefix, i+1, tracks[i].Name(), formatDuration(tracks[i].Duration))
		switch {
		case i == m.cursor:
			line = m.theme.Cursor.Render(line)
		case i == snap.Index:
			line = m.theme.Current.Render(line)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

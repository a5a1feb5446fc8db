package main

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestModel(t *testing.T) (*model, *transportFixture) {
	t.Helper()
	f := newTransportFixture(t, threeTracks()...)
	m := newModel(getDefaultConfig(), zaptest.NewLogger(t))
	f.ctrl.renderer = m.frame
	f.ctrl.onEvent = func(e Event) {
		f.events = append(f.events, e)
		m.onEvent(e)
	}
	m.attach(f.ctrl, nil, nil)
	m.Update(tea.WindowSizeMsg{Width: 101, Height: 40})
	return m, f
}

func runeKey(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestModelKeys(t *testing.T) {
	m, f := newTestModel(t)
	require.NoError(t, f.ctrl.Load(0, true))

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeySpace})
	assert.Equal(t, Paused, f.ctrl.Snapshot().Phase)
	assert.Nil(t, cmd, "no tick while paused")

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeySpace})
	assert.Equal(t, Playing, f.ctrl.Snapshot().Phase)
	assert.NotNil(t, cmd, "resuming schedules a tick")

	m.Update(runeKey("d"))
	assert.Equal(t, 1, f.ctrl.Snapshot().Index)
	assert.Equal(t, 1, m.cursor, "cursor follows the current track")

	m.Update(runeKey("r"))
	assert.Equal(t, LoopAll, f.ctrl.Snapshot().Loop)

	m.Update(runeKey("z"))
	assert.True(t, f.ctrl.Snapshot().Shuffle)

	m.Update(runeKey("e"))
	assert.Equal(t, 5*time.Second, f.ctrl.Snapshot().Position)

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestModelVolumeKeysUnmute(t *testing.T) {
	m, f := newTestModel(t)
	f.ctrl.SetVolume(0.5)

	m.Update(runeKey("m"))
	assert.True(t, f.ctrl.Snapshot().Muted)

	m.Update(runeKey("w"))
	snap := f.ctrl.Snapshot()
	assert.False(t, snap.Muted)
	assert.InDelta(t, 0.55, snap.Volume, 1e-9)
}

func TestModelTrackListNavigation(t *testing.T) {
	m, f := newTestModel(t)

	m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m.Update(tea.KeyMsg{Type: tea.KeyDown})
	assert.Equal(t, 2, m.cursor)

	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, 2, f.ctrl.Snapshot().Index)
	assert.Equal(t, Playing, f.ctrl.Snapshot().Phase)

	m.Update(tea.KeyMsg{Type: tea.KeyBackspace})
	assert.Len(t, f.ctrl.Tracks(), 2)
	assert.Equal(t, 1, m.cursor)
}

func TestModelClearTracksKey(t *testing.T) {
	m, f := newTestModel(t)
	require.NoError(t, f.ctrl.Load(1, true))

	m.Update(runeKey("c"))

	assert.Empty(t, f.ctrl.Tracks())
	assert.Equal(t, 0, m.cursor)
	assert.Equal(t, Stopped, f.ctrl.Snapshot().Phase)
	assert.Equal(t, "track list cleared", m.status)
	assert.Contains(t, m.View(), "no track")
}

func TestModelMouseScrub(t *testing.T) {
	m, f := newTestModel(t)
	require.NoError(t, f.ctrl.Load(0, true))
	f.ctrl.ApplyDecodeResult(f.dispatch.nextDecode(t))

	y := m.waveformTop() + 1
	m.Update(tea.MouseMsg{X: 25, Y: y, Button: tea.MouseButtonLeft, Action: tea.MouseActionPress})
	require.True(t, f.ctrl.Scrubbing())

	m.Update(tea.MouseMsg{X: 50, Y: y, Button: tea.MouseButtonLeft, Action: tea.MouseActionMotion})
	assert.Equal(t, 15*time.Second, f.ctrl.Snapshot().Position, "preview shows the drag position")

	m.Update(tea.MouseMsg{X: 50, Y: y, Button: tea.MouseButtonNone, Action: tea.MouseActionRelease})
	assert.False(t, f.ctrl.Scrubbing())
	assert.Equal(t, 15*time.Second, f.backend.lastStart)
}

func TestModelMouseOutsideWaveformIgnored(t *testing.T) {
	m, f := newTestModel(t)
	require.NoError(t, f.ctrl.Load(0, true))

	m.Update(tea.MouseMsg{X: 10, Y: 0, Button: tea.MouseButtonLeft, Action: tea.MouseActionPress})
	assert.False(t, f.ctrl.Scrubbing())
}

func TestModelTickAdvancesAndStops(t *testing.T) {
	m, f := newTestModel(t)
	require.NoError(t, f.ctrl.Load(0, true))
	m.ticking = true

	f.backend.advance(2 * time.Second)
	_, cmd := m.Update(tickMsg(time.Now()))
	assert.NotNil(t, cmd, "still playing, next tick scheduled")

	f.ctrl.Stop()
	m.ticking = false
	_, cmd = m.Update(tickMsg(time.Now()))
	assert.Nil(t, cmd)
}

func TestModelRemoteMessages(t *testing.T) {
	m, f := newTestModel(t)
	require.NoError(t, f.ctrl.Load(0, true))

	m.Update(remoteMsg{cmd: remotePause})
	assert.Equal(t, Paused, f.ctrl.Snapshot().Phase)

	m.Update(remoteMsg{cmd: remoteSeekTo, position: 12 * time.Second})
	assert.Equal(t, 12*time.Second, f.ctrl.Snapshot().Position)

	m.Update(remoteMsg{cmd: remoteSetLoop, loop: LoopOne})
	assert.Equal(t, LoopOne, f.ctrl.Snapshot().Loop)

	m.Update(remoteMsg{cmd: remoteSetVolume, volume: 0.2})
	assert.Equal(t, 0.2, f.ctrl.Snapshot().Volume)

	_, cmd := m.Update(remoteMsg{cmd: remoteQuit})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestModelView(t *testing.T) {
	m, f := newTestModel(t)
	require.NoError(t, f.ctrl.Load(0, true))

	view := m.View()
	assert.Contains(t, view, "generating waveform...")
	assert.Contains(t, view, "loop none")
	assert.Contains(t, view, "b  0:40")

	f.ctrl.ApplyDecodeResult(f.dispatch.nextDecode(t))
	view = m.View()
	assert.NotContains(t, view, "generating waveform...")
	assert.GreaterOrEqual(t, strings.Count(view, "\n"), waveHeight+scopeHeight)
}

package main

import (
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/godbus/dbus/v5"
	"go.uber.org/zap"
)

const (
	mprisPath      = dbus.ObjectPath("/org/mpris/MediaPlayer2")
	mprisRootIface = "org.mpris.MediaPlayer2"
	mprisIface     = "org.mpris.MediaPlayer2.Player"
	mprisBusName   = "org.mpris.MediaPlayer2.wavescope"
	mprisNoTrack   = dbus.ObjectPath("/org/mpris/MediaPlayer2/TrackList/NoTrack")
)

type remoteCommand int

const (
	remotePlay remoteCommand = iota
	remotePause
	remotePlayPause
	remoteStop
	remoteNext
	remotePrevious
	remoteSeekBy
	remoteSeekTo
	remoteSetVolume
	remoteSetLoop
	remoteSetShuffle
	remoteQuit
)

// remoteMsg is an MPRIS request marshaled onto the UI goroutine.
type remoteMsg struct {
	cmd      remoteCommand
	position time.Duration
	volume   float64
	loop     LoopMode
	shuffle  bool
}

// MPRISServer exposes the transport on the session bus. D-Bus calls arrive
// on godbus goroutines, so they only post remoteMsg values; property reads
// use the snapshot last published by the UI goroutine.
type MPRISServer struct {
	conn  *dbus.Conn
	send  Dispatcher
	state atomic.Pointer[Snapshot]
	log   *zap.Logger
}

// NewMPRISServer connects to the session bus.
func NewMPRISServer(send Dispatcher, log *zap.Logger) (*MPRISServer, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect to session bus: %w", err)
	}
	return newMPRISServer(conn, send, log), nil
}

func newMPRISServer(conn *dbus.Conn, send Dispatcher, log *zap.Logger) *MPRISServer {
	m := &MPRISServer{conn: conn, send: send, log: log}
	m.state.Store(&Snapshot{Index: -1})
	return m
}

// Start exports the interfaces and claims the bus name.
func (m *MPRISServer) Start() error {
	for _, iface := range []string{"org.freedesktop.DBus.Properties", mprisRootIface, mprisIface} {
		if err := m.conn.Export(m, mprisPath, iface); err != nil {
			return fmt.Errorf("export %s: %w", iface, err)
		}
	}

	reply, err := m.conn.RequestName(mprisBusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return fmt.Errorf("request bus name: %w", err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return fmt.Errorf("bus name %s already taken", mprisBusName)
	}
	m.log.Info("mpris service started", zap.String("name", mprisBusName))
	return nil
}

// StopService releases the bus name and closes the connection.
func (m *MPRISServer) StopService() {
	if m.conn == nil {
		return
	}
	if _, err := m.conn.ReleaseName(mprisBusName); err != nil {
		m.log.Debug("release bus name", zap.Error(err))
	}
	m.conn.Close()
}

// Publish stores a new snapshot and signals the properties that changed.
// Position is not signalled; clients poll it.
func (m *MPRISServer) Publish(snap Snapshot) {
	prev := m.state.Swap(&snap)
	changed := changedPlayerProps(prev, &snap)
	if len(changed) > 0 {
		m.sendPropertiesChanged(mprisIface, changed)
	}
}

// NotifySeeked emits the Seeked signal after a discontinuity.
func (m *MPRISServer) NotifySeeked(pos time.Duration) {
	if m.conn == nil {
		return
	}
	if err := m.conn.Emit(mprisPath, mprisIface+".Seeked", pos.Microseconds()); err != nil {
		m.log.Debug("emit Seeked", zap.Error(err))
	}
}

func (m *MPRISServer) post(msg remoteMsg) *dbus.Error {
	if m.send == nil {
		return dbus.MakeFailedError(fmt.Errorf("player not running"))
	}
	m.send.Send(msg)
	return nil
}

// --- org.mpris.MediaPlayer2 ---

func (m *MPRISServer) Quit() *dbus.Error  { return m.post(remoteMsg{cmd: remoteQuit}) }
func (m *MPRISServer) Raise() *dbus.Error { return nil }

// --- org.mpris.MediaPlayer2.Player ---

func (m *MPRISServer) Next() *dbus.Error      { return m.post(remoteMsg{cmd: remoteNext}) }
func (m *MPRISServer) Previous() *dbus.Error  { return m.post(remoteMsg{cmd: remotePrevious}) }
func (m *MPRISServer) Pause() *dbus.Error     { return m.post(remoteMsg{cmd: remotePause}) }
func (m *MPRISServer) PlayPause() *dbus.Error { return m.post(remoteMsg{cmd: remotePlayPause}) }
func (m *MPRISServer) Stop() *dbus.Error      { return m.post(remoteMsg{cmd: remoteStop}) }
func (m *MPRISServer) Play() *dbus.Error      { return m.post(remoteMsg{cmd: remotePlay}) }

// Seek moves by offset microseconds.
func (m *MPRISServer) Seek(offset int64) *dbus.Error {
	return m.post(remoteMsg{cmd: remoteSeekBy, position: time.Duration(offset) * time.Microsecond})
}

// SetPosition is ignored unless trackID names the current track.
func (m *MPRISServer) SetPosition(trackID dbus.ObjectPath, position int64) *dbus.Error {
	if trackID != trackObjectPath(m.state.Load().Index) {
		return nil
	}
	return m.post(remoteMsg{cmd: remoteSeekTo, position: time.Duration(position) * time.Microsecond})
}

func (m *MPRISServer) OpenUri(uri string) *dbus.Error {
	return dbus.MakeFailedError(fmt.Errorf("OpenUri is not supported"))
}

// --- org.freedesktop.DBus.Properties ---

func (m *MPRISServer) Get(interfaceName, propertyName string) (dbus.Variant, *dbus.Error) {
	props, derr := m.GetAll(interfaceName)
	if derr != nil {
		return dbus.Variant{}, derr
	}
	v, ok := props[propertyName]
	if !ok {
		return dbus.Variant{}, dbus.MakeFailedError(fmt.Errorf("unknown property %s.%s", interfaceName, propertyName))
	}
	return v, nil
}

func (m *MPRISServer) GetAll(interfaceName string) (map[string]dbus.Variant, *dbus.Error) {
	switch interfaceName {
	case mprisRootIface:
		return rootProps(), nil
	case mprisIface:
		return playerProps(m.state.Load()), nil
	}
	return nil, dbus.MakeFailedError(fmt.Errorf("unknown interface %s", interfaceName))
}

func (m *MPRISServer) Set(interfaceName, propertyName string, value dbus.Variant) *dbus.Error {
	if interfaceName != mprisIface {
		return dbus.MakeFailedError(fmt.Errorf("unknown interface %s", interfaceName))
	}
	switch propertyName {
	case "Volume":
		v, ok := value.Value().(float64)
		if !ok {
			return dbus.MakeFailedError(fmt.Errorf("Volume must be a double"))
		}
		return m.post(remoteMsg{cmd: remoteSetVolume, volume: v})
	case "LoopStatus":
		s, ok := value.Value().(string)
		if !ok {
			return dbus.MakeFailedError(fmt.Errorf("LoopStatus must be a string"))
		}
		loop, err := parseLoopStatus(s)
		if err != nil {
			return dbus.MakeFailedError(err)
		}
		return m.post(remoteMsg{cmd: remoteSetLoop, loop: loop})
	case "Shuffle":
		b, ok := value.Value().(bool)
		if !ok {
			return dbus.MakeFailedError(fmt.Errorf("Shuffle must be a boolean"))
		}
		return m.post(remoteMsg{cmd: remoteSetShuffle, shuffle: b})
	case "Rate":
		// Only 1.0 is supported.
		return nil
	}
	return dbus.MakeFailedError(fmt.Errorf("property %s is not writable", propertyName))
}

// --- Helpers ---

func rootProps() map[string]dbus.Variant {
	return map[string]dbus.Variant{
		"CanQuit":             dbus.MakeVariant(true),
		"CanRaise":            dbus.MakeVariant(false),
		"HasTrackList":        dbus.MakeVariant(false),
		"Identity":            dbus.MakeVariant("wavescope"),
		"DesktopEntry":        dbus.MakeVariant(""),
		"SupportedUriSchemes": dbus.MakeVariant([]string{"file"}),
		"SupportedMimeTypes":  dbus.MakeVariant([]string{"audio/flac", "audio/mpeg", "audio/wav", "audio/ogg"}),
	}
}

func playerProps(s *Snapshot) map[string]dbus.Variant {
	hasTrack := s.Index >= 0
	return map[string]dbus.Variant{
		"PlaybackStatus": dbus.MakeVariant(playbackStatus(s.Phase)),
		"LoopStatus":     dbus.MakeVariant(loopStatus(s.Loop)),
		"Rate":           dbus.MakeVariant(1.0),
		"Shuffle":        dbus.MakeVariant(s.Shuffle),
		"Metadata":       dbus.MakeVariant(trackMetadata(s)),
		"Volume":         dbus.MakeVariant(s.Volume),
		"Position":       dbus.MakeVariant(s.Position.Microseconds()),
		"MinimumRate":    dbus.MakeVariant(1.0),
		"MaximumRate":    dbus.MakeVariant(1.0),
		"CanGoNext":      dbus.MakeVariant(s.Tracks > 1),
		"CanGoPrevious":  dbus.MakeVariant(s.Tracks > 1),
		"CanPlay":        dbus.MakeVariant(s.Tracks > 0),
		"CanPause":       dbus.MakeVariant(hasTrack),
		"CanSeek":        dbus.MakeVariant(hasTrack),
		"CanControl":     dbus.MakeVariant(true),
	}
}

// changedPlayerProps lists the signalled properties that differ between two
// snapshots. A nil prev reports all of them.
func changedPlayerProps(prev, next *Snapshot) map[string]any {
	changed := make(map[string]any)
	if prev == nil || prev.Phase != next.Phase {
		changed["PlaybackStatus"] = playbackStatus(next.Phase)
	}
	if prev == nil || prev.Index != next.Index || prev.Track != next.Track {
		changed["Metadata"] = trackMetadata(next)
	}
	if prev == nil || prev.Volume != next.Volume {
		changed["Volume"] = next.Volume
	}
	if prev == nil || prev.Loop != next.Loop {
		changed["LoopStatus"] = loopStatus(next.Loop)
	}
	if prev == nil || prev.Shuffle != next.Shuffle {
		changed["Shuffle"] = next.Shuffle
	}
	return changed
}

func playbackStatus(p Phase) string {
	switch p {
	case Playing:
		return "Playing"
	case Paused:
		return "Paused"
	}
	return "Stopped"
}

func loopStatus(l LoopMode) string {
	switch l {
	case LoopAll:
		return "Playlist"
	case LoopOne:
		return "Track"
	}
	return "None"
}

func parseLoopStatus(s string) (LoopMode, error) {
	switch s {
	case "None":
		return LoopNone, nil
	case "Playlist":
		return LoopAll, nil
	case "Track":
		return LoopOne, nil
	}
	return LoopNone, fmt.Errorf("unknown LoopStatus %q", s)
}

func trackObjectPath(index int) dbus.ObjectPath {
	if index < 0 {
		return mprisNoTrack
	}
	return dbus.ObjectPath(fmt.Sprintf("/org/mpris/MediaPlayer2/Track/%d", index))
}

func trackMetadata(s *Snapshot) map[string]dbus.Variant {
	md := map[string]dbus.Variant{
		"mpris:trackid": dbus.MakeVariant(trackObjectPath(s.Index)),
	}
	if s.Index < 0 {
		return md
	}
	md["mpris:length"] = dbus.MakeVariant(s.Track.Duration.Microseconds())
	md["xesam:title"] = dbus.MakeVariant(s.Track.Name())
	if abs, err := filepath.Abs(s.Track.Path); err == nil {
		md["xesam:url"] = dbus.MakeVariant("file://" + abs)
	}
	return md
}

func (m *MPRISServer) sendPropertiesChanged(interfaceName string, changedProperties map[string]any) {
	if m.conn == nil {
		return
	}
	err := m.conn.Emit(
		mprisPath,
		"org.freedesktop.DBus.Properties.PropertiesChanged",
		interfaceName,
		changedProperties,
		[]string{},
	)
	if err != nil {
		m.log.Debug("emit PropertiesChanged", zap.Error(err))
	}
}

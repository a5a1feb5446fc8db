package main

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	"go.uber.org/zap"
)

const (
	notifyDest   = "org.freedesktop.Notifications"
	notifyPath   = dbus.ObjectPath("/org/freedesktop/Notifications")
	notifyMethod = "org.freedesktop.Notifications.Notify"
	notifyExpire = int32(4000)
)

// Notifier posts "now playing" desktop notifications through the
// freedesktop.org notification service. Each new notification replaces the
// previous one.
type Notifier struct {
	conn *dbus.Conn
	log  *zap.Logger

	mu     sync.Mutex
	lastID uint32
}

func NewNotifier(conn *dbus.Conn, log *zap.Logger) *Notifier {
	return &Notifier{conn: conn, log: log}
}

// TrackChanged announces t asynchronously so a slow notification daemon
// never blocks the UI goroutine.
func (n *Notifier) TrackChanged(t Track) {
	if n == nil || n.conn == nil {
		return
	}
	summary, body := notificationText(t)
	go n.send(summary, body)
}

func (n *Notifier) send(summary, body string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	obj := n.conn.Object(notifyDest, notifyPath)
	call := obj.Call(notifyMethod, 0,
		"wavescope",
		n.lastID,
		"audio-x-generic",
		summary,
		body,
		[]string{},
		map[string]dbus.Variant{},
		notifyExpire,
	)
	if call.Err != nil {
		n.log.Debug("sending notification", zap.Error(call.Err))
		return
	}
	if err := call.Store(&n.lastID); err != nil {
		n.log.Debug("reading notification id", zap.Error(err))
	}
}

func notificationText(t Track) (summary, body string) {
	summary = sanitizeString(t.Name())
	if summary == "" {
		summary = "Unknown Title"
	}
	body = "Now playing"
	if t.Duration > 0 {
		body = fmt.Sprintf("Now playing (%s)", formatDuration(t.Duration.Round(time.Second)))
	}
	return summary, body
}

// sanitizeString removes characters notification servers interpret as
// markup.
func sanitizeString(s string) string {
	replacer := strings.NewReplacer(
		"&", "",
		"<", "",
		">", "",
		"\"", "",
	)
	return strings.TrimSpace(replacer.Replace(s))
}

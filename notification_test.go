package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNotificationText(t *testing.T) {
	summary, body := notificationText(Track{Path: "/m/Tom & Jerry <live>.flac", Duration: 185 * time.Second})
	assert.Equal(t, "Tom  Jerry live", summary)
	assert.Equal(t, "Now playing (3:05)", body)

	summary, body = notificationText(Track{Path: "/m/<>.wav"})
	assert.Equal(t, "Unknown Title", summary)
	assert.Equal(t, "Now playing", body)
}

func TestNilNotifierIsSafe(t *testing.T) {
	var n *Notifier
	assert.NotPanics(t, func() { n.TrackChanged(Track{Path: "a.wav"}) })
}

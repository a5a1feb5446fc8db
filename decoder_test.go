package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestDecodeWAV(t *testing.T) {
	dir := t.TempDir()
	path := writeTestWAV(t, dir, "tone.wav", 8000, time.Second, 0.5)

	d := NewSampleDecoder(100, 4, zaptest.NewLogger(t))
	bufs, err := d.Decode(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, path, bufs.Path)
	assert.Len(t, bufs.Peaks, 100)
	assert.Len(t, bufs.Scope, 2000)
	assert.InDelta(t, 2000.0, bufs.ScopeRate, 1e-9)

	maxPeak := 0.0
	for _, p := range bufs.Peaks {
		assert.GreaterOrEqual(t, p, 0.0)
		assert.LessOrEqual(t, p, 1.0)
		maxPeak = max(maxPeak, p)
	}
	assert.InDelta(t, 0.5, maxPeak, 0.01)

	for _, s := range bufs.Scope {
		assert.GreaterOrEqual(t, s, -1.0)
		assert.LessOrEqual(t, s, 1.0)
	}
}

func TestDecodeCancelled(t *testing.T) {
	dir := t.TempDir()
	path := writeTestWAV(t, dir, "tone.wav", 8000, time.Second, 0.5)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	bufs, err := NewSampleDecoder(0, 0, nil).Decode(ctx, path)
	assert.Nil(t, bufs)
	assert.ErrorIs(t, err, context.Canceled)

	var decErr *DecodeError
	assert.False(t, errors.As(err, &decErr), "cancellation is not a decode failure")
}

// expiringContext reports cancellation once Err has been consulted more than
// allowed times.
type expiringContext struct {
	context.Context
	allowed int
	checks  int
}

func (c *expiringContext) Err() error {
	c.checks++
	if c.checks > c.allowed {
		return context.Canceled
	}
	return nil
}

func TestDecodeCancelledMidStream(t *testing.T) {
	dir := t.TempDir()
	length := 20 * time.Second
	path := writeTestWAV(t, dir, "long.wav", 8000, length, 0.5)
	require.Greater(t, beep.SampleRate(8000).N(length), readFrames*readCheckEvery)

	ctx := &expiringContext{Context: context.Background(), allowed: 1}
	bufs, err := NewSampleDecoder(0, 0, zaptest.NewLogger(t)).Decode(ctx, path)

	assert.Nil(t, bufs)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, ctx.checks, "stopped at the first checkpoint inside the read loop")
}

func TestDecodeZeroSettingsUseDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeTestWAV(t, dir, "tone.wav", 8000, time.Second, 0.5)

	d := NewSampleDecoder(100, 4, nil)
	d.PeakPoints, d.Decimation = 0, 0
	bufs, err := d.Decode(context.Background(), path)
	require.NoError(t, err)
	assert.Len(t, bufs.Peaks, defaultPeakPoints)
	assert.Len(t, bufs.Scope, 8000/defaultDecimation)
	assert.InDelta(t, 8000.0/defaultDecimation, bufs.ScopeRate, 1e-9)

	bufs, err = (&SampleDecoder{}).Decode(context.Background(), path)
	require.NoError(t, err)
	assert.Len(t, bufs.Peaks, defaultPeakPoints)
}

func TestDecodeFailures(t *testing.T) {
	dir := t.TempDir()

	empty := filepath.Join(dir, "empty.wav")
	require.NoError(t, os.WriteFile(empty, nil, 0644))

	corrupt := filepath.Join(dir, "corrupt.flac")
	require.NoError(t, os.WriteFile(corrupt, []byte("definitely not a flac stream"), 0644))

	text := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(text, []byte("hello"), 0644))

	tests := []struct {
		name   string
		path   string
		target error
	}{
		{"zero bytes", empty, nil},
		{"corrupt", corrupt, nil},
		{"unsupported", text, ErrUnsupportedFormat},
		{"missing", filepath.Join(dir, "missing.mp3"), os.ErrNotExist},
	}

	d := NewSampleDecoder(0, 0, zaptest.NewLogger(t))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bufs, err := d.Decode(context.Background(), tt.path)
			assert.Nil(t, bufs)

			var decErr *DecodeError
			require.True(t, errors.As(err, &decErr), "got %v", err)
			assert.Equal(t, tt.path, decErr.Path)
			if tt.target != nil {
				assert.ErrorIs(t, err, tt.target)
			}
		})
	}
}

func TestPeakEnvelope(t *testing.T) {
	samples := []float64{0.1, -0.9, 0.3, 0.2, 1.5}

	peaks, err := peakEnvelope(context.Background(), samples, 2)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.9, 1}, peaks)

	peaks, err = peakEnvelope(context.Background(), samples, 100)
	require.NoError(t, err)
	assert.Len(t, peaks, len(samples), "chunk size is at least one sample")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = peakEnvelope(ctx, samples, 2)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDecimate(t *testing.T) {
	in := []float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	assert.Equal(t, []float64{0, 3, 6, 9}, decimate(in, 3))
	assert.Equal(t, in, decimate(in, 1))
}

func TestBeepMetadataDuration(t *testing.T) {
	dir := t.TempDir()
	path := writeTestWAV(t, dir, "two.wav", 8000, 2*time.Second, 0.2)

	d, err := beepMetadata{}.DurationOf(path)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, d)
}

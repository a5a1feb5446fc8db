package main

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"
)

const (
	defaultPeakPoints = 500
	defaultDecimation = 5

	// readFrames is the size of one streaming read; cancellation is checked
	// after every readCheckEvery reads.
	readFrames     = 4096
	readCheckEvery = 16
)

// SampleBuffers is the decoded, display-ready form of one track.
type SampleBuffers struct {
	Path string

	// Peaks holds one max-absolute-amplitude value per time chunk, in [0,1].
	Peaks []float64

	// Scope holds every Nth mono sample, in [-1,1].
	Scope []float64

	// ScopeRate is the effective sample rate of Scope in Hz.
	ScopeRate float64
}

// SampleLoader produces SampleBuffers for a path. Implementations must honour
// ctx cancellation and return ctx.Err() when cancelled.
type SampleLoader interface {
	Decode(ctx context.Context, path string) (*SampleBuffers, error)
}

// SampleDecoder loads whole audio files through the beep decoders and reduces
// them to a peak envelope and a decimated scope buffer. Zero or negative
// settings mean the defaults, also when set after construction.
type SampleDecoder struct {
	PeakPoints int
	Decimation int

	log *zap.Logger
}

// NewSampleDecoder returns a decoder; zero or negative settings fall back to
// the defaults.
func NewSampleDecoder(peakPoints, decimation int, log *zap.Logger) *SampleDecoder {
	if peakPoints <= 0 {
		peakPoints = defaultPeakPoints
	}
	if decimation <= 0 {
		decimation = defaultDecimation
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &SampleDecoder{PeakPoints: peakPoints, Decimation: decimation, log: log}
}

func (d *SampleDecoder) settings() (peakPoints, decimation int, log *zap.Logger) {
	peakPoints, decimation, log = d.PeakPoints, d.Decimation, d.log
	if peakPoints <= 0 {
		peakPoints = defaultPeakPoints
	}
	if decimation <= 0 {
		decimation = defaultDecimation
	}
	if log == nil {
		log = zap.NewNop()
	}
	return peakPoints, decimation, log
}

// Decode reads path completely and returns its buffers. It either returns
// both buffers non-empty, a *DecodeError, or ctx.Err() when cancelled.
func (d *SampleDecoder) Decode(ctx context.Context, path string) (*SampleBuffers, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	peakPoints, decimation, log := d.settings()

	stream, err := openAudio(path)
	if err != nil {
		return nil, newDecodeError(path, err)
	}
	defer stream.Close()

	mono, err := readMono(ctx, stream)
	if err != nil {
		return nil, newDecodeError(path, err)
	}
	if len(mono) == 0 {
		return nil, newDecodeError(path, ErrEmptyAudio)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	scope := decimate(mono, decimation)

	peaks, err := peakEnvelope(ctx, mono, peakPoints)
	if err != nil {
		return nil, err
	}

	log.Debug("decoded samples",
		zap.String("path", path),
		zap.Int("frames", len(mono)),
		zap.Int("sample_rate", int(stream.format.SampleRate)),
		zap.Int("peaks", len(peaks)),
		zap.Int("scope", len(scope)),
	)

	return &SampleBuffers{
		Path:      path,
		Peaks:     peaks,
		Scope:     scope,
		ScopeRate: float64(stream.format.SampleRate) / float64(decimation),
	}, nil
}

// readMono drains the stream, averaging each stereo frame into one sample.
// beep duplicates mono sources into both channels, so the average is exact
// for them as well.
func readMono(ctx context.Context, stream *audioStream) ([]float64, error) {
	var mono []float64
	if n := stream.Len(); n > 0 {
		mono = make([]float64, 0, n)
	}

	buf := make([][2]float64, readFrames)
	for reads := 1; ; reads++ {
		n, ok := stream.Stream(buf)
		for i := 0; i < n; i++ {
			mono = append(mono, (buf[i][0]+buf[i][1])/2)
		}
		if !ok {
			break
		}
		if reads%readCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
	}
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("stream: %w", err)
	}
	return mono, nil
}

// decimate keeps every nth sample.
func decimate(samples []float64, n int) []float64 {
	if n <= 1 {
		out := make([]float64, len(samples))
		copy(out, samples)
		return out
	}
	out := make([]float64, 0, (len(samples)+n-1)/n)
	for i := 0; i < len(samples); i += n {
		out = append(out, samples[i])
	}
	return out
}

// peakEnvelope splits samples into ceil(len/points)-sized chunks and records
// each chunk's max absolute value. Full scale (1.0) maps to 1.0; anything
// hotter is clipped.
func peakEnvelope(ctx context.Context, samples []float64, points int) ([]float64, error) {
	if len(samples) == 0 || points <= 0 {
		return nil, nil
	}
	chunk := (len(samples) + points - 1) / points

	peaks := make([]float64, 0, (len(samples)+chunk-1)/chunk)
	for start := 0; start < len(samples); start += chunk {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+chunk, len(samples))
		peak := 0.0
		for _, s := range samples[start:end] {
			peak = math.Max(peak, math.Abs(s))
		}
		peaks = append(peaks, math.Min(peak, 1))
	}
	return peaks, nil
}

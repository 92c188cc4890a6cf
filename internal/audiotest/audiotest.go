// Package audiotest provides deterministic fake sample sources for tests.
package audiotest

import (
	"io"
	"sync/atomic"
)

// Source is a seekable decode source producing a deterministic signal:
// sample k of channel c is At(k, c). Tests use it to check positioning
// and underrun behavior without real media.
type Source struct {
	SR     int
	Chans  int
	Frames int64

	pos      int64
	identify bool
	// stalled freezes ReadSamples at zero samples delivered, simulating
	// a decoder blocked on I/O.
	stalled atomic.Bool
	// seeks counts SeekSeconds calls.
	seeks atomic.Int64
}

// NewSource returns a source of the given shape.
func NewSource(sr, chans int, frames int64) *Source {
	return &Source{SR: sr, Chans: chans, Frames: frames}
}

// NewIdentifiableSource returns a source whose every sample uniquely
// encodes its frame index; see IdentValue.
func NewIdentifiableSource(sr, chans int, frames int64) *Source {
	return &Source{SR: sr, Chans: chans, Frames: frames, identify: true}
}

// identScale keeps identifiable values small but exactly representable:
// frames below 2^22 map to distinct float32 values.
const identScale = 1.0 / (1 << 22)

// IdentValue is the sample an identifiable source emits for a frame.
func IdentValue(frame int64) float32 {
	return float32(frame) * identScale
}

// IdentFrame inverts IdentValue.
func IdentFrame(v float64) int64 {
	return int64(v/identScale + 0.5)
}

// At returns the deterministic sample value for a frame and channel. The
// value encodes the frame index so tests can identify positions exactly.
func At(frame int64, ch int) float32 {
	return float32((frame+int64(ch))%997) / 997
}

func (s *Source) SampleRate() int { return s.SR }
func (s *Source) Channels() int   { return s.Chans }
func (s *Source) Close() error    { return nil }

// Stall freezes or unfreezes the source.
func (s *Source) Stall(v bool) {
	s.stalled.Store(v)
}

// Seeks returns how many times SeekSeconds ran.
func (s *Source) Seeks() int64 {
	return s.seeks.Load()
}

// Position returns the cursor in frames.
func (s *Source) Position() int64 {
	return s.pos
}

func (s *Source) ReadSamples(dst []float32) (int, error) {
	if s.stalled.Load() {
		return 0, nil
	}
	if s.pos >= s.Frames {
		return 0, io.EOF
	}
	frames := int64(len(dst) / s.Chans)
	if remaining := s.Frames - s.pos; frames > remaining {
		frames = remaining
	}
	for i := int64(0); i < frames; i++ {
		for ch := 0; ch < s.Chans; ch++ {
			v := At(s.pos+i, ch)
			if s.identify {
				v = IdentValue(s.pos + i)
			}
			dst[i*int64(s.Chans)+int64(ch)] = v
		}
	}
	s.pos += frames
	return int(frames) * s.Chans, nil
}

func (s *Source) SeekSeconds(seconds float64) error {
	s.seeks.Add(1)
	pos := int64(seconds * float64(s.SR))
	if pos > s.Frames {
		pos = s.Frames
	}
	if pos < 0 {
		pos = 0
	}
	s.pos = pos
	return nil
}

// Empty is a source that never produces data, for loop-guard tests.
type Empty struct {
	SR    int
	Chans int
	seeks atomic.Int64
}

func (e *Empty) SampleRate() int { return e.SR }
func (e *Empty) Channels() int   { return e.Chans }
func (e *Empty) Close() error    { return nil }

func (e *Empty) ReadSamples([]float32) (int, error) {
	return 0, io.EOF
}

func (e *Empty) SeekSeconds(float64) error {
	e.seeks.Add(1)
	return nil
}

// Seeks returns how many times SeekSeconds ran.
func (e *Empty) Seeks() int64 {
	return e.seeks.Load()
}

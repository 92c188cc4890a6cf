// Package aiff decodes AIFF streams via go-audio.
package aiff

import (
	"fmt"
	"io"

	"github.com/go-audio/aiff"
	"github.com/go-audio/audio"

	"github.com/dudk/resound"
	"github.com/dudk/resound/decode"
	"github.com/dudk/resound/stream"
)

func init() {
	decode.RegisterFormat("aiff", []string{"aif", "aiff"}, open)
}

type source struct {
	s       stream.SeekableStream
	decoder *aiff.Decoder
	ib      *audio.IntBuffer
	scale   float32
}

func open(s stream.SeekableStream) (decode.Source, error) {
	d, err := newDecoder(s)
	if err != nil {
		return nil, err
	}
	return &source{
		s:       s,
		decoder: d,
		scale:   float32(int(1) << (d.BitDepth - 1)),
	}, nil
}

func newDecoder(s stream.SeekableStream) (*aiff.Decoder, error) {
	d := aiff.NewDecoder(s)
	if !d.IsValidFile() {
		return nil, fmt.Errorf("%w: %q is not an aiff file", resound.ErrDecoding, s.Name())
	}
	return d, nil
}

func (s *source) SampleRate() int { return int(s.decoder.SampleRate) }
func (s *source) Channels() int   { return int(s.decoder.NumChans) }
func (s *source) Close() error    { return s.s.Close() }

func (s *source) ReadSamples(dst []float32) (int, error) {
	if s.ib == nil || cap(s.ib.Data) < len(dst) {
		s.ib = &audio.IntBuffer{
			Data:   make([]int, len(dst)),
			Format: s.decoder.Format(),
		}
	}
	s.ib.Data = s.ib.Data[:len(dst)]
	n, err := s.decoder.PCMBuffer(s.ib)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", resound.ErrDecoding, err)
	}
	for i := 0; i < n; i++ {
		dst[i] = float32(s.ib.Data[i]) / s.scale
	}
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

// SeekSeconds rewinds the container and decodes forward to the target.
func (s *source) SeekSeconds(seconds float64) error {
	if _, err := s.s.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("%w: %v", resound.ErrByteStream, err)
	}
	d, err := newDecoder(s.s)
	if err != nil {
		return err
	}
	s.decoder = d
	skip := int(seconds*float64(s.SampleRate())) * s.Channels()
	scratch := make([]float32, 4096)
	for skip > 0 {
		want := len(scratch)
		if skip < want {
			want = skip
		}
		n, err := s.ReadSamples(scratch[:want])
		if err == io.EOF || n == 0 {
			return nil
		}
		if err != nil {
			return err
		}
		skip -= n
	}
	return nil
}

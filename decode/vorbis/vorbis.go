// Package vorbis decodes Ogg Vorbis streams via jfreymuth/oggvorbis.
package vorbis

import (
	"fmt"
	"io"

	"github.com/jfreymuth/oggvorbis"

	"github.com/dudk/resound"
	"github.com/dudk/resound/decode"
	"github.com/dudk/resound/stream"
)

func init() {
	decode.RegisterFormat("vorbis", []string{"ogg", "oga"}, open)
}

type source struct {
	s       stream.SeekableStream
	decoder *oggvorbis.Reader
}

func open(s stream.SeekableStream) (decode.Source, error) {
	d, err := oggvorbis.NewReader(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", resound.ErrDecoding, err)
	}
	return &source{s: s, decoder: d}, nil
}

func (s *source) SampleRate() int { return s.decoder.SampleRate() }
func (s *source) Channels() int   { return s.decoder.Channels() }
func (s *source) Close() error    { return s.s.Close() }

func (s *source) ReadSamples(dst []float32) (int, error) {
	// The reader wants whole frames.
	want := len(dst) - len(dst)%s.decoder.Channels()
	n, err := s.decoder.Read(dst[:want])
	if n == 0 {
		if err != nil && err != io.EOF {
			return 0, fmt.Errorf("%w: %v", resound.ErrDecoding, err)
		}
		return 0, io.EOF
	}
	return n, nil
}

// SeekSeconds repositions by frame index.
func (s *source) SeekSeconds(seconds float64) error {
	frame := int64(seconds * float64(s.decoder.SampleRate()))
	if err := s.decoder.SetPosition(frame); err != nil {
		return fmt.Errorf("%w: %v", resound.ErrDecoding, err)
	}
	return nil
}

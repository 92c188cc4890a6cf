// Package mp3 decodes MPEG-1 layer III streams via go-mp3, which emits
// 16-bit little-endian stereo PCM regardless of the source layout.
package mp3

import (
	"fmt"
	"io"

	gomp3 "github.com/hajimehoshi/go-mp3"

	"github.com/dudk/resound"
	"github.com/dudk/resound/decode"
	"github.com/dudk/resound/stream"
)

func init() {
	decode.RegisterFormat("mp3", []string{"mp3"}, open)
}

// bytesPerFrame is go-mp3's output frame stride: 2 channels of int16.
const bytesPerFrame = 4

type source struct {
	s       stream.SeekableStream
	decoder *gomp3.Decoder
	buf     []byte
}

func open(s stream.SeekableStream) (decode.Source, error) {
	d, err := gomp3.NewDecoder(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", resound.ErrDecoding, err)
	}
	return &source{s: s, decoder: d}, nil
}

func (s *source) SampleRate() int { return s.decoder.SampleRate() }
func (s *source) Channels() int   { return 2 }
func (s *source) Close() error    { return s.s.Close() }

func (s *source) ReadSamples(dst []float32) (int, error) {
	need := len(dst) * 2
	if cap(s.buf) < need {
		s.buf = make([]byte, need)
	}
	s.buf = s.buf[:need]

	got := 0
	for got < need {
		n, err := s.decoder.Read(s.buf[got:])
		got += n
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("%w: %v", resound.ErrDecoding, err)
		}
		if n == 0 {
			break
		}
	}

	samples := got / 2
	for i := 0; i < samples; i++ {
		v := int16(uint16(s.buf[2*i]) | uint16(s.buf[2*i+1])<<8)
		dst[i] = float32(v) / 32768
	}
	if samples == 0 {
		return 0, io.EOF
	}
	return samples, nil
}

// SeekSeconds repositions in the decoded PCM, which go-mp3 addresses by
// byte offset.
func (s *source) SeekSeconds(seconds float64) error {
	frame := int64(seconds * float64(s.decoder.SampleRate()))
	if _, err := s.decoder.Seek(frame*bytesPerFrame, io.SeekStart); err != nil {
		return fmt.Errorf("%w: %v", resound.ErrDecoding, err)
	}
	return nil
}

// Package buffer holds fully decoded audio for in-memory playback.
//
// A Buffer is immutable once built and safe to share between any number of
// readers. Samples are stored as dithered 16-bit chunks at the engine
// sample rate, halving memory against float storage; readers convert back
// to float on the way out.
package buffer

import (
	"fmt"
	"io"
	"math/rand"
	"time"

	"github.com/dudk/resound"
	"github.com/dudk/resound/config"
	"github.com/dudk/resound/decode"
	"github.com/dudk/resound/resample"
)

// ditherSeed fixes the dither noise sequence so identical input always
// produces an identical buffer.
const ditherSeed = 10

// ditherGenerator produces triangular dither for the float-to-int16
// quantization.
type ditherGenerator struct {
	rng *rand.Rand
}

func newDitherGenerator() *ditherGenerator {
	return &ditherGenerator{rng: rand.New(rand.NewSource(ditherSeed))}
}

func (d *ditherGenerator) generate() float32 {
	return 1 - d.rng.Float32() - d.rng.Float32()
}

// Buffer is immutable decoded PCM at config.SR.
type Buffer struct {
	channels int
	length   int
	chunks   [][]int16
}

// Channels returns the channel count.
func (b *Buffer) Channels() int {
	return b.channels
}

// Len returns the length in frames.
func (b *Buffer) Len() int {
	return b.length
}

// Duration returns the playback time of the buffer.
func (b *Buffer) Duration() time.Duration {
	return time.Duration(float64(b.length) / config.SR * float64(time.Second))
}

// FromSource decodes src to completion, resampling to the engine rate when
// needed.
func FromSource(src decode.Source) (*Buffer, error) {
	channels := src.Channels()
	if channels == 0 || channels > config.MaxChannels {
		return nil, fmt.Errorf("%w: buffer with %d channels", resound.ErrRange, channels)
	}

	var rs *resample.Resampler
	if src.SampleRate() != config.SR {
		rs = resample.New(src.SampleRate(), config.SR, channels)
	}

	dither := newDitherGenerator()
	b := &Buffer{channels: channels}
	working := make([]float32, config.BufferChunkSize*channels)
	for {
		var got int
		var err error
		if rs == nil {
			got, err = readFull(src, working)
			got /= channels
		} else {
			in := rs.Prepare(config.BufferChunkSize)
			var inGot int
			inGot, err = readFull(src, in)
			got = rs.Out(working, inGot/channels, config.BufferChunkSize)
		}
		if err != nil && err != io.EOF {
			return nil, err
		}
		if got > 0 {
			chunk := make([]int16, config.BufferChunkSize*channels)
			for i := 0; i < got*channels; i++ {
				v := int32(working[i]*32768 + dither.generate())
				if v > 32767 {
					v = 32767
				} else if v < -32768 {
					v = -32768
				}
				chunk[i] = int16(v)
			}
			b.chunks = append(b.chunks, chunk)
			b.length += got
		}
		if got < config.BufferChunkSize {
			break
		}
	}

	if b.length == 0 {
		return nil, fmt.Errorf("%w: buffer of zero length", resound.ErrRange)
	}
	return b, nil
}

// readFull reads until dst is full or the source ends.
func readFull(src decode.Source, dst []float32) (int, error) {
	got := 0
	for got < len(dst) {
		n, err := src.ReadSamples(dst[got:])
		got += n
		if err == io.EOF {
			return got, io.EOF
		}
		if err != nil {
			return got, err
		}
		if n == 0 {
			return got, io.EOF
		}
	}
	return got, nil
}

// Reader reads frames out of a buffer with zero-fill past the end. The
// zero value reads from no buffer.
type Reader struct {
	b *Buffer
}

// SetBuffer points the reader at b.
func (r *Reader) SetBuffer(b *Buffer) {
	r.b = b
}

// Channels returns the channel count of the attached buffer.
func (r *Reader) Channels() int {
	if r.b == nil {
		return 0
	}
	return r.b.channels
}

// Len returns the attached buffer's length in frames.
func (r *Reader) Len() int {
	if r.b == nil {
		return 0
	}
	return r.b.length
}

// ReadFrame copies frame pos into dst[0:channels], zeroes if out of
// range.
func (r *Reader) ReadFrame(pos int, dst []float32) {
	ch := r.Channels()
	if pos < 0 || pos >= r.Len() {
		for i := 0; i < ch; i++ {
			dst[i] = 0
		}
		return
	}
	chunk := r.b.chunks[pos/config.BufferChunkSize]
	off := (pos % config.BufferChunkSize) * ch
	for i := 0; i < ch; i++ {
		dst[i] = float32(chunk[off+i]) / 32768
	}
}

// ReadFrames copies up to count frames starting at pos into dst,
// returning the contiguous frames copied. The run never crosses a chunk
// boundary, so callers loop; a zero return means pos is at or past the
// end.
func (r *Reader) ReadFrames(pos, count int, dst []float32) int {
	if r.b == nil || pos < 0 || pos >= r.b.length {
		return 0
	}
	if pos+count > r.b.length {
		count = r.b.length - pos
	}
	chunkPos := pos % config.BufferChunkSize
	if chunkPos+count > config.BufferChunkSize {
		count = config.BufferChunkSize - chunkPos
	}
	ch := r.b.channels
	chunk := r.b.chunks[pos/config.BufferChunkSize]
	for i := 0; i < count*ch; i++ {
		dst[i] = float32(chunk[chunkPos*ch+i]) / 32768
	}
	return count
}

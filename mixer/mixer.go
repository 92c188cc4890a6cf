// Package mixer sums interleaved sample blocks into busses and resolves
// channel-count mismatches between the two sides of a mix.
//
// Mono and stereo convert with equal-power coefficients; all other
// combinations map channels by index and drop or zero-fill the remainder.
package mixer

import "math"

// equal-power pan law coefficient, 1/sqrt(2)
var halfPower = float32(1 / math.Sqrt2)

// Bus is a pre-allocated interleaved accumulation buffer. Sources and
// effects add into a bus; the render loop zeroes it at the top of each
// block.
type Bus struct {
	data     []float32
	channels int
}

// NewBus returns a zeroed bus of frames*channels samples.
func NewBus(frames, channels int) *Bus {
	return &Bus{
		data:     make([]float32, frames*channels),
		channels: channels,
	}
}

// Data exposes the raw interleaved samples.
func (b *Bus) Data() []float32 {
	return b.data
}

// Channels returns the bus channel count.
func (b *Bus) Channels() int {
	return b.channels
}

// Frames returns the bus length in frames.
func (b *Bus) Frames() int {
	return len(b.data) / b.channels
}

// Zero silences the bus.
func (b *Bus) Zero() {
	for i := range b.data {
		b.data[i] = 0
	}
}

// Sum adds src into dst sample-wise. Both must share layout.
func Sum(dst, src []float32) {
	for i := range src {
		dst[i] += src[i]
	}
}

// Remap adds frames of src with srcCh channels into dst with dstCh
// channels, applying the per-frame gain function. dst must hold at least
// frames*dstCh samples.
func Remap(dst []float32, dstCh int, src []float32, srcCh int, frames int, gain func(i int) float32) {
	switch {
	case srcCh == dstCh:
		for i := 0; i < frames; i++ {
			g := gain(i)
			for ch := 0; ch < srcCh; ch++ {
				dst[i*dstCh+ch] += g * src[i*srcCh+ch]
			}
		}
	case srcCh == 1 && dstCh == 2:
		for i := 0; i < frames; i++ {
			v := gain(i) * halfPower * src[i]
			dst[i*2] += v
			dst[i*2+1] += v
		}
	case srcCh == 2 && dstCh == 1:
		for i := 0; i < frames; i++ {
			dst[i] += gain(i) * halfPower * (src[i*2] + src[i*2+1])
		}
	default:
		n := srcCh
		if dstCh < n {
			n = dstCh
		}
		for i := 0; i < frames; i++ {
			g := gain(i)
			for ch := 0; ch < n; ch++ {
				dst[i*dstCh+ch] += g * src[i*srcCh+ch]
			}
		}
	}
}

// UnityGain is the identity gain shape for Remap.
func UnityGain(int) float32 {
	return 1
}

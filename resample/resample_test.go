package resample

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentityRate(t *testing.T) {
	r := New(100, 100, 1)
	in := r.Prepare(8)
	require.NotEmpty(t, in)
	for i := range in {
		in[i] = float32(i)
	}
	out := make([]float32, 8)
	got := r.Out(out, len(in), 8)
	require.Equal(t, 8, got)
	// Unity ratio reproduces the input exactly; the priming frame only
	// pads the interpolation window, it does not delay the signal.
	for i := 0; i < got; i++ {
		assert.InDelta(t, float64(i), float64(out[i]), 1e-5, "frame %d", i)
	}
}

func TestUpsampleSine(t *testing.T) {
	const srcRate, dstRate = 22050, 44100
	const freq = 440.0
	r := New(srcRate, dstRate, 1)

	phase := 0
	next := func() float32 {
		v := math.Sin(2 * math.Pi * freq * float64(phase) / srcRate)
		phase++
		return float32(v)
	}

	out := make([]float32, 512)
	var produced []float32
	for len(produced) < 4096 {
		in := r.Prepare(512)
		for i := range in {
			in[i] = next()
		}
		got := r.Out(out, len(in), 512)
		require.Equal(t, 512, got, "steady-state blocks are always full")
		produced = append(produced, out[:got]...)
	}

	// Skip the priming transient, then compare against the ideal sine at
	// the destination rate.
	var rms float64
	count := 0
	for i := 256; i < len(produced); i++ {
		want := math.Sin(2 * math.Pi * freq * float64(i) / dstRate)
		d := float64(produced[i]) - want
		rms += d * d
		count++
	}
	rms = math.Sqrt(rms / float64(count))
	assert.Less(t, rms, 0.01)
}

func TestDownsampleProducesExactBlocks(t *testing.T) {
	r := New(48000, 44100, 2)
	out := make([]float32, 512*2)
	for block := 0; block < 20; block++ {
		in := r.Prepare(512)
		for i := range in {
			in[i] = 0.5
		}
		got := r.Out(out, len(in)/2, 512)
		require.Equal(t, 512, got, "block %d", block)
	}
}

func TestShortInputShortOutput(t *testing.T) {
	r := New(44100, 44100, 1)
	r.Prepare(512)
	// Source ends after 10 frames.
	got := r.Out(make([]float32, 512), 10, 512)
	assert.Less(t, got, 512)
	assert.Greater(t, got, 0)
}

func TestReset(t *testing.T) {
	r := New(44100, 22050, 1)
	in := r.Prepare(64)
	for i := range in {
		in[i] = 1
	}
	r.Out(make([]float32, 64), len(in), 64)
	r.Reset()
	// After a reset the window is primed silence again.
	in = r.Prepare(4)
	for i := range in {
		in[i] = 0
	}
	out := make([]float32, 4)
	got := r.Out(out, len(in), 4)
	for i := 0; i < got; i++ {
		assert.Zero(t, out[i])
	}
}

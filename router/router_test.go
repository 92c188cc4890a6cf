package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dudk/resound/config"
)

func dcBlock(channels int, value float32) []float32 {
	buf := make([]float32, config.BlockSize*channels)
	for i := range buf {
		buf[i] = value
	}
	return buf
}

// blockMean renders one block through the router and returns the mean of
// the input accumulator.
func blockMean(r *Router, out *OutputHandle, in *InputHandle, src []float32, channels int) float64 {
	out.RouteAudio(src, channels)
	var sum float64
	for _, v := range in.Buffer() {
		sum += float64(v)
	}
	return sum / float64(len(in.Buffer()))
}

func TestRouteStateMachine(t *testing.T) {
	r := New()
	in := NewInputHandle(r, 1)
	out := NewOutputHandle(r)

	const fadeIn = 3
	r.ConfigureRoute(out, in, 1, fadeIn)
	require.Len(t, r.routes, 1)
	assert.Equal(t, FadeIn, r.routes[0].state)

	src := dcBlock(1, 1)
	for b := 0; b < fadeIn; b++ {
		out.RouteAudio(src, 1)
		r.FinishBlock()
	}
	assert.Equal(t, Steady, r.routes[0].state)
	assert.Equal(t, float32(1), r.routes[0].gainAt(r.Time()))

	const fadeOut = 2
	r.RemoveRoute(out, in, fadeOut)
	assert.Equal(t, FadeOut, r.routes[0].state)
	for b := 0; b < fadeOut; b++ {
		require.Len(t, r.routes, 1)
		out.RouteAudio(src, 1)
		r.FinishBlock()
	}
	// Dead routes are collected at the end of the block that finishes the
	// fade.
	assert.Empty(t, r.routes)
}

func TestRouteFadeInShape(t *testing.T) {
	r := New()
	in := NewInputHandle(r, 1)
	out := NewOutputHandle(r)
	r.ConfigureRoute(out, in, 1, 3)

	src := dcBlock(1, 1)
	// The ramp is linear from 0 to 1 over three blocks, evaluated per
	// sample, so each block's mean sits mid-segment.
	want := []float64{1.0 / 6, 3.0 / 6, 5.0 / 6}
	for b := 0; b < 3; b++ {
		mean := blockMean(r, out, in, src, 1)
		assert.InDelta(t, want[b], mean, 1e-3, "block %d", b)
		r.FinishBlock()
	}
	mean := blockMean(r, out, in, src, 1)
	assert.InDelta(t, 1.0, mean, 1e-6)
}

func TestRouteIdempotentConfigure(t *testing.T) {
	render := func(reconfigure bool) []float64 {
		r := New()
		in := NewInputHandle(r, 1)
		out := NewOutputHandle(r)
		src := dcBlock(1, 1)
		r.ConfigureRoute(out, in, 0.5, 1)
		if reconfigure {
			r.ConfigureRoute(out, in, 0.5, 1)
		}
		var means []float64
		for b := 0; b < 4; b++ {
			means = append(means, blockMean(r, out, in, src, 1))
			r.FinishBlock()
			if reconfigure && b == 1 {
				r.ConfigureRoute(out, in, 0.5, 1)
			}
		}
		return means
	}
	assert.InDeltaSlice(t, render(false), render(true), 1e-6)
}

func TestRouteGainChanged(t *testing.T) {
	r := New()
	in := NewInputHandle(r, 1)
	out := NewOutputHandle(r)
	src := dcBlock(1, 1)

	r.ConfigureRoute(out, in, 1, 1)
	out.RouteAudio(src, 1)
	r.FinishBlock()
	require.Equal(t, Steady, r.routes[0].state)

	r.ConfigureRoute(out, in, 0.5, 1)
	assert.Equal(t, GainChanged, r.routes[0].state)
	// One-block ramp from 1 to 0.5.
	mean := blockMean(r, out, in, src, 1)
	assert.InDelta(t, 0.75, mean, 1e-3)
	r.FinishBlock()
	assert.Equal(t, Steady, r.routes[0].state)
	mean = blockMean(r, out, in, src, 1)
	assert.InDelta(t, 0.5, mean, 1e-6)
}

func TestRouteRemoveThenReAdd(t *testing.T) {
	r := New()
	in := NewInputHandle(r, 1)
	out := NewOutputHandle(r)
	src := dcBlock(1, 1)

	r.ConfigureRoute(out, in, 1, 1)
	out.RouteAudio(src, 1)
	r.FinishBlock()

	r.RemoveRoute(out, in, 4)
	out.RouteAudio(src, 1)
	r.FinishBlock()

	// Revived mid fade-out: the same route flips back to FadeIn and its
	// ramp resumes from the interrupted value, not from zero.
	r.ConfigureRoute(out, in, 1, 4)
	require.Len(t, r.routes, 1)
	assert.Equal(t, FadeIn, r.routes[0].state)
	resumed := r.routes[0].gainAt(r.Time())
	assert.InDelta(t, 0.75, resumed, 1e-6)

	prevEnd := resumed
	for b := 0; b < 4; b++ {
		g0 := r.routes[0].gainAt(r.Time())
		assert.InDelta(t, float64(prevEnd), float64(g0), 1e-6, "no discontinuity at block %d", b)
		prevEnd = r.routes[0].gainAt(r.Time() + 1)
		out.RouteAudio(src, 1)
		r.FinishBlock()
	}
	assert.Equal(t, Steady, r.routes[0].state)
}

func TestRoutingConservation(t *testing.T) {
	// With unit gain, the input accumulator is the sample-exact sum of
	// all routed outputs.
	r := New()
	in := NewInputHandle(r, 1)
	outA := NewOutputHandle(r)
	outB := NewOutputHandle(r)
	r.ConfigureRoute(outA, in, 1, 1)
	r.ConfigureRoute(outB, in, 1, 1)
	r.FinishBlock() // complete both fade-ins

	srcA := dcBlock(1, 0.25)
	srcB := dcBlock(1, 0.5)
	outA.RouteAudio(srcA, 1)
	outB.RouteAudio(srcB, 1)
	for _, v := range in.Buffer() {
		assert.Equal(t, float32(0.75), v)
	}
}

func TestRouterAccumulatorZeroedPerBlock(t *testing.T) {
	r := New()
	in := NewInputHandle(r, 2)
	out := NewOutputHandle(r)
	r.ConfigureRoute(out, in, 1, 1)
	out.RouteAudio(dcBlock(2, 1), 2)
	r.FinishBlock()
	for _, v := range in.Buffer() {
		assert.Zero(t, v)
	}
}

func TestRouteChannelMismatch(t *testing.T) {
	r := New()
	in := NewInputHandle(r, 2)
	out := NewOutputHandle(r)
	r.ConfigureRoute(out, in, 1, 1)
	r.FinishBlock()

	out.RouteAudio(dcBlock(1, 1), 1)
	buf := in.Buffer()
	// Mono fans out to stereo at equal power.
	assert.InDelta(t, 0.7071, float64(buf[0]), 1e-3)
	assert.InDelta(t, float64(buf[0]), float64(buf[1]), 1e-6)
}

func TestRemoveAllRoutes(t *testing.T) {
	r := New()
	inA := NewInputHandle(r, 1)
	inB := NewInputHandle(r, 1)
	out := NewOutputHandle(r)
	r.ConfigureRoute(out, inA, 1, 1)
	r.ConfigureRoute(out, inB, 1, 1)
	r.FinishBlock()

	r.RemoveAllRoutes(out, 1)
	for i := range r.routes {
		assert.Equal(t, FadeOut, r.routes[i].state)
	}
	r.FinishBlock()
	assert.Empty(t, r.routes)
}

func TestHandleDestroyRemovesRoutesSynchronously(t *testing.T) {
	r := New()
	in := NewInputHandle(r, 1)
	out := NewOutputHandle(r)
	r.ConfigureRoute(out, in, 1, 1)

	in.Destroy()
	assert.Empty(t, r.routes)
	// Destroyed handles become no-ops.
	out.RouteAudio(dcBlock(1, 1), 1)
	in.Destroy()
}

func TestRouterClose(t *testing.T) {
	r := New()
	in := NewInputHandle(r, 1)
	out := NewOutputHandle(r)
	r.ConfigureRoute(out, in, 1, 1)

	r.Close()
	// Surviving handles lose their back-reference and keep working as
	// no-ops.
	out.RouteAudio(dcBlock(1, 1), 1)
	in.Destroy()
	out.Destroy()
}

func TestRunsStayContiguous(t *testing.T) {
	r := New()
	outs := []*OutputHandle{NewOutputHandle(r), NewOutputHandle(r), NewOutputHandle(r)}
	ins := []*InputHandle{NewInputHandle(r, 1), NewInputHandle(r, 1)}
	// Interleave configuration order on purpose.
	r.ConfigureRoute(outs[2], ins[1], 1, 1)
	r.ConfigureRoute(outs[0], ins[0], 1, 1)
	r.ConfigureRoute(outs[2], ins[0], 1, 1)
	r.ConfigureRoute(outs[1], ins[1], 1, 1)
	r.ConfigureRoute(outs[0], ins[1], 1, 1)

	for _, out := range outs {
		begin, end := r.findRun(out)
		for i := begin; i < end; i++ {
			assert.Equal(t, out, r.routes[i].output)
		}
	}
	begin, end := r.findRun(outs[0])
	assert.Equal(t, 2, end-begin)
	begin, end = r.findRun(outs[2])
	assert.Equal(t, 2, end-begin)
}

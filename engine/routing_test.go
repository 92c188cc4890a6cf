package engine

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dudk/resound/config"
)

func TestEchoTapPlacement(t *testing.T) {
	initEngine(t)
	ctx := newTestContext(t)

	echo, err := CreateGlobalEcho(ctx)
	require.NoError(t, err)
	require.NoError(t, EchoSetTaps(echo, []EchoTapConfig{
		{Delay: 0.1, GainL: 1, GainR: 0},
		{Delay: 0.2, GainL: 0, GainR: 1},
	}))

	src, gen := playingBufferSource(t, ctx, &impulseSource{frames: config.BlockSize}, false)
	require.NoError(t, RoutingEstablishRoute(src, echo, RouteConfig{Gain: 1, FadeIn: 0.01}))
	// The route fades in over its first block, so the impulse played
	// while establishing is attenuated. Render past the fade, then
	// replay from the start against the steady route.
	renderBlocks(t, ctx, 2)
	require.NoError(t, SetD(gen, PropPlaybackPosition, 0))

	tapL := int(0.1*config.SR + 0.5)
	tapR := int(0.2*config.SR + 0.5)
	blocks := (tapR+config.BlockSize)/config.BlockSize + 2
	out := renderBlocks(t, ctx, blocks)

	// The impulse replays at the tap delays, left tap on the left
	// channel only, right tap on the right.
	assert.InDelta(t, 1.0, float64(out[tapL*2]), 1e-2, "left tap")
	assert.InDelta(t, 0.0, float64(out[tapL*2+1]), 1e-2)
	assert.InDelta(t, 1.0, float64(out[tapR*2+1]), 1e-2, "right tap")
	assert.InDelta(t, 0.0, float64(out[tapR*2]), 1e-2)

	// Away from taps and the direct impulse, silence.
	probe := tapL + 100
	assert.Zero(t, out[probe*2])
}

func TestRouteFadeShape(t *testing.T) {
	initEngine(t)
	ctx := newTestContext(t)

	echo, err := CreateGlobalEcho(ctx)
	require.NoError(t, err)
	// A zero-delay unity tap makes the echo pass its routed input
	// through, exposing the route's gain shape on master.
	require.NoError(t, EchoSetTaps(echo, []EchoTapConfig{{Delay: 0, GainL: 1, GainR: 1}}))

	src, _ := playingBufferSource(t, ctx, &dcSource{frames: 4096}, true)
	renderBlocks(t, ctx, 2)

	// 0.03s at 44.1kHz/512 rounds up to 3 blocks.
	require.NoError(t, RoutingEstablishRoute(src, echo, RouteConfig{Gain: 1, FadeIn: 0.03}))

	blockMeanL := func() float64 {
		dst := make([]float32, config.BlockSize*2)
		require.NoError(t, ContextGetBlock(ctx, dst))
		var sum float64
		for i := 0; i < config.BlockSize; i++ {
			sum += float64(dst[i*2])
		}
		return sum / config.BlockSize
	}

	// Master carries the direct source (DC 1) plus the echo's routed
	// copy under the ramp. The linear three-block ramp contributes
	// means of 1/6, 1/2, 5/6, then 1.
	want := []float64{1.0 / 6, 3.0 / 6, 5.0 / 6, 1}
	for b, w := range want {
		mean := blockMeanL() - 1
		assert.InDelta(t, w, mean, 5e-3, "block %d", b)
	}
}

func TestRouteRemoveNoClickAndReAdd(t *testing.T) {
	initEngine(t)
	ctx := newTestContext(t)

	echo, err := CreateGlobalEcho(ctx)
	require.NoError(t, err)
	require.NoError(t, EchoSetTaps(echo, []EchoTapConfig{{Delay: 0, GainL: 1, GainR: 1}}))

	src, _ := playingBufferSource(t, ctx, &dcSource{frames: 4096}, true)
	require.NoError(t, RoutingEstablishRoute(src, echo, RouteConfig{Gain: 1, FadeIn: 0.01}))
	renderBlocks(t, ctx, 3)

	// Begin a fade-out, interrupt it with a re-add, and verify the
	// whole sequence stays click-free.
	require.NoError(t, RoutingRemoveRoute(src, echo, 0.05))
	out := renderBlocks(t, ctx, 2)
	require.NoError(t, RoutingEstablishRoute(src, echo, RouteConfig{Gain: 1, FadeIn: 0.05}))
	out = append(out, renderBlocks(t, ctx, 6)...)

	limit := 1.0/config.BlockSize + 1e-3
	for i := 2; i < len(out); i += 2 {
		delta := math.Abs(float64(out[i] - out[i-2]))
		assert.LessOrEqual(t, delta, limit, "frame %d", i/2)
	}
	// Back at full level: direct DC plus unity echo copy.
	assert.InDelta(t, 2.0, float64(out[len(out)-2]), 1e-2)
}

func TestRemoveAllRoutesSilencesEffect(t *testing.T) {
	initEngine(t)
	ctx := newTestContext(t)

	echo, err := CreateGlobalEcho(ctx)
	require.NoError(t, err)
	require.NoError(t, EchoSetTaps(echo, []EchoTapConfig{{Delay: 0, GainL: 1, GainR: 1}}))
	src, _ := playingBufferSource(t, ctx, &dcSource{frames: 4096}, true)
	require.NoError(t, RoutingEstablishRoute(src, echo, RouteConfig{Gain: 1, FadeIn: 0.01}))
	renderBlocks(t, ctx, 3)

	require.NoError(t, RoutingRemoveAllRoutes(src, 0.01))
	out := renderBlocks(t, ctx, 3)
	// Only the direct path remains.
	last := out[len(out)-config.BlockSize*2:]
	for i := 0; i < len(last)/2; i++ {
		assert.InDelta(t, 1.0, float64(last[i*2]), 1e-2)
	}
}

func TestReverbProducesTail(t *testing.T) {
	initEngine(t)
	ctx := newTestContext(t)

	reverb, err := CreateGlobalFdnReverb(ctx)
	require.NoError(t, err)
	require.NoError(t, SetD(reverb, PropT60, 1.0))

	src, gen := playingBufferSource(t, ctx, &impulseSource{frames: config.BlockSize}, false)
	require.NoError(t, RoutingEstablishRoute(src, reverb, RouteConfig{Gain: 1, FadeIn: 0}))
	// Let the route settle, then replay the impulse into it.
	renderBlocks(t, ctx, 2)
	require.NoError(t, SetD(gen, PropPlaybackPosition, 0))

	out := renderBlocks(t, ctx, 60)
	// The tail rings after the impulse (and its direct contribution)
	// have passed.
	tail := out[len(out)/2:]
	var energy float64
	for _, v := range tail {
		energy += float64(v) * float64(v)
	}
	assert.Greater(t, energy, 1e-6)

	// And it decays: late tail is quieter than early tail.
	early := out[config.BlockSize*4 : config.BlockSize*12]
	late := out[len(out)-config.BlockSize*8:]
	var earlyE, lateE float64
	for _, v := range early {
		earlyE += float64(v) * float64(v)
	}
	for _, v := range late {
		lateE += float64(v) * float64(v)
	}
	assert.Less(t, lateE, earlyE)
}

func TestRoutingValidation(t *testing.T) {
	initEngine(t)
	ctx := newTestContext(t)
	echo, err := CreateGlobalEcho(ctx)
	require.NoError(t, err)
	src, err := CreateSourceDirect(ctx)
	require.NoError(t, err)

	assert.Error(t, RoutingEstablishRoute(echo, echo, RouteConfig{Gain: 1}))
	assert.Error(t, RoutingEstablishRoute(src, src, RouteConfig{Gain: 1}))
	assert.Error(t, RoutingEstablishRoute(src, echo, RouteConfig{Gain: -1}))
	assert.NoError(t, RoutingEstablishRoute(src, echo, RouteConfig{Gain: 1}))
}

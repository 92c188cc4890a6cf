package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/dudk/resound"
	"github.com/dudk/resound/config"
	"github.com/dudk/resound/internal/audiotest"
)

// ringSeconds is the worst-case stream latency.
const ringSeconds = float64(config.StreamRingFrames) / config.SR

// streamingSetup builds a direct source playing a streaming generator
// over the given mock source.
func streamingSetup(t *testing.T, ctx resound.Handle, mock *audiotest.Source) (resound.Handle, *StreamingGenerator) {
	t.Helper()
	genHandle, err := CreateStreamingGeneratorFromSource(ctx, mock)
	require.NoError(t, err)
	source, err := CreateSourceDirect(ctx)
	require.NoError(t, err)
	require.NoError(t, SourceAddGenerator(source, genHandle))

	obj, err := lookup(genHandle)
	require.NoError(t, err)
	gen := obj.(*StreamingGenerator)

	// Give the decoder goroutine a chance to prime the ring.
	require.Eventually(t, func() bool {
		return gen.buf.Available() >= config.BlockSize
	}, time.Second, time.Millisecond)
	return genHandle, gen
}


// renderPaced renders block by block, waiting for the decoder goroutine
// to keep the ring ahead, so scheduler hiccups do not read as underruns.
func renderPaced(t *testing.T, ctx resound.Handle, gen *StreamingGenerator, blocks int) []float32 {
	t.Helper()
	out := make([]float32, 0, blocks*config.BlockSize*2)
	dst := make([]float32, config.BlockSize*2)
	for i := 0; i < blocks; i++ {
		require.Eventually(t, func() bool {
			return gen.buf.Available() >= config.BlockSize*gen.channels
		}, time.Second, time.Millisecond)
		require.NoError(t, ContextGetBlock(ctx, dst))
		out = append(out, dst...)
	}
	return out
}

func TestStreamingPlaysThrough(t *testing.T) {
	defer goleak.VerifyNone(t)
	require.NoError(t, Initialize())
	defer func() { require.NoError(t, Shutdown()) }()
	ctx := newTestContext(t)

	mock := audiotest.NewSource(config.SR, 1, 10*config.SR)
	_, gen := streamingSetup(t, ctx, mock)

	out := renderPaced(t, ctx, gen, 20)
	// Mono streams fan out to stereo at equal power; undo that and match
	// the deterministic source values.
	var bad int
	for i := 0; i < len(out)/2; i++ {
		got := float64(out[i*2]) * 1.4142135
		want := float64(audiotest.At(int64(i), 0))
		if got-want > 1e-3 || want-got > 1e-3 {
			bad++
		}
	}
	assert.Zero(t, bad, "stream output must match the decoded signal")
}

func TestStreamingPositionMonotonic(t *testing.T) {
	defer goleak.VerifyNone(t)
	require.NoError(t, Initialize())
	defer func() { require.NoError(t, Shutdown()) }()
	ctx := newTestContext(t)

	mock := audiotest.NewSource(config.SR, 1, 10*config.SR)
	genHandle, gen := streamingSetup(t, ctx, mock)

	prev := -1.0
	for b := 0; b < 40; b++ {
		renderPaced(t, ctx, gen, 1)
		pos, err := GetD(genHandle, PropPlaybackPosition)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, pos, prev, "block %d", b)
		prev = pos
	}
	// Position tracks block time within a ring's worth of lead: the
	// decoder runs ahead of playback by at most the ring depth.
	rendered := 40.0 * config.BlockSize / config.SR
	assert.InDelta(t, rendered, prev, ringSeconds+2.0*config.BlockSize/config.SR)
}

func TestStreamingSeek(t *testing.T) {
	defer goleak.VerifyNone(t)
	require.NoError(t, Initialize())
	defer func() { require.NoError(t, Shutdown()) }()
	ctx := newTestContext(t)

	mock := audiotest.NewIdentifiableSource(config.SR, 1, 10*config.SR)
	genHandle, gen := streamingSetup(t, ctx, mock)
	renderPaced(t, ctx, gen, 4)

	require.NoError(t, SetD(genHandle, PropPlaybackPosition, 5.0))
	// Within ring latency the report lands in [5, 5+ring].
	var pos float64
	require.Eventually(t, func() bool {
		renderBlocks(t, ctx, 1)
		var err error
		pos, err = GetD(genHandle, PropPlaybackPosition)
		require.NoError(t, err)
		return pos >= 5.0
	}, time.Second, time.Millisecond)
	assert.LessOrEqual(t, pos, 5.0+ringSeconds+2.0*config.BlockSize/config.SR)
	assert.Positive(t, mock.Seeks())

	// Once the pre-seek ring contents drain, output matches the source
	// from 5 seconds onward. Find the seam by locating the first sample
	// matching the post-seek signal, then verify continuity.
	drained := renderPaced(t, ctx, gen, config.StreamLatencyBlocks+2)
	frames := len(drained) / 2
	seekFrame := int64(5 * config.SR)
	start := -1
	for i := 0; i < frames; i++ {
		if audiotest.IdentFrame(float64(drained[i*2])*1.4142135) >= seekFrame {
			start = i
			break
		}
	}
	require.GreaterOrEqual(t, start, 0, "post-seek signal never appeared")
	first := audiotest.IdentFrame(float64(drained[start*2]) * 1.4142135)
	assert.Equal(t, seekFrame, first, "playback resumes exactly at the seek target")
	for i := 0; i < 256 && start+i < frames; i++ {
		got := audiotest.IdentFrame(float64(drained[(start+i)*2]) * 1.4142135)
		assert.Equal(t, first+int64(i), got, "frame %d after seek", i)
	}
}

func TestStreamingUnderrunSilence(t *testing.T) {
	defer goleak.VerifyNone(t)
	require.NoError(t, Initialize())
	defer func() { require.NoError(t, Shutdown()) }()
	ctx := newTestContext(t)

	mock := audiotest.NewSource(config.SR, 1, 60*config.SR)
	_, _ = streamingSetup(t, ctx, mock)
	renderBlocks(t, ctx, 2)

	// Stall the decoder and drain past the ring depth: output decays to
	// exact zero, not garbage.
	mock.Stall(true)
	out := renderBlocks(t, ctx, config.StreamLatencyBlocks+4)
	tail := out[len(out)-config.BlockSize*2:]
	for i, v := range tail {
		if v != 0 {
			t.Fatalf("underrun sample %d is %v, want exact zero", i, v)
		}
	}

	// Recovery resumes from where the decoder stopped, with no skip.
	posBefore := mock.Position()
	mock.Stall(false)
	require.Eventually(t, func() bool {
		out := renderBlocks(t, ctx, 1)
		return out[0] != 0
	}, time.Second, time.Millisecond)
	assert.GreaterOrEqual(t, mock.Position(), posBefore)
}

func TestStreamingLoopGuardOnEmptyStream(t *testing.T) {
	defer goleak.VerifyNone(t)
	require.NoError(t, Initialize())
	defer func() { require.NoError(t, Shutdown()) }()
	ctx := newTestContext(t)

	empty := &audiotest.Empty{SR: config.SR, Chans: 1}
	genHandle, err := CreateStreamingGeneratorFromSource(ctx, empty)
	require.NoError(t, err)
	require.NoError(t, SetI(genHandle, PropLooping, 1))
	source, err := CreateSourceDirect(ctx)
	require.NoError(t, err)
	require.NoError(t, SourceAddGenerator(source, genHandle))

	renderBlocks(t, ctx, 10)
	time.Sleep(20 * time.Millisecond)
	// Looping an empty stream must not spin on seeks: at most one seek
	// per ring slot filled, not an unbounded tight loop.
	assert.LessOrEqual(t, empty.Seeks(), int64(config.StreamLatencyBlocks+12))
}

func TestStreamingLoopWrapsSeamlessly(t *testing.T) {
	defer goleak.VerifyNone(t)
	require.NoError(t, Initialize())
	defer func() { require.NoError(t, Shutdown()) }()
	ctx := newTestContext(t)

	// A source shorter than one block forces wrap-mid-fill.
	const cycle = 300
	mock := audiotest.NewIdentifiableSource(config.SR, 1, cycle)
	genHandle, err := CreateStreamingGeneratorFromSource(ctx, mock)
	require.NoError(t, err)
	require.NoError(t, SetI(genHandle, PropLooping, 1))
	source, err := CreateSourceDirect(ctx)
	require.NoError(t, err)
	require.NoError(t, SourceAddGenerator(source, genHandle))

	obj, err := lookup(genHandle)
	require.NoError(t, err)
	gen := obj.(*StreamingGenerator)
	require.Eventually(t, func() bool {
		return gen.buf.Available() >= config.BlockSize
	}, time.Second, time.Millisecond)

	// The looping flag may land after the decoder primed its first slots,
	// so flush the ring before checking, then require a seamless cycle.
	renderPaced(t, ctx, gen, config.StreamLatencyBlocks+2)
	out := renderPaced(t, ctx, gen, 6)
	ids := make([]int64, len(out)/2)
	for i := range ids {
		ids[i] = audiotest.IdentFrame(float64(out[i*2]) * 1.4142135)
	}
	wrap := -1
	for i := 0; i+1 < len(ids); i++ {
		if ids[i] == cycle-1 && ids[i+1] == 0 {
			wrap = i + 1
			break
		}
	}
	require.GreaterOrEqual(t, wrap, 0, "stream never wrapped")
	for j := 0; wrap+j < len(ids) && j < cycle*3; j++ {
		assert.Equal(t, int64(j%cycle), ids[wrap+j], "frame %d after wrap", j)
	}
}

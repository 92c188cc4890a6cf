package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dudk/resound"
	"github.com/dudk/resound/config"
)

func initEngine(t *testing.T) {
	t.Helper()
	require.NoError(t, Initialize())
	t.Cleanup(func() { _ = Shutdown() })
}

func newTestContext(t *testing.T) resound.Handle {
	t.Helper()
	h, err := CreateContextHeadless()
	require.NoError(t, err)
	return h
}

// renderBlocks drives a headless context and returns the concatenated
// stereo master output.
func renderBlocks(t *testing.T, ctx resound.Handle, blocks int) []float32 {
	t.Helper()
	out := make([]float32, 0, blocks*config.BlockSize*2)
	dst := make([]float32, config.BlockSize*2)
	for i := 0; i < blocks; i++ {
		require.NoError(t, ContextGetBlock(ctx, dst))
		out = append(out, dst...)
	}
	return out
}

func TestInitializeLifecycle(t *testing.T) {
	require.NoError(t, Initialize())
	assert.True(t, errors.Is(Initialize(), resound.ErrAlreadyInitialized))
	require.NoError(t, Shutdown())
	assert.True(t, errors.Is(Shutdown(), resound.ErrNotInitialized))

	_, err := CreateContextHeadless()
	assert.True(t, errors.Is(err, resound.ErrNotInitialized))
}

func TestSilentEmptyContext(t *testing.T) {
	initEngine(t)
	ctx := newTestContext(t)

	out := renderBlocks(t, ctx, 100)
	for i, v := range out {
		if v != 0 {
			t.Fatalf("sample %d is %v, want exact zero", i, v)
		}
	}
}

func TestInvalidHandles(t *testing.T) {
	initEngine(t)

	_, err := CreateSourceDirect(12345)
	assert.True(t, errors.Is(err, resound.ErrInvalidHandle))

	err = SetD(999, PropGain, 0.5)
	assert.True(t, errors.Is(err, resound.ErrInvalidHandle))

	ctx := newTestContext(t)
	// A context is not a source.
	_, _, err = lookupSource(ctx)
	assert.True(t, errors.Is(err, resound.ErrInvalidHandle))
}

func TestPropertyValidation(t *testing.T) {
	initEngine(t)
	ctx := newTestContext(t)
	src, err := CreateSourceDirect(ctx)
	require.NoError(t, err)

	tests := []struct {
		description string
		err         error
		want        error
	}{
		{"negative gain", SetD(src, PropGain, -1), resound.ErrRange},
		{"unknown property on source", SetD(src, PropT60, 1), resound.ErrInvalidProperty},
		{"biquad property set as double", SetD(src, PropFilter, 1), resound.ErrInvalidProperty},
		{"gain in range", SetD(src, PropGain, 2), nil},
	}
	for _, test := range tests {
		t.Log(test.description)
		if test.want == nil {
			assert.NoError(t, test.err)
		} else {
			assert.True(t, errors.Is(test.err, test.want))
		}
	}
}

func TestPropertyReadbackAfterSet(t *testing.T) {
	// Setter followed by getter returns the new value even though the
	// render loop has not applied it yet.
	initEngine(t)
	ctx := newTestContext(t)
	src, err := CreateSourceDirect(ctx)
	require.NoError(t, err)

	require.NoError(t, SetD(src, PropGain, 0.25))
	v, err := GetD(src, PropGain)
	require.NoError(t, err)
	assert.Equal(t, 0.25, v)
}

func TestFailedSetDoesNotMutate(t *testing.T) {
	initEngine(t)
	ctx := newTestContext(t)
	src, err := CreateSourceDirect(ctx)
	require.NoError(t, err)

	require.NoError(t, SetD(src, PropGain, 0.5))
	require.Error(t, SetD(src, PropGain, -3))
	v, err := GetD(src, PropGain)
	require.NoError(t, err)
	assert.Equal(t, 0.5, v)
}

func TestHandleFree(t *testing.T) {
	initEngine(t)
	ctx := newTestContext(t)
	src, err := CreateSourceDirect(ctx)
	require.NoError(t, err)

	require.NoError(t, HandleFree(src))
	assert.True(t, errors.Is(HandleFree(src), resound.ErrInvalidHandle))
	_, err = GetD(src, PropGain)
	assert.True(t, errors.Is(err, resound.ErrInvalidHandle))

	// The render loop drops the source at the next block without upset.
	renderBlocks(t, ctx, 2)
}

func TestContextGetBlockValidation(t *testing.T) {
	initEngine(t)
	ctx := newTestContext(t)
	err := ContextGetBlock(ctx, make([]float32, 3))
	assert.True(t, errors.Is(err, resound.ErrRange))
}

func TestOrientationValidation(t *testing.T) {
	initEngine(t)
	ctx := newTestContext(t)
	err := SetD6(ctx, PropOrientation, [6]float64{0, 0, 0, 0, 1, 0})
	assert.True(t, errors.Is(err, resound.ErrRange))
	require.NoError(t, SetD6(ctx, PropOrientation, [6]float64{0, 0, -1, 0, 1, 0}))
}

package mixer

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSum(t *testing.T) {
	dst := []float32{1, 2}
	Sum(dst, []float32{0.5, -1})
	assert.Equal(t, []float32{1.5, 1}, dst)
}

func TestBusZero(t *testing.T) {
	b := NewBus(4, 2)
	b.Data()[3] = 1
	b.Zero()
	for _, v := range b.Data() {
		assert.Zero(t, v)
	}
	assert.Equal(t, 2, b.Channels())
	assert.Equal(t, 4, b.Frames())
}

func TestRemap(t *testing.T) {
	halfPower := float32(1 / math.Sqrt2)
	tests := []struct {
		description string
		srcCh       int
		dstCh       int
		src         []float32
		expected    []float32
	}{
		{
			description: "same channel count is identity",
			srcCh:       2,
			dstCh:       2,
			src:         []float32{1, 2, 3, 4},
			expected:    []float32{1, 2, 3, 4},
		},
		{
			description: "mono to stereo splits at equal power",
			srcCh:       1,
			dstCh:       2,
			src:         []float32{1, 1},
			expected:    []float32{halfPower, halfPower, halfPower, halfPower},
		},
		{
			description: "stereo to mono sums at equal power",
			srcCh:       2,
			dstCh:       1,
			src:         []float32{1, 1, 0.5, 0.5},
			expected:    []float32{2 * halfPower, halfPower},
		},
		{
			description: "wide to narrow drops trailing channels",
			srcCh:       4,
			dstCh:       3,
			src:         []float32{1, 2, 3, 4},
			expected:    []float32{1, 2, 3},
		},
		{
			description: "narrow to wide zero-fills",
			srcCh:       1,
			dstCh:       4,
			src:         []float32{1},
			expected:    []float32{1, 0, 0, 0},
		},
	}
	for _, test := range tests {
		t.Log(test.description)
		frames := len(test.src) / test.srcCh
		dst := make([]float32, frames*test.dstCh)
		Remap(dst, test.dstCh, test.src, test.srcCh, frames, UnityGain)
		assert.InDeltaSlice(t, test.expected, dst, 1e-6)
	}
}

func TestRemapAdds(t *testing.T) {
	dst := []float32{1, 1}
	Remap(dst, 1, []float32{1, 1}, 1, 2, func(int) float32 { return 0.5 })
	assert.InDeltaSlice(t, []float32{1.5, 1.5}, dst, 1e-6)
}

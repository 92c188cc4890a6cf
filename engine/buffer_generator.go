package engine

import (
	"math"

	"github.com/dudk/resound"
	"github.com/dudk/resound/buffer"
	"github.com/dudk/resound/config"
	"github.com/dudk/resound/fade"
	"github.com/dudk/resound/property"
)

// BufferGenerator plays a Buffer with looping and pitch bend. Position is
// kept fractional so pitch-bent playback accumulates no rounding drift.
type BufferGenerator struct {
	generatorBase
	buf       property.Object
	position  property.Double
	looping   property.Int
	pitchBend property.Double

	reader            buffer.Reader
	positionInSamples float64
	frame             [config.MaxChannels]float32
	workspace         []float32
}

// CreateBufferGenerator creates a buffer generator on the context. Attach
// a buffer with SetO(PropBuffer).
func CreateBufferGenerator(ctxHandle resound.Handle) (resound.Handle, error) {
	ctx, err := lookupContext(ctxHandle)
	if err != nil {
		return 0, err
	}
	g := &BufferGenerator{
		workspace: make([]float32, config.BlockSize*config.MaxChannels),
	}
	g.initGenerator(ctx)
	g.position.Init(0)
	g.looping.Init(0)
	g.pitchBend.Init(1)
	return expose(g)
}

func (g *BufferGenerator) ObjectType() ObjectType {
	return ObjectTypeBufferGenerator
}

// finalize drops the reference the attachment holds on the buffer.
func (g *BufferGenerator) finalize() {
	if b, ok := g.buf.Peek().(Object); ok && b != nil {
		release(b)
	}
}

func (g *BufferGenerator) property(p Property) (interface{}, bool) {
	switch p {
	case PropGain:
		return &g.gain.prop, true
	case PropBuffer:
		return &g.buf, true
	case PropPlaybackPosition:
		return &g.position, true
	case PropLooping:
		return &g.looping, true
	case PropPitchBend:
		return &g.pitchBend, true
	}
	return nil, false
}

func (g *BufferGenerator) Channels() int {
	b, _ := g.buf.Peek().(*Buffer)
	if b == nil {
		return 0
	}
	return b.data.Channels()
}

func (g *BufferGenerator) generateBlock(out []float32, driver *fade.Driver) {
	bufObj, bufChanged := g.buf.Acquire()
	b, _ := bufObj.(*Buffer)
	if b == nil || b.data.Len() == 0 {
		return
	}
	if bufChanged {
		g.reader.SetBuffer(b.data)
		g.positionInSamples = 0
		g.position.Report(0)
	}

	if newPos, changed := g.position.Acquire(); changed {
		g.positionInSamples = math.Min(newPos*config.SR, float64(g.reader.Len()))
	}

	pitchBend := g.pitchBend.Peek()
	if math.Abs(1-pitchBend) > 0.001 {
		g.generatePitchBend(out, driver, pitchBend)
	} else {
		g.generateNoPitchBend(out, driver)
	}

	g.position.Report(g.positionInSamples / config.SR)
}

// generateNoPitchBend advances exactly one frame per output frame, reading
// contiguous runs out of the buffer.
func (g *BufferGenerator) generateNoPitchBend(out []float32, driver *fade.Driver) {
	channels := g.reader.Channels()
	looping := g.looping.Peek() != 0
	pos := int(math.Round(g.positionInSamples))
	remaining := config.BlockSize
	i := 0

	driver.Drive(g.ctx.blockTime, func(gain func(i int) float32) {
		for remaining > 0 {
			got := g.reader.ReadFrames(pos, remaining, g.workspace)
			for j := 0; j < got; j, i = j+1, i+1 {
				gv := gain(i)
				for ch := 0; ch < channels; ch++ {
					out[i*channels+ch] += gv * g.workspace[j*channels+ch]
				}
			}
			remaining -= got
			pos += got
			if remaining > 0 && got == 0 {
				if !looping {
					break
				}
				pos = 0
			}
		}
	})

	g.positionInSamples = float64(pos)
}

// generatePitchBend advances pitchBend frames per output frame with
// linear interpolation. Negative rates are legal and play backwards.
func (g *BufferGenerator) generatePitchBend(out []float32, driver *fade.Driver, pitchBend float64) {
	channels := g.reader.Channels()
	looping := g.looping.Peek() != 0
	length := float64(g.reader.Len())
	pos := g.positionInSamples

	driver.Drive(g.ctx.blockTime, func(gain func(i int) float32) {
		for i := 0; i < config.BlockSize; i++ {
			g.readInterpolated(pos, out[i*channels:], gain(i), looping)
			pos += pitchBend
			if looping {
				pos = math.Mod(pos, length)
				if pos < 0 {
					pos += length
				}
			} else if pos > length {
				break
			}
		}
	})

	g.positionInSamples = math.Min(pos, length)
}

// readInterpolated adds the linearly interpolated frame at fractional pos.
func (g *BufferGenerator) readInterpolated(pos float64, out []float32, gain float32, looping bool) {
	lower := int(math.Floor(pos))
	upper := lower + 1
	if looping && upper >= g.reader.Len() {
		upper = 0
	}
	w2 := float32(pos - float64(lower))
	w1 := 1 - w2
	channels := g.reader.Channels()

	g.reader.ReadFrame(lower, g.frame[:channels])
	for ch := 0; ch < channels; ch++ {
		out[ch] += gain * w1 * g.frame[ch]
	}
	g.reader.ReadFrame(upper, g.frame[:channels])
	for ch := 0; ch < channels; ch++ {
		out[ch] += gain * w2 * g.frame[ch]
	}
}

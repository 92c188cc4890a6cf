package engine

import (
	"fmt"

	"github.com/dudk/resound"
	"github.com/dudk/resound/config"
	"github.com/dudk/resound/fade"
	"github.com/dudk/resound/noise"
	"github.com/dudk/resound/property"
)

// NoiseGenerator runs one independent noise channel per output channel. A
// noise type change applies to every channel at the same block.
type NoiseGenerator struct {
	generatorBase
	noiseType property.Int

	chans     []*noise.Generator
	workspace []float32
}

// CreateNoiseGenerator creates a noise generator with the given channel
// count.
func CreateNoiseGenerator(ctxHandle resound.Handle, channels int) (resound.Handle, error) {
	ctx, err := lookupContext(ctxHandle)
	if err != nil {
		return 0, err
	}
	if channels < 1 || channels > config.MaxChannels {
		return 0, fmt.Errorf("%w: noise generator with %d channels", resound.ErrRange, channels)
	}
	g := &NoiseGenerator{
		chans:     make([]*noise.Generator, channels),
		workspace: make([]float32, config.BlockSize*channels),
	}
	g.initGenerator(ctx)
	g.noiseType.Init(int64(noise.White))
	for i := range g.chans {
		g.chans[i] = noise.NewGenerator(int64(i + 1))
	}
	return expose(g)
}

func (g *NoiseGenerator) ObjectType() ObjectType {
	return ObjectTypeNoiseGenerator
}

func (g *NoiseGenerator) property(p Property) (interface{}, bool) {
	switch p {
	case PropGain:
		return &g.gain.prop, true
	case PropNoiseType:
		return &g.noiseType, true
	}
	return nil, false
}

func (g *NoiseGenerator) Channels() int {
	return len(g.chans)
}

func (g *NoiseGenerator) generateBlock(out []float32, driver *fade.Driver) {
	if t, changed := g.noiseType.Acquire(); changed {
		for _, ch := range g.chans {
			ch.SetKind(noise.Kind(t))
		}
	}

	channels := len(g.chans)
	zero(g.workspace[:config.BlockSize*channels])
	for i, ch := range g.chans {
		ch.GenerateBlock(config.BlockSize, g.workspace[i:], channels)
	}
	driver.Drive(g.ctx.blockTime, func(gain func(i int) float32) {
		for i := 0; i < config.BlockSize; i++ {
			gv := gain(i)
			for ch := 0; ch < channels; ch++ {
				out[i*channels+ch] += gv * g.workspace[i*channels+ch]
			}
		}
	})
}

package engine

import (
	"fmt"

	"github.com/dudk/resound"
	"github.com/dudk/resound/config"
	"github.com/dudk/resound/mixer"
)

// echoMaxDelaySeconds bounds tap delays; the line is allocated for the
// full span at creation so reconfiguration never allocates on the render
// loop.
const echoMaxDelaySeconds = 5

// echoLineFrames is the delay line length, a power-of-two frame count
// covering the maximum delay.
var echoLineFrames = func() int {
	n := 1
	for n < echoMaxDelaySeconds*config.SR {
		n <<= 1
	}
	return n
}()

// EchoTapConfig is one user-visible echo tap.
type EchoTapConfig struct {
	// Delay of the tap in seconds, at most 5.
	Delay float64
	// GainL and GainR scale the tap into the left and right channel.
	GainL float64
	GainR float64
}

type echoTap struct {
	delayFrames  int
	gainL, gainR float32
}

// GlobalEcho is a parametric stereo tap delay: each tap replays the
// routed input at a delay with independent per-channel gains.
type GlobalEcho struct {
	effectBase

	// Render-loop state. taps is swapped whole by EchoSetTaps.
	taps     []echoTap
	line     []float32
	writePos int
}

// CreateGlobalEcho creates an echo on the context and registers it for
// routing.
func CreateGlobalEcho(ctxHandle resound.Handle) (resound.Handle, error) {
	ctx, err := lookupContext(ctxHandle)
	if err != nil {
		return 0, err
	}
	e := &GlobalEcho{
		line: make([]float32, echoLineFrames*masterChannels),
	}
	e.initEffect(ctx, masterChannels)
	return exposeEffect(ctx, e, &e.effectBase)
}

func (e *GlobalEcho) ObjectType() ObjectType {
	return ObjectTypeGlobalEcho
}

func (e *GlobalEcho) property(p Property) (interface{}, bool) {
	if p == PropGain {
		return &e.gain.prop, true
	}
	return nil, false
}

func (e *GlobalEcho) finalize() {
	finalizeEffect(&e.effectBase, e)
}

// EchoSetTaps replaces the tap configuration. The new taps apply at the
// next block boundary, atomically.
func EchoSetTaps(effectHandle resound.Handle, taps []EchoTapConfig) error {
	obj, err := lookup(effectHandle)
	if err != nil {
		return err
	}
	e, ok := obj.(*GlobalEcho)
	if !ok {
		return fmt.Errorf("%w: not an echo", resound.ErrInvalidHandle)
	}
	compiled := make([]echoTap, len(taps))
	for i, t := range taps {
		if t.Delay < 0 || t.Delay > echoMaxDelaySeconds {
			return fmt.Errorf("%w: tap delay %v", resound.ErrRange, t.Delay)
		}
		compiled[i] = echoTap{
			delayFrames: int(t.Delay*config.SR + 0.5),
			gainL:       float32(t.GainL),
			gainR:       float32(t.GainR),
		}
	}
	retain(e)
	e.ctx.push(func() {
		e.taps = compiled
	}, func() {
		release(e)
	})
	return nil
}

func (e *GlobalEcho) runEffect(master *mixer.Bus) {
	in := e.inputBuffer()
	if in == nil {
		return
	}
	zero(e.output)

	mask := echoLineFrames - 1
	for i := 0; i < config.BlockSize; i++ {
		w := (e.writePos + i) & mask
		e.line[w*2] = in[i*2]
		e.line[w*2+1] = in[i*2+1]
		for _, tap := range e.taps {
			r := (w - tap.delayFrames) & mask
			e.output[i*2] += tap.gainL * e.line[r*2]
			e.output[i*2+1] += tap.gainR * e.line[r*2+1]
		}
	}
	e.writePos = (e.writePos + config.BlockSize) & mask

	e.mixOutput(master)
}

package engine

import (
	"math"

	"github.com/dudk/resound"
	"github.com/dudk/resound/config"
	"github.com/dudk/resound/mixer"
	"github.com/dudk/resound/property"
)

// fdnLines is the feedback delay network order.
const fdnLines = 8

// fdnDelays are mutually prime line lengths in frames, spanning roughly
// 32 to 66 ms at 44.1 kHz.
var fdnDelays = [fdnLines]int{1433, 1601, 1867, 2053, 2251, 2399, 2687, 2909}

// GlobalFdnReverb is a feedback delay network with a Householder feedback
// matrix and a one-pole lowpass in the loop. T60 controls decay time,
// damping the high-frequency loss.
type GlobalFdnReverb struct {
	effectBase
	t60     property.Double
	damping property.Double

	lines     [fdnLines][]float32
	positions [fdnLines]int
	feedback  [fdnLines]float32
	lowpass   [fdnLines]float32
	readBuf   [fdnLines]float32
}

// CreateGlobalFdnReverb creates an FDN reverb on the context and
// registers it for routing.
func CreateGlobalFdnReverb(ctxHandle resound.Handle) (resound.Handle, error) {
	ctx, err := lookupContext(ctxHandle)
	if err != nil {
		return 0, err
	}
	e := &GlobalFdnReverb{}
	e.initEffect(ctx, masterChannels)
	e.t60.Init(3)
	e.damping.Init(0.5)
	for i := range e.lines {
		e.lines[i] = make([]float32, fdnDelays[i])
	}
	e.updateFeedback(3)
	return exposeEffect(ctx, e, &e.effectBase)
}

func (e *GlobalFdnReverb) ObjectType() ObjectType {
	return ObjectTypeGlobalFdnReverb
}

func (e *GlobalFdnReverb) property(p Property) (interface{}, bool) {
	switch p {
	case PropGain:
		return &e.gain.prop, true
	case PropT60:
		return &e.t60, true
	case PropReverbDamping:
		return &e.damping, true
	}
	return nil, false
}

func (e *GlobalFdnReverb) finalize() {
	finalizeEffect(&e.effectBase, e)
}

// updateFeedback derives per-line gains so a signal decays by 60 dB over
// t60 seconds of circulation.
func (e *GlobalFdnReverb) updateFeedback(t60 float64) {
	for i := range e.feedback {
		e.feedback[i] = float32(math.Pow(10, -3*float64(fdnDelays[i])/(t60*config.SR)))
	}
}

func (e *GlobalFdnReverb) runEffect(master *mixer.Bus) {
	if t60, changed := e.t60.Acquire(); changed {
		e.updateFeedback(t60)
	}
	damping := float32(e.damping.Peek())

	in := e.inputBuffer()
	if in == nil {
		return
	}

	const inputScale = 1.0 / fdnLines
	for i := 0; i < config.BlockSize; i++ {
		// Mono injection into every line.
		inject := (in[i*2] + in[i*2+1]) * (1.0 / math.Sqrt2) * inputScale

		var sum float32
		for l := 0; l < fdnLines; l++ {
			e.readBuf[l] = e.lines[l][e.positions[l]]
			sum += e.readBuf[l]
		}
		// Householder reflection: energy-preserving cross-feed without a
		// full matrix multiply.
		h := sum * (2.0 / fdnLines)

		var outL, outR float32
		for l := 0; l < fdnLines; l++ {
			fed := (e.readBuf[l] - h) * e.feedback[l]
			e.lowpass[l] += (1 - damping) * (fed - e.lowpass[l])
			e.lines[l][e.positions[l]] = inject + e.lowpass[l]
			e.positions[l]++
			if e.positions[l] == fdnDelays[l] {
				e.positions[l] = 0
			}
			if l%2 == 0 {
				outL += e.readBuf[l]
			} else {
				outR += e.readBuf[l]
			}
		}
		e.output[i*2] = outL
		e.output[i*2+1] = outR
	}

	e.mixOutput(master)
}

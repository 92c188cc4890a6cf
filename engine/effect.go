package engine

import (
	"fmt"
	"math"

	"github.com/dudk/resound"
	"github.com/dudk/resound/config"
	"github.com/dudk/resound/log"
	"github.com/dudk/resound/mixer"
	"github.com/dudk/resound/router"
)

// effectBase is the shared half of every global effect: one router input
// whose accumulator the effect reads each block, a fused gain/pause
// control, and an output scratch summed into master.
type effectBase struct {
	baseObject
	ctx  *Context
	gain gainControl

	in       *router.InputHandle
	channels int
	output   []float32
}

func (e *effectBase) initEffect(ctx *Context, channels int) {
	e.initObject()
	e.ctx = ctx
	e.gain.init()
	e.channels = channels
	e.output = make([]float32, config.BlockSize*channels)
}

func (e *effectBase) propContext() *Context {
	return e.ctx
}

func (e *effectBase) pauseControl() *gainControl {
	return &e.gain
}

// inputBuffer returns this block's accumulated routed audio.
func (e *effectBase) inputBuffer() []float32 {
	if e.in == nil {
		return nil
	}
	return e.in.Buffer()
}

// mixOutput adds the effect's output scratch into master through the gain
// driver.
func (e *effectBase) mixOutput(master *mixer.Bus) {
	e.gain.tick(e.ctx.blockTime)
	e.gain.driver.Drive(e.ctx.blockTime, func(gain func(i int) float32) {
		mixer.Remap(master.Data(), master.Channels(), e.output, e.channels, config.BlockSize, gain)
	})
}

// exposeEffect registers the effect with the handle table and, through
// the command queue, with the render loop and router.
func exposeEffect(ctx *Context, node effectNode, base *effectBase) (resound.Handle, error) {
	h, err := expose(node)
	if err != nil {
		return 0, err
	}
	// Like sources, the effect list is non-owning.
	ctx.push(func() {
		base.in = router.NewInputHandle(ctx.rt, base.channels)
		ctx.addEffect(node)
	}, nil)
	log.GetLogger().Debug("effect created: ", base.id)
	return h, nil
}

// finalizeEffect tears the effect out of the graph: the render loop
// forgets it at the next block boundary and its routes are removed
// synchronously with the input handle.
func finalizeEffect(base *effectBase, node effectNode) {
	ctx := base.ctx
	if ctx.closed.Load() {
		base.in = nil
		return
	}
	ctx.push(func() {
		ctx.removeEffect(node)
		if base.in != nil {
			base.in.Destroy()
			base.in = nil
		}
	}, nil)
}

func lookupEffect(h resound.Handle) (*effectBase, effectNode, error) {
	obj, err := lookup(h)
	if err != nil {
		return nil, nil, err
	}
	switch e := obj.(type) {
	case *GlobalEcho:
		return &e.effectBase, e, nil
	case *GlobalFdnReverb:
		return &e.effectBase, e, nil
	}
	return nil, nil, fmt.Errorf("%w: not an effect", resound.ErrInvalidHandle)
}

// RouteConfig describes one route: linear gain and fade-in time in
// seconds.
type RouteConfig struct {
	Gain   float64
	FadeIn float64
}

// fadeSecondsToBlocks converts a user-visible fade time to whole blocks,
// minimum one.
func fadeSecondsToBlocks(seconds float64) uint64 {
	blocks := uint64(math.Ceil(seconds * config.SR / config.BlockSize))
	if blocks < 1 {
		blocks = 1
	}
	return blocks
}

// RoutingEstablishRoute declares a route from a source to a global
// effect. An existing route has its gain updated instead.
func RoutingEstablishRoute(outputHandle, inputHandle resound.Handle, cfg RouteConfig) error {
	srcBase, srcNode, err := lookupSource(outputHandle)
	if err != nil {
		return err
	}
	effBase, effNode, err := lookupEffect(inputHandle)
	if err != nil {
		return err
	}
	if srcBase.ctx != effBase.ctx {
		return fmt.Errorf("%w: route endpoints belong to different contexts", resound.ErrInvalidHandle)
	}
	if cfg.Gain < 0 || cfg.FadeIn < 0 || math.IsNaN(cfg.Gain) || math.IsNaN(cfg.FadeIn) {
		return fmt.Errorf("%w: route gain %v fade %v", resound.ErrRange, cfg.Gain, cfg.FadeIn)
	}
	ctx := srcBase.ctx
	retain(srcNode)
	retain(effNode)
	blocks := fadeSecondsToBlocks(cfg.FadeIn)
	ctx.push(func() {
		if srcBase.out != nil && effBase.in != nil {
			ctx.rt.ConfigureRoute(srcBase.out, effBase.in, float32(cfg.Gain), blocks)
		}
	}, func() {
		release(srcNode)
		release(effNode)
	})
	return nil
}

// RoutingRemoveRoute fades out and removes the route from a source to an
// effect.
func RoutingRemoveRoute(outputHandle, inputHandle resound.Handle, fadeOutSeconds float64) error {
	srcBase, srcNode, err := lookupSource(outputHandle)
	if err != nil {
		return err
	}
	effBase, effNode, err := lookupEffect(inputHandle)
	if err != nil {
		return err
	}
	if srcBase.ctx != effBase.ctx {
		return fmt.Errorf("%w: route endpoints belong to different contexts", resound.ErrInvalidHandle)
	}
	if fadeOutSeconds < 0 || math.IsNaN(fadeOutSeconds) {
		return fmt.Errorf("%w: fade %v", resound.ErrRange, fadeOutSeconds)
	}
	ctx := srcBase.ctx
	retain(srcNode)
	retain(effNode)
	blocks := fadeSecondsToBlocks(fadeOutSeconds)
	ctx.push(func() {
		if srcBase.out != nil && effBase.in != nil {
			ctx.rt.RemoveRoute(srcBase.out, effBase.in, blocks)
		}
	}, func() {
		release(srcNode)
		release(effNode)
	})
	return nil
}

// RoutingRemoveAllRoutes fades out every route leaving a source.
func RoutingRemoveAllRoutes(outputHandle resound.Handle, fadeOutSeconds float64) error {
	srcBase, srcNode, err := lookupSource(outputHandle)
	if err != nil {
		return err
	}
	if fadeOutSeconds < 0 || math.IsNaN(fadeOutSeconds) {
		return fmt.Errorf("%w: fade %v", resound.ErrRange, fadeOutSeconds)
	}
	ctx := srcBase.ctx
	retain(srcNode)
	blocks := fadeSecondsToBlocks(fadeOutSeconds)
	ctx.push(func() {
		if srcBase.out != nil {
			ctx.rt.RemoveAllRoutes(srcBase.out, blocks)
		}
	}, func() {
		release(srcNode)
	})
	return nil
}

// Play resumes a paused object; the transition fades over one block.
func Play(h resound.Handle) error {
	return setPaused(h, false)
}

// Pause silences an object without stopping its clock; generators keep
// advancing while paused.
func Pause(h resound.Handle) error {
	return setPaused(h, true)
}

type pausableObject interface {
	Object
	pauseControl() *gainControl
	propContext() *Context
}

func setPaused(h resound.Handle, paused bool) error {
	obj, err := lookup(h)
	if err != nil {
		return err
	}
	p, ok := obj.(pausableObject)
	if !ok {
		return fmt.Errorf("%w: object is not pausable", resound.ErrUnsupportedOperation)
	}
	gc := p.pauseControl()
	retain(p)
	p.propContext().push(func() {
		gc.setPaused(paused)
	}, func() {
		release(p)
	})
	return nil
}

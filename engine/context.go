package engine

import (
	"fmt"
	"sync/atomic"

	"github.com/dudk/resound"
	"github.com/dudk/resound/command"
	"github.com/dudk/resound/config"
	"github.com/dudk/resound/device"
	"github.com/dudk/resound/fade"
	"github.com/dudk/resound/log"
	"github.com/dudk/resound/mixer"
	"github.com/dudk/resound/property"
	"github.com/dudk/resound/router"
)

// masterChannels is the context's output channel count.
const masterChannels = 2

// gainControl fuses an object's gain property with its pause state into
// one fade driver, so any combination of changes ramps once, click-free.
type gainControl struct {
	prop   property.Double
	driver *fade.Driver

	// Render-loop state: pauseTarget is 1 when playing, 0 when paused.
	pauseTarget float32
	pauseDirty  bool
}

func (g *gainControl) init() {
	g.prop.Init(1)
	g.driver = fade.NewDriver(1, 1)
	g.pauseTarget = 1
}

// tick folds pending gain and pause changes into the driver. Render loop
// only, once per block.
func (g *gainControl) tick(block uint64) {
	v, changed := g.prop.Acquire()
	if changed || g.pauseDirty {
		g.driver.SetValue(block, float32(v)*g.pauseTarget)
		g.pauseDirty = false
	}
}

// setPaused flips the pause target. Render loop only, via command.
func (g *gainControl) setPaused(paused bool) {
	target := float32(1)
	if paused {
		target = 0
	}
	if target != g.pauseTarget {
		g.pauseTarget = target
		g.pauseDirty = true
	}
}

// sourceNode runs on the render loop once per block, adding into master.
type sourceNode interface {
	Object
	runSource(master *mixer.Bus)
}

// effectNode reads its router input and adds into master.
type effectNode interface {
	Object
	runEffect(master *mixer.Bus)
}

// Context is the process root of one audio graph: device, command queue,
// router and the object lists the scheduler walks.
type Context struct {
	baseObject
	queue  *command.Queue
	cmdBuf []command.Command

	rt     *router.Router
	master *mixer.Bus

	// Render-loop state.
	sources   []sourceNode
	effects   []effectNode
	blockTime uint64

	gain        gainControl
	position    property.Double3
	orientation property.Double6

	headless bool
	out      device.Output
	running  atomic.Bool
	closed   atomic.Bool
}

func newContext(headless bool) *Context {
	ctx := &Context{
		queue:  command.NewQueue(config.CommandQueueDepth),
		cmdBuf: make([]command.Command, 0, config.CommandsPerBlock),
		rt:     router.New(),
		master: mixer.NewBus(config.BlockSize, masterChannels),
		// Reserved up front; growth past this would allocate on the
		// render loop.
		sources:  make([]sourceNode, 0, 256),
		effects:  make([]effectNode, 0, 64),
		headless: headless,
	}
	ctx.initObject()
	ctx.gain.init()
	ctx.position.Init([3]float64{})
	ctx.orientation.Init([6]float64{0, 0, -1, 0, 1, 0})
	return ctx
}

// CreateContext creates a context with a running audio device.
func CreateContext() (resound.Handle, error) {
	ctx := newContext(false)
	out, err := device.Open(masterChannels, config.SR, config.BlockSize, ctx.generateAudio, func() {
		// Device lost: tear the context down so every control call on it
		// fails with an invalid handle from here on.
		ctx.shutdown()
	})
	if err != nil {
		return 0, err
	}
	ctx.out = out
	ctx.running.Store(true)
	h, err := expose(ctx)
	if err != nil {
		out.Close()
		return 0, err
	}
	registerContext(ctx)
	log.GetLogger().Debug("context created: ", ctx.id)
	return h, nil
}

// CreateContextHeadless creates a context without a device. The host
// drives it with ContextGetBlock.
func CreateContextHeadless() (resound.Handle, error) {
	ctx := newContext(true)
	ctx.running.Store(true)
	h, err := expose(ctx)
	if err != nil {
		return 0, err
	}
	registerContext(ctx)
	return h, nil
}

// ContextGetBlock renders one block of a headless context into dst, which
// must hold BlockSize*2 interleaved samples.
func ContextGetBlock(h resound.Handle, dst []float32) error {
	ctx, err := lookupContext(h)
	if err != nil {
		return err
	}
	if !ctx.headless {
		return fmt.Errorf("%w: context has a device", resound.ErrUnsupportedOperation)
	}
	if len(dst) != config.BlockSize*masterChannels {
		return fmt.Errorf("%w: destination must be %d samples", resound.ErrRange, config.BlockSize*masterChannels)
	}
	ctx.generateAudio(dst)
	return nil
}

func registerContext(ctx *Context) {
	stateMu.Lock()
	contexts = append(contexts, ctx)
	stateMu.Unlock()
}

func lookupContext(h resound.Handle) (*Context, error) {
	obj, err := lookup(h)
	if err != nil {
		return nil, err
	}
	ctx, ok := obj.(*Context)
	if !ok {
		return nil, fmt.Errorf("%w: not a context", resound.ErrInvalidHandle)
	}
	if ctx.closed.Load() {
		return nil, fmt.Errorf("%w: context is shut down", resound.ErrInvalidHandle)
	}
	return ctx, nil
}

func (c *Context) ObjectType() ObjectType {
	return ObjectTypeContext
}

func (c *Context) property(p Property) (interface{}, bool) {
	switch p {
	case PropGain:
		return &c.gain.prop, true
	case PropPosition:
		return &c.position, true
	case PropOrientation:
		return &c.orientation, true
	}
	return nil, false
}

func (c *Context) propContext() *Context {
	return c
}

func (c *Context) pauseControl() *gainControl {
	return &c.gain
}

func (c *Context) finalize() {
	c.shutdown()
}

// push posts a command to the render loop. Apply runs at the next block
// boundary; releasing runs on the deletion goroutine afterwards. Commands
// posted to a dead context skip Apply and only release.
func (c *Context) push(apply, releaseRefs func()) {
	if c.closed.Load() {
		if releaseRefs != nil {
			scheduleDeletion(releaseRefs)
		}
		return
	}
	c.queue.Push(command.Command{Apply: apply, Release: releaseRefs})
}

func (c *Context) shutdown() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	c.running.Store(false)
	if c.out != nil {
		c.out.Close()
		c.out = nil
	}
	// The device is stopped, nothing renders anymore: drop everything the
	// graph still holds. Commands in flight release without applying.
	for {
		cmd, ok := c.queue.Pop()
		if !ok {
			break
		}
		if cmd.Release != nil {
			cmd.Release()
		}
	}
	// Source and effect membership is non-owning; just forget them.
	c.sources = nil
	c.effects = nil
	c.rt.Close()
	log.GetLogger().Debug("context shut down: ", c.id)
}

// generateAudio renders one block into dst (interleaved, masterChannels
// wide). This is the render loop body: it must not allocate, lock or
// block.
func (c *Context) generateAudio(dst []float32) {
	if !c.running.Load() {
		for i := range dst {
			dst[i] = 0
		}
		return
	}
	defer func() {
		// A panic here is an engine bug; the device callback must keep
		// running regardless.
		if r := recover(); r != nil {
			log.GetLogger().Error("panic in render loop: ", r)
		}
	}()

	c.runCommands()
	c.master.Zero()

	for _, s := range c.sources {
		c.guardSource(s)
	}
	for _, e := range c.effects {
		c.guardEffect(e)
	}
	c.rt.FinishBlock()

	c.gain.tick(c.blockTime)
	master := c.master.Data()
	c.gain.driver.Drive(c.blockTime, func(gain func(i int) float32) {
		for i := 0; i < config.BlockSize; i++ {
			g := gain(i)
			for ch := 0; ch < masterChannels; ch++ {
				dst[i*masterChannels+ch] = g * master[i*masterChannels+ch]
			}
		}
	})
	c.blockTime++
}

func (c *Context) runCommands() {
	c.cmdBuf = c.queue.Drain(c.cmdBuf, config.CommandsPerBlock)
	for i := range c.cmdBuf {
		cmd := c.cmdBuf[i]
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.GetLogger().Error("command panicked: ", r)
				}
			}()
			if cmd.Apply != nil {
				cmd.Apply()
			}
		}()
		if cmd.Release != nil {
			scheduleDeletion(cmd.Release)
		}
		c.cmdBuf[i] = command.Command{}
	}
}

// guardSource degrades a failing source to silence for the block instead
// of unwinding into the device callback.
func (c *Context) guardSource(s sourceNode) {
	defer func() {
		if r := recover(); r != nil {
			log.GetLogger().Error("source failed, contributing silence: ", r)
		}
	}()
	s.runSource(c.master)
}

func (c *Context) guardEffect(e effectNode) {
	defer func() {
		if r := recover(); r != nil {
			log.GetLogger().Error("effect failed, contributing silence: ", r)
		}
	}()
	e.runEffect(c.master)
}

// addSource registers a source at the back of the render order. Render
// loop only, via command.
func (c *Context) addSource(s sourceNode) {
	c.sources = append(c.sources, s)
}

func (c *Context) removeSource(s sourceNode) {
	for i, existing := range c.sources {
		if existing == s {
			c.sources = append(c.sources[:i], c.sources[i+1:]...)
			return
		}
	}
}

func (c *Context) addEffect(e effectNode) {
	c.effects = append(c.effects, e)
}

func (c *Context) removeEffect(e effectNode) {
	for i, existing := range c.effects {
		if existing == e {
			c.effects = append(c.effects[:i], c.effects[i+1:]...)
			return
		}
	}
}

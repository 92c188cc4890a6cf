// Package router implements the declarative fan-out from source outputs to
// effect inputs.
//
// Routing is one-to-many and exactly one level deep: an OutputHandle (the
// source side) feeds any number of InputHandles (the effect side). The
// router hands out pre-allocated buffers and mixes between them; it never
// owns execution order. Handles are registered once, never move, and are
// identified by an id assigned at construction, which also gives the route
// table an arbitrary total order for binary search.
//
// Nothing here is safe for concurrent use. The router lives on the render
// loop; control threads reach it through the command queue.
package router

import (
	"sort"
	"sync/atomic"

	"github.com/dudk/resound/config"
	"github.com/dudk/resound/mixer"
)

// State describes where a route is in its lifecycle.
type State int

const (
	// Dead routes are skipped when mixing and collected at the end of the
	// block.
	Dead State = iota
	// FadeIn ramps from the gain at creation (zero for fresh routes) to
	// the configured gain.
	FadeIn
	// Steady applies the configured gain unchanged.
	Steady
	// GainChanged ramps from the previous to the new gain over one block.
	GainChanged
	// FadeOut ramps to zero, after which the route dies.
	FadeOut
)

var handleIDs atomic.Uint64

// InputHandle is the reader side of routes: an effect. It references a
// pre-allocated accumulator sized to one block at the effect's channel
// count.
type InputHandle struct {
	router   *Router
	buffer   []float32
	channels int
	id       uint64
}

// NewInputHandle registers an input with the router. The accumulator is
// allocated here, once.
func NewInputHandle(r *Router, channels int) *InputHandle {
	h := &InputHandle{
		router:   r,
		buffer:   make([]float32, config.BlockSize*channels),
		channels: channels,
		id:       handleIDs.Add(1),
	}
	r.inputs = append(r.inputs, h)
	return h
}

// Buffer exposes the block accumulator routes mix into.
func (h *InputHandle) Buffer() []float32 {
	return h.buffer
}

// Channels returns the accumulator channel count.
func (h *InputHandle) Channels() int {
	return h.channels
}

// Destroy unregisters the handle, synchronously removing every route that
// references it.
func (h *InputHandle) Destroy() {
	if h.router == nil {
		return
	}
	h.router.unregisterInput(h)
	h.router = nil
}

// OutputHandle is the writer side of routes: a source.
type OutputHandle struct {
	router *Router
	id     uint64
}

// NewOutputHandle registers an output with the router.
func NewOutputHandle(r *Router) *OutputHandle {
	h := &OutputHandle{
		router: r,
		id:     handleIDs.Add(1),
	}
	r.outputs = append(r.outputs, h)
	return h
}

// RouteAudio mixes one block of this output's audio into the accumulator
// of every live route, with the per-sample ramped gain for the route's
// current state. Channel mismatches resolve per mixer.Remap.
func (h *OutputHandle) RouteAudio(buf []float32, channels int) {
	if h.router == nil {
		return
	}
	h.router.routeAudio(h, buf, channels)
}

// Destroy unregisters the handle, synchronously removing its routes.
func (h *OutputHandle) Destroy() {
	if h.router == nil {
		return
	}
	h.router.unregisterOutput(h)
	h.router = nil
}

type route struct {
	output *OutputHandle
	input  *InputHandle
	state  State
	// lastStateChanged is the router-local block time of the last state
	// transition.
	lastStateChanged uint64
	fadeInBlocks     uint64
	fadeOutBlocks    uint64
	// gain is the steady-state target. prevGain is where the current ramp
	// started: zero for fresh fade-ins, the interrupted value for
	// splices.
	gain     float32
	prevGain float32
}

func (rt *route) canConfigure() bool {
	return rt.state != Dead
}

// gainAt returns the route's effective gain at a block boundary.
func (rt *route) gainAt(time uint64) float32 {
	var target float32
	var blocks uint64
	switch rt.state {
	case Steady:
		return rt.gain
	case Dead:
		return 0
	case FadeIn:
		target, blocks = rt.gain, rt.fadeInBlocks
	case GainChanged:
		target, blocks = rt.gain, 1
	case FadeOut:
		target, blocks = 0, rt.fadeOutBlocks
	}
	if time <= rt.lastStateChanged {
		return rt.prevGain
	}
	elapsed := time - rt.lastStateChanged
	if elapsed >= blocks {
		return target
	}
	w := float32(elapsed) / float32(blocks)
	return rt.prevGain + w*(target-rt.prevGain)
}

// Router owns the route table for one context.
type Router struct {
	routes  []route
	inputs  []*InputHandle
	outputs []*OutputHandle
	time    uint64
}

// New returns an empty router.
func New() *Router {
	return &Router{}
}

// Time returns the router-local block counter.
func (r *Router) Time() uint64 {
	return r.time
}

// ConfigureRoute establishes or updates the route output->input. This is a
// declarative interface: a missing route is inserted and fades in over
// fadeIn blocks; an existing one has its gain updated. A route mid
// fade-out is revived, resuming from its current gain so the splice is
// click-free.
func (r *Router) ConfigureRoute(output *OutputHandle, input *InputHandle, gain float32, fadeIn uint64) {
	if fadeIn == 0 {
		fadeIn = 1
	}
	if i, ok := r.findRouteForPair(output, input); ok {
		rt := &r.routes[i]
		if !rt.canConfigure() {
			return
		}
		switch rt.state {
		case FadeIn:
			// Retarget the ramp in place. A repeat of the same
			// configuration keeps the same gain shape.
			rt.gain = gain
		case FadeOut:
			rt.prevGain = rt.gainAt(r.time)
			rt.gain = gain
			rt.fadeInBlocks = fadeIn
			rt.setState(FadeIn, r.time)
		default:
			rt.prevGain = rt.gainAt(r.time)
			rt.gain = gain
			rt.setState(GainChanged, r.time)
		}
		return
	}
	r.insertRoute(route{
		output:       output,
		input:        input,
		state:        FadeIn,
		fadeInBlocks: fadeIn,
		// New routes die fast if removed before anyone configures the
		// fade-out.
		fadeOutBlocks:    1,
		gain:             gain,
		prevGain:         0,
		lastStateChanged: r.time,
	})
}

// RemoveRoute fades the route output->input to silence over fadeOut blocks
// and then removes it. Missing routes are ignored.
func (r *Router) RemoveRoute(output *OutputHandle, input *InputHandle, fadeOut uint64) {
	if i, ok := r.findRouteForPair(output, input); ok {
		r.beginFadeOut(&r.routes[i], fadeOut)
	}
}

// RemoveAllRoutes fades out every route belonging to output.
func (r *Router) RemoveAllRoutes(output *OutputHandle, fadeOut uint64) {
	begin, end := r.findRun(output)
	for i := begin; i < end; i++ {
		r.beginFadeOut(&r.routes[i], fadeOut)
	}
}

func (r *Router) beginFadeOut(rt *route, fadeOut uint64) {
	if rt.state == Dead || rt.state == FadeOut {
		return
	}
	if fadeOut == 0 {
		fadeOut = 1
	}
	rt.prevGain = rt.gainAt(r.time)
	rt.fadeOutBlocks = fadeOut
	rt.setState(FadeOut, r.time)
}

// FinishBlock advances the router clock, completes due state transitions,
// collects dead routes and zeroes every input accumulator for the next
// block.
func (r *Router) FinishBlock() {
	r.time++
	for i := range r.routes {
		rt := &r.routes[i]
		switch rt.state {
		case FadeIn:
			if r.time >= rt.lastStateChanged+rt.fadeInBlocks {
				rt.prevGain = rt.gain
				rt.setState(Steady, r.time)
			}
		case GainChanged:
			if r.time >= rt.lastStateChanged+1 {
				rt.prevGain = rt.gain
				rt.setState(Steady, r.time)
			}
		case FadeOut:
			if r.time >= rt.lastStateChanged+rt.fadeOutBlocks {
				rt.setState(Dead, r.time)
			}
		}
	}
	r.collectDead()
	for _, in := range r.inputs {
		for i := range in.buffer {
			in.buffer[i] = 0
		}
	}
}

// Close breaks the back-references of all surviving handles. Handles keep
// working as no-ops afterwards; this avoids weak references at the cost of
// the documented nulling pattern.
func (r *Router) Close() {
	for _, in := range r.inputs {
		in.router = nil
	}
	for _, out := range r.outputs {
		out.router = nil
	}
	r.inputs = nil
	r.outputs = nil
	r.routes = nil
}

func (r *Router) routeAudio(output *OutputHandle, buf []float32, channels int) {
	begin, end := r.findRun(output)
	for i := begin; i < end; i++ {
		rt := &r.routes[i]
		if rt.state == Dead {
			continue
		}
		g0 := rt.gainAt(r.time)
		g1 := rt.gainAt(r.time + 1)
		step := (g1 - g0) / float32(config.BlockSize)
		mixer.Remap(rt.input.buffer, rt.input.channels, buf, channels, config.BlockSize,
			func(i int) float32 { return g0 + step*float32(i) })
	}
}

// routeLess orders the table by (output id, input id), keeping each
// output's routes in one contiguous run.
func routeLess(a, b *route) bool {
	if a.output.id != b.output.id {
		return a.output.id < b.output.id
	}
	return a.input.id < b.input.id
}

func (r *Router) insertRoute(rt route) {
	i := sort.Search(len(r.routes), func(i int) bool {
		return !routeLess(&r.routes[i], &rt)
	})
	r.routes = append(r.routes, route{})
	copy(r.routes[i+1:], r.routes[i:])
	r.routes[i] = rt
}

func (r *Router) findRouteForPair(output *OutputHandle, input *InputHandle) (int, bool) {
	probe := route{output: output, input: input}
	i := sort.Search(len(r.routes), func(i int) bool {
		return !routeLess(&r.routes[i], &probe)
	})
	if i < len(r.routes) && r.routes[i].output == output && r.routes[i].input == input {
		return i, true
	}
	return 0, false
}

// findRun returns the half-open index range of output's routes.
func (r *Router) findRun(output *OutputHandle) (int, int) {
	begin := sort.Search(len(r.routes), func(i int) bool {
		return r.routes[i].output.id >= output.id
	})
	end := begin
	for end < len(r.routes) && r.routes[end].output == output {
		end++
	}
	return begin, end
}

func (r *Router) collectDead() {
	kept := r.routes[:0]
	for i := range r.routes {
		if r.routes[i].state != Dead {
			kept = append(kept, r.routes[i])
		}
	}
	for i := len(kept); i < len(r.routes); i++ {
		r.routes[i] = route{}
	}
	r.routes = kept
}

func (r *Router) unregisterInput(h *InputHandle) {
	kept := r.routes[:0]
	for i := range r.routes {
		if r.routes[i].input != h {
			kept = append(kept, r.routes[i])
		}
	}
	for i := len(kept); i < len(r.routes); i++ {
		r.routes[i] = route{}
	}
	r.routes = kept
	for i, in := range r.inputs {
		if in == h {
			r.inputs = append(r.inputs[:i], r.inputs[i+1:]...)
			break
		}
	}
}

func (r *Router) unregisterOutput(h *OutputHandle) {
	kept := r.routes[:0]
	for i := range r.routes {
		if r.routes[i].output != h {
			kept = append(kept, r.routes[i])
		}
	}
	for i := len(kept); i < len(r.routes); i++ {
		r.routes[i] = route{}
	}
	r.routes = kept
	for i, out := range r.outputs {
		if out == h {
			r.outputs = append(r.outputs[:i], r.outputs[i+1:]...)
			break
		}
	}
}

func (rt *route) setState(s State, time uint64) {
	rt.state = s
	rt.lastStateChanged = time
}

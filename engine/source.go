package engine

import (
	"fmt"
	"math"

	"github.com/dudk/resound"
	"github.com/dudk/resound/config"
	"github.com/dudk/resound/log"
	"github.com/dudk/resound/mixer"
	"github.com/dudk/resound/property"
	"github.com/dudk/resound/router"
)

// sourceBase is the shared half of every source: the generator list, the
// fused gain/pause control, the router output and an optional biquad
// filter on the pre-master mix.
type sourceBase struct {
	baseObject
	ctx  *Context
	gain gainControl

	filter      property.Biquad
	filterState [masterChannels]biquadState

	// Render-loop state.
	generators []Generator
	out        *router.OutputHandle

	scratch        []float32
	premix         []float32
	premixChannels int
}

type biquadState struct {
	x1, x2, y1, y2 float64
}

func (s *sourceBase) initSource(ctx *Context, premixChannels int) {
	s.initObject()
	s.ctx = ctx
	s.gain.init()
	s.filter.Init(property.IdentityBiquad())
	s.generators = make([]Generator, 0, 32)
	s.scratch = make([]float32, config.BlockSize*config.MaxChannels)
	s.premix = make([]float32, config.BlockSize*premixChannels)
	s.premixChannels = premixChannels
}

func (s *sourceBase) propContext() *Context {
	return s.ctx
}

func (s *sourceBase) pauseControl() *gainControl {
	return &s.gain
}

// fillPremix renders every generator, applies source gain and filter, and
// hands the pre-master mix to the router. Sources then spatialize the
// same buffer into master. Render loop only.
func (s *sourceBase) fillPremix() {
	s.gain.tick(s.ctx.blockTime)
	zero(s.premix)

	for _, g := range s.generators {
		channels := g.Channels()
		if channels == 0 {
			continue
		}
		if channels > config.MaxChannels {
			channels = config.MaxChannels
		}
		zero(s.scratch[:config.BlockSize*channels])
		runGenerator(g, s.scratch)
		mixer.Remap(s.premix, s.premixChannels, s.scratch, channels, config.BlockSize, mixer.UnityGain)
	}

	s.gain.driver.Drive(s.ctx.blockTime, func(gain func(i int) float32) {
		for i := 0; i < config.BlockSize; i++ {
			g := gain(i)
			for ch := 0; ch < s.premixChannels; ch++ {
				s.premix[i*s.premixChannels+ch] *= g
			}
		}
	})

	s.applyFilter()

	if s.out != nil {
		s.out.RouteAudio(s.premix, s.premixChannels)
	}
}

// applyFilter runs the premix through the biquad property, direct form 1.
// The identity filter is skipped entirely.
func (s *sourceBase) applyFilter() {
	coef, changed := s.filter.Acquire()
	if changed {
		for ch := range s.filterState {
			s.filterState[ch] = biquadState{}
		}
	}
	if coef == property.IdentityBiquad() {
		return
	}
	for ch := 0; ch < s.premixChannels; ch++ {
		st := &s.filterState[ch]
		for i := 0; i < config.BlockSize; i++ {
			x := float64(s.premix[i*s.premixChannels+ch])
			y := coef.B0*x + coef.B1*st.x1 + coef.B2*st.x2 - coef.A1*st.y1 - coef.A2*st.y2
			st.x2, st.x1 = st.x1, x
			st.y2, st.y1 = st.y1, y
			s.premix[i*s.premixChannels+ch] = float32(y)
		}
	}
}

// addGenerator and removeGenerator run on the render loop via command.
func (s *sourceBase) addGenerator(g Generator) bool {
	for _, existing := range s.generators {
		if existing == g {
			return false
		}
	}
	s.generators = append(s.generators, g)
	return true
}

func (s *sourceBase) removeGenerator(g Generator) bool {
	for i, existing := range s.generators {
		if existing == g {
			s.generators = append(s.generators[:i], s.generators[i+1:]...)
			return true
		}
	}
	return false
}

// panPair smooths equal-power pan gains across a block, de-clicking
// azimuth movement.
type panPair struct {
	l, r   float32
	primed bool
}

func (p *panPair) slide(targetL, targetR float32) (fromL, fromR, toL, toR float32) {
	if !p.primed {
		p.l, p.r = targetL, targetR
		p.primed = true
	}
	fromL, fromR = p.l, p.r
	p.l, p.r = targetL, targetR
	return fromL, fromR, targetL, targetR
}

// panGains maps an azimuth in [-90, 90] degrees to equal-power stereo
// gains.
func panGains(azimuth float64) (l, r float32) {
	x := (azimuth + 90) / 180
	angle := x * math.Pi / 2
	return float32(math.Cos(angle)), float32(math.Sin(angle))
}

// mixPanned adds the mono premix into master with per-sample interpolated
// pan gains and an extra scalar gain.
func (s *sourceBase) mixPanned(master *mixer.Bus, pan *panPair, targetL, targetR, extraGain float32) {
	fromL, fromR, toL, toR := pan.slide(targetL*extraGain, targetR*extraGain)
	stepL := (toL - fromL) / float32(config.BlockSize)
	stepR := (toR - fromR) / float32(config.BlockSize)
	data := master.Data()
	for i := 0; i < config.BlockSize; i++ {
		v := s.premix[i]
		data[i*masterChannels] += (fromL + stepL*float32(i)) * v
		data[i*masterChannels+1] += (fromR + stepR*float32(i)) * v
	}
}

// DirectSource mixes its generators straight into master at the master
// channel count, no spatialization.
type DirectSource struct {
	sourceBase
}

// CreateSourceDirect creates a direct source on the context.
func CreateSourceDirect(ctxHandle resound.Handle) (resound.Handle, error) {
	ctx, err := lookupContext(ctxHandle)
	if err != nil {
		return 0, err
	}
	s := &DirectSource{}
	s.initSource(ctx, masterChannels)
	return exposeSource(ctx, s, &s.sourceBase)
}

func (s *DirectSource) ObjectType() ObjectType {
	return ObjectTypeSourceDirect
}

func (s *DirectSource) property(p Property) (interface{}, bool) {
	switch p {
	case PropGain:
		return &s.gain.prop, true
	case PropFilter:
		return &s.filter, true
	}
	return nil, false
}

func (s *DirectSource) runSource(master *mixer.Bus) {
	s.fillPremix()
	mixer.Sum(master.Data(), s.premix)
}

// PannedSource mixes a mono pre-mix into master through an equal-power
// azimuth pan.
type PannedSource struct {
	sourceBase
	azimuth   property.Double
	elevation property.Double
	pan       panPair
}

// CreateSourcePanned creates a panned source on the context.
func CreateSourcePanned(ctxHandle resound.Handle) (resound.Handle, error) {
	ctx, err := lookupContext(ctxHandle)
	if err != nil {
		return 0, err
	}
	s := &PannedSource{}
	s.initSource(ctx, 1)
	s.azimuth.Init(0)
	s.elevation.Init(0)
	return exposeSource(ctx, s, &s.sourceBase)
}

func (s *PannedSource) ObjectType() ObjectType {
	return ObjectTypeSourcePanned
}

func (s *PannedSource) property(p Property) (interface{}, bool) {
	switch p {
	case PropGain:
		return &s.gain.prop, true
	case PropAzimuth:
		return &s.azimuth, true
	case PropElevation:
		return &s.elevation, true
	case PropFilter:
		return &s.filter, true
	}
	return nil, false
}

func (s *PannedSource) runSource(master *mixer.Bus) {
	s.fillPremix()
	az, _ := s.azimuth.Acquire()
	l, r := panGains(az)
	s.mixPanned(master, &s.pan, l, r, 1)
}

// Source3D attenuates by listener distance and pans by listener-relative
// azimuth. The panner itself is the stereo equal-power strategy; the
// spatial math lives here, the kernels stay replaceable.
type Source3D struct {
	sourceBase
	position      property.Double3
	distanceModel property.Int
	distanceRef   property.Double
	distanceMax   property.Double
	rolloff       property.Double
	pan           panPair
}

// CreateSource3D creates a 3D source on the context.
func CreateSource3D(ctxHandle resound.Handle) (resound.Handle, error) {
	ctx, err := lookupContext(ctxHandle)
	if err != nil {
		return 0, err
	}
	s := &Source3D{}
	s.initSource(ctx, 1)
	s.position.Init([3]float64{})
	s.distanceModel.Init(DistanceModelLinear)
	s.distanceRef.Init(1)
	s.distanceMax.Init(50)
	s.rolloff.Init(1)
	return exposeSource(ctx, s, &s.sourceBase)
}

func (s *Source3D) ObjectType() ObjectType {
	return ObjectTypeSource3D
}

func (s *Source3D) property(p Property) (interface{}, bool) {
	switch p {
	case PropGain:
		return &s.gain.prop, true
	case PropPosition:
		return &s.position, true
	case PropDistanceModel:
		return &s.distanceModel, true
	case PropDistanceRef:
		return &s.distanceRef, true
	case PropDistanceMax:
		return &s.distanceMax, true
	case PropRolloff:
		return &s.rolloff, true
	case PropFilter:
		return &s.filter, true
	}
	return nil, false
}

func (s *Source3D) runSource(master *mixer.Bus) {
	s.fillPremix()

	pos, _ := s.position.Acquire()
	listener := s.ctx.position.Peek()
	orient := s.ctx.orientation.Peek()

	rel := [3]float64{pos[0] - listener[0], pos[1] - listener[1], pos[2] - listener[2]}
	distance := math.Sqrt(rel[0]*rel[0] + rel[1]*rel[1] + rel[2]*rel[2])
	attenuation := s.distanceGain(distance)

	at := [3]float64{orient[0], orient[1], orient[2]}
	up := [3]float64{orient[3], orient[4], orient[5]}
	right := cross(at, up)
	x := dot(rel, right)
	z := dot(rel, at)
	azimuth := 0.0
	if x != 0 || z != 0 {
		azimuth = math.Atan2(x, z) * 180 / math.Pi
	}
	if azimuth > 90 {
		azimuth = 180 - azimuth
	} else if azimuth < -90 {
		azimuth = -180 - azimuth
	}

	l, r := panGains(azimuth)
	s.mixPanned(master, &s.pan, l, r, float32(attenuation))
}

// distanceGain evaluates the configured distance model. Render loop only.
func (s *Source3D) distanceGain(distance float64) float64 {
	model, _ := s.distanceModel.Acquire()
	ref, _ := s.distanceRef.Acquire()
	max, _ := s.distanceMax.Acquire()
	rolloff, _ := s.rolloff.Acquire()

	if distance > max {
		distance = max
	}
	if distance < ref {
		distance = ref
	}
	switch model {
	case DistanceModelLinear:
		if max <= ref {
			return 1
		}
		g := 1 - rolloff*(distance-ref)/(max-ref)
		if g < 0 {
			g = 0
		}
		return g
	case DistanceModelExponential:
		if ref <= 0 {
			return 1
		}
		return math.Pow(distance/ref, -rolloff)
	case DistanceModelInverse:
		return ref / (ref + rolloff*(distance-ref))
	default:
		return 1
	}
}

func cross(a, b [3]float64) [3]float64 {
	return [3]float64{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

func dot(a, b [3]float64) float64 {
	return a[0]*b[0] + a[1]*b[1] + a[2]*b[2]
}

// exposeSource registers the source with the handle table and, through
// the command queue, with the render loop and router.
func exposeSource(ctx *Context, node sourceNode, base *sourceBase) (resound.Handle, error) {
	h, err := expose(node)
	if err != nil {
		return 0, err
	}
	// The context's source list is non-owning: the source removes itself
	// when its last reference drops, so a freed source does not play
	// forever.
	ctx.push(func() {
		base.out = router.NewOutputHandle(ctx.rt)
		ctx.addSource(node)
	}, nil)
	log.GetLogger().Debug("source created: ", base.id)
	return h, nil
}

// finalizeSource tears a source out of the graph once the last reference
// drops: the render loop forgets it at the next block boundary and the
// generators it held are released afterwards. With the context already
// shut down there is no render loop left, so teardown happens right here
// on the deletion goroutine.
func finalizeSource(base *sourceBase, node sourceNode) {
	ctx := base.ctx
	if ctx.closed.Load() {
		base.out = nil
		for _, g := range base.generators {
			release(g)
		}
		base.generators = nil
		return
	}
	var held []Generator
	ctx.push(func() {
		ctx.removeSource(node)
		if base.out != nil {
			base.out.Destroy()
			base.out = nil
		}
		held = append(held, base.generators...)
		base.generators = base.generators[:0]
	}, func() {
		for _, g := range held {
			release(g)
		}
	})
}

func (s *DirectSource) finalize() { finalizeSource(&s.sourceBase, s) }
func (s *PannedSource) finalize() { finalizeSource(&s.sourceBase, s) }
func (s *Source3D) finalize()     { finalizeSource(&s.sourceBase, s) }

// SourceAddGenerator attaches a generator to a source. A generator may
// feed several sources; each attachment holds a reference.
func SourceAddGenerator(sourceHandle, generatorHandle resound.Handle) error {
	base, node, err := lookupSource(sourceHandle)
	if err != nil {
		return err
	}
	gen, err := lookupGenerator(generatorHandle)
	if err != nil {
		return err
	}
	if gen.base().ctx != base.ctx {
		return fmt.Errorf("%w: generator belongs to another context", resound.ErrInvalidHandle)
	}
	retain(gen)
	retain(node)
	added := false
	base.ctx.push(func() {
		added = base.addGenerator(gen)
	}, func() {
		if !added {
			release(gen)
		}
		release(node)
	})
	return nil
}

// SourceRemoveGenerator detaches a generator; missing attachments are
// ignored.
func SourceRemoveGenerator(sourceHandle, generatorHandle resound.Handle) error {
	base, node, err := lookupSource(sourceHandle)
	if err != nil {
		return err
	}
	gen, err := lookupGenerator(generatorHandle)
	if err != nil {
		return err
	}
	retain(node)
	removed := false
	base.ctx.push(func() {
		removed = base.removeGenerator(gen)
	}, func() {
		if removed {
			release(gen)
		}
		release(node)
	})
	return nil
}

func lookupSource(h resound.Handle) (*sourceBase, sourceNode, error) {
	obj, err := lookup(h)
	if err != nil {
		return nil, nil, err
	}
	switch s := obj.(type) {
	case *DirectSource:
		return &s.sourceBase, s, nil
	case *PannedSource:
		return &s.sourceBase, s, nil
	case *Source3D:
		return &s.sourceBase, s, nil
	}
	return nil, nil, fmt.Errorf("%w: not a source", resound.ErrInvalidHandle)
}

func lookupGenerator(h resound.Handle) (Generator, error) {
	obj, err := lookup(h)
	if err != nil {
		return nil, err
	}
	g, ok := obj.(Generator)
	if !ok {
		return nil, fmt.Errorf("%w: not a generator", resound.ErrInvalidHandle)
	}
	return g, nil
}

// Package property implements the double-buffered typed properties that
// connect the control API to the render loop.
//
// Every property has two faces. The control side holds a shadow value,
// stored atomically so getters are consistent immediately after a setter
// returns. The audio side holds the value the render loop computes with,
// plus a dirty flag; it is only ever touched on the render loop, where the
// owning object acquires changes at the top of a block. Mutation travels
// between the two through the command queue, never directly, so no change
// is visible mid-block.
package property

import (
	"math"
	"sync/atomic"
)

// Double is an f64 property.
type Double struct {
	audio  float64
	dirty  bool
	shadow atomic.Uint64
}

// Init sets both faces without marking the property dirty.
func (p *Double) Init(v float64) {
	p.audio = v
	p.shadow.Store(math.Float64bits(v))
}

// Store updates the control-side shadow. Called by setters before posting
// the apply command.
func (p *Double) Store(v float64) {
	p.shadow.Store(math.Float64bits(v))
}

// Load reads the control-side shadow.
func (p *Double) Load() float64 {
	return math.Float64frombits(p.shadow.Load())
}

// Apply sets the audio-side value and marks it changed. Render loop only.
func (p *Double) Apply(v float64) {
	p.audio = v
	p.dirty = true
}

// Acquire reads the audio-side value, reporting and clearing the dirty
// flag. Render loop only.
func (p *Double) Acquire() (float64, bool) {
	changed := p.dirty
	p.dirty = false
	return p.audio, changed
}

// Peek reads the audio-side value without clearing the dirty flag. Render
// loop only.
func (p *Double) Peek() float64 {
	return p.audio
}

// Report sets the audio-side value without marking it changed and mirrors
// it into the shadow for control-side readback. The streaming generator
// uses this to publish playback position; tracking the change would make
// the generator seek to its own reports forever.
func (p *Double) Report(v float64) {
	p.audio = v
	p.shadow.Store(math.Float64bits(v))
}

// Int is an i64 property.
type Int struct {
	audio  int64
	dirty  bool
	shadow atomic.Int64
}

func (p *Int) Init(v int64) {
	p.audio = v
	p.shadow.Store(v)
}

func (p *Int) Store(v int64) {
	p.shadow.Store(v)
}

func (p *Int) Load() int64 {
	return p.shadow.Load()
}

func (p *Int) Apply(v int64) {
	p.audio = v
	p.dirty = true
}

func (p *Int) Acquire() (int64, bool) {
	changed := p.dirty
	p.dirty = false
	return p.audio, changed
}

func (p *Int) Peek() int64 {
	return p.audio
}

// Object is a property holding a reference to another engine object, e.g.
// a buffer generator's buffer.
type Object struct {
	audio  interface{}
	dirty  bool
	shadow atomic.Value
}

type objectBox struct {
	v interface{}
}

func (p *Object) Init(v interface{}) {
	p.audio = v
	p.shadow.Store(objectBox{v})
}

func (p *Object) Store(v interface{}) {
	p.shadow.Store(objectBox{v})
}

func (p *Object) Load() interface{} {
	boxed, ok := p.shadow.Load().(objectBox)
	if !ok {
		return nil
	}
	return boxed.v
}

func (p *Object) Apply(v interface{}) {
	p.audio = v
	p.dirty = true
}

func (p *Object) Acquire() (interface{}, bool) {
	changed := p.dirty
	p.dirty = false
	return p.audio, changed
}

func (p *Object) Peek() interface{} {
	return p.audio
}

// Double3 is a property of three doubles, e.g. a position.
type Double3 struct {
	audio  [3]float64
	dirty  bool
	shadow atomic.Value
}

func (p *Double3) Init(v [3]float64) {
	p.audio = v
	p.shadow.Store(v)
}

func (p *Double3) Store(v [3]float64) {
	p.shadow.Store(v)
}

func (p *Double3) Load() [3]float64 {
	v, ok := p.shadow.Load().([3]float64)
	if !ok {
		return [3]float64{}
	}
	return v
}

func (p *Double3) Apply(v [3]float64) {
	p.audio = v
	p.dirty = true
}

func (p *Double3) Acquire() ([3]float64, bool) {
	changed := p.dirty
	p.dirty = false
	return p.audio, changed
}

func (p *Double3) Peek() [3]float64 {
	return p.audio
}

// Double6 is a property of six doubles, e.g. an orientation as two packed
// vectors.
type Double6 struct {
	audio  [6]float64
	dirty  bool
	shadow atomic.Value
}

func (p *Double6) Init(v [6]float64) {
	p.audio = v
	p.shadow.Store(v)
}

func (p *Double6) Store(v [6]float64) {
	p.shadow.Store(v)
}

func (p *Double6) Load() [6]float64 {
	v, ok := p.shadow.Load().([6]float64)
	if !ok {
		return [6]float64{}
	}
	return v
}

func (p *Double6) Apply(v [6]float64) {
	p.audio = v
	p.dirty = true
}

func (p *Double6) Acquire() ([6]float64, bool) {
	changed := p.dirty
	p.dirty = false
	return p.audio, changed
}

func (p *Double6) Peek() [6]float64 {
	return p.audio
}

// BiquadConfig holds normalized biquad filter coefficients.
type BiquadConfig struct {
	B0, B1, B2 float64
	A1, A2     float64
}

// IdentityBiquad passes audio through unchanged.
func IdentityBiquad() BiquadConfig {
	return BiquadConfig{B0: 1}
}

// Biquad is a filter-coefficients property.
type Biquad struct {
	audio  BiquadConfig
	dirty  bool
	shadow atomic.Value
}

func (p *Biquad) Init(v BiquadConfig) {
	p.audio = v
	p.shadow.Store(v)
}

func (p *Biquad) Store(v BiquadConfig) {
	p.shadow.Store(v)
}

func (p *Biquad) Load() BiquadConfig {
	v, ok := p.shadow.Load().(BiquadConfig)
	if !ok {
		return IdentityBiquad()
	}
	return v
}

func (p *Biquad) Apply(v BiquadConfig) {
	p.audio = v
	p.dirty = true
}

func (p *Biquad) Acquire() (BiquadConfig, bool) {
	changed := p.dirty
	p.dirty = false
	return p.audio, changed
}

func (p *Biquad) Peek() BiquadConfig {
	return p.audio
}

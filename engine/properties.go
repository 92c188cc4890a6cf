package engine

import (
	"fmt"
	"math"

	"github.com/dudk/resound"
	"github.com/dudk/resound/property"
)

// Property identifies a typed slot on an engine object.
type Property int

const (
	// PropGain scales an object's output, linear.
	PropGain Property = iota
	// PropPlaybackPosition is a generator's play cursor in seconds.
	PropPlaybackPosition
	// PropLooping selects wrap-at-end behavior, 0 or 1.
	PropLooping
	// PropPitchBend multiplies a buffer generator's playback rate.
	PropPitchBend
	// PropNoiseType selects the noise color, a noise.Kind value.
	PropNoiseType
	// PropBuffer attaches a Buffer to a buffer generator.
	PropBuffer
	// PropPosition places a 3D source or the context's listener.
	PropPosition
	// PropOrientation orients the listener: at-vector then up-vector.
	PropOrientation
	// PropAzimuth pans a panned source, degrees, -90 left to +90 right.
	PropAzimuth
	// PropElevation tilts a panned source, degrees.
	PropElevation
	// PropDistanceModel selects attenuation math for a 3D source.
	PropDistanceModel
	// PropDistanceRef is the distance at which attenuation starts.
	PropDistanceRef
	// PropDistanceMax caps the attenuated distance.
	PropDistanceMax
	// PropRolloff scales attenuation steepness.
	PropRolloff
	// PropFilter applies biquad coefficients to a source's output.
	PropFilter
	// PropT60 is the reverb decay time to -60 dB, seconds.
	PropT60
	// PropReverbDamping controls high-frequency loss in the reverb loop,
	// 0 (none) up to 0.999.
	PropReverbDamping
)

// Distance models for PropDistanceModel.
const (
	DistanceModelNone int64 = iota
	DistanceModelLinear
	DistanceModelExponential
	DistanceModelInverse
)

// propertyOwner is implemented by every object with properties; it maps a
// Property to the concrete slot.
type propertyOwner interface {
	Object
	property(p Property) (slot interface{}, ok bool)
	// propContext returns the context whose queue applies this object's
	// mutations.
	propContext() *Context
}

type doubleRange struct {
	min, max float64
}

// doubleRanges validates f64 properties on the control side.
var doubleRanges = map[Property]doubleRange{
	PropGain:             {0, math.Inf(1)},
	PropPlaybackPosition: {0, math.Inf(1)},
	PropPitchBend:        {math.Inf(-1), math.Inf(1)},
	PropAzimuth:          {-90, 90},
	PropElevation:        {-90, 90},
	PropDistanceRef:      {0, math.Inf(1)},
	PropDistanceMax:      {0, math.Inf(1)},
	PropRolloff:          {0, math.Inf(1)},
	PropT60:              {0.05, 60},
	PropReverbDamping:    {0, 0.999},
}

type intRange struct {
	min, max int64
}

var intRanges = map[Property]intRange{
	PropLooping:       {0, 1},
	PropNoiseType:     {0, 2},
	PropDistanceModel: {DistanceModelNone, DistanceModelInverse},
}

func ownerFor(h resound.Handle, p Property) (propertyOwner, interface{}, error) {
	obj, err := lookup(h)
	if err != nil {
		return nil, nil, err
	}
	owner, ok := obj.(propertyOwner)
	if !ok {
		return nil, nil, fmt.Errorf("%w: object has no properties", resound.ErrInvalidProperty)
	}
	slot, ok := owner.property(p)
	if !ok {
		return nil, nil, fmt.Errorf("%w: property %d", resound.ErrInvalidProperty, p)
	}
	return owner, slot, nil
}

// post enqueues an apply on the owning context, holding a reference to the
// owner until the command has run.
func post(owner propertyOwner, apply func()) {
	ctx := owner.propContext()
	retain(owner)
	ctx.push(apply, func() { release(owner) })
}

// SetD sets an f64 property.
func SetD(h resound.Handle, p Property, v float64) error {
	owner, slot, err := ownerFor(h, p)
	if err != nil {
		return err
	}
	d, ok := slot.(*property.Double)
	if !ok {
		return fmt.Errorf("%w: property %d is not f64", resound.ErrInvalidProperty, p)
	}
	if r, ok := doubleRanges[p]; ok && (v < r.min || v > r.max || math.IsNaN(v)) {
		return fmt.Errorf("%w: property %d value %v", resound.ErrRange, p, v)
	}
	d.Store(v)
	post(owner, func() { d.Apply(v) })
	return nil
}

// GetD reads an f64 property's control-side value.
func GetD(h resound.Handle, p Property) (float64, error) {
	_, slot, err := ownerFor(h, p)
	if err != nil {
		return 0, err
	}
	d, ok := slot.(*property.Double)
	if !ok {
		return 0, fmt.Errorf("%w: property %d is not f64", resound.ErrInvalidProperty, p)
	}
	return d.Load(), nil
}

// SetI sets an i64 property.
func SetI(h resound.Handle, p Property, v int64) error {
	owner, slot, err := ownerFor(h, p)
	if err != nil {
		return err
	}
	i, ok := slot.(*property.Int)
	if !ok {
		return fmt.Errorf("%w: property %d is not i64", resound.ErrInvalidProperty, p)
	}
	if r, ok := intRanges[p]; ok && (v < r.min || v > r.max) {
		return fmt.Errorf("%w: property %d value %v", resound.ErrRange, p, v)
	}
	i.Store(v)
	post(owner, func() { i.Apply(v) })
	return nil
}

// GetI reads an i64 property's control-side value.
func GetI(h resound.Handle, p Property) (int64, error) {
	_, slot, err := ownerFor(h, p)
	if err != nil {
		return 0, err
	}
	i, ok := slot.(*property.Int)
	if !ok {
		return 0, fmt.Errorf("%w: property %d is not i64", resound.ErrInvalidProperty, p)
	}
	return i.Load(), nil
}

// SetO sets an object property, e.g. a buffer generator's buffer. Zero
// clears it.
func SetO(h resound.Handle, p Property, value resound.Handle) error {
	owner, slot, err := ownerFor(h, p)
	if err != nil {
		return err
	}
	o, ok := slot.(*property.Object)
	if !ok {
		return fmt.Errorf("%w: property %d is not an object", resound.ErrInvalidProperty, p)
	}
	var target Object
	if value != 0 {
		target, err = lookup(value)
		if err != nil {
			return err
		}
	}
	if err := validateObjectProperty(owner, p, target); err != nil {
		return err
	}
	// The audio side owns a reference to the attached object; swap it
	// under the queue so the old one is released off the render loop.
	if target != nil {
		retain(target)
	}
	o.Store(target)
	ctx := owner.propContext()
	retain(owner)
	var prev Object
	ctx.push(func() {
		prev, _ = o.Peek().(Object)
		o.Apply(target)
	}, func() {
		if prev != nil {
			release(prev)
		}
		release(owner)
	})
	return nil
}

// GetO reads an object property. The result is the attached object's
// handle-table identity, not a new handle; zero means unset.
func GetO(h resound.Handle, p Property) (resound.Handle, error) {
	_, slot, err := ownerFor(h, p)
	if err != nil {
		return 0, err
	}
	o, ok := slot.(*property.Object)
	if !ok {
		return 0, fmt.Errorf("%w: property %d is not an object", resound.ErrInvalidProperty, p)
	}
	obj, _ := o.Load().(Object)
	if obj == nil {
		return 0, nil
	}
	return findHandle(obj), nil
}

// SetD3 sets a three-double property.
func SetD3(h resound.Handle, p Property, v [3]float64) error {
	owner, slot, err := ownerFor(h, p)
	if err != nil {
		return err
	}
	d, ok := slot.(*property.Double3)
	if !ok {
		return fmt.Errorf("%w: property %d is not d3", resound.ErrInvalidProperty, p)
	}
	d.Store(v)
	post(owner, func() { d.Apply(v) })
	return nil
}

// GetD3 reads a three-double property.
func GetD3(h resound.Handle, p Property) ([3]float64, error) {
	_, slot, err := ownerFor(h, p)
	if err != nil {
		return [3]float64{}, err
	}
	d, ok := slot.(*property.Double3)
	if !ok {
		return [3]float64{}, fmt.Errorf("%w: property %d is not d3", resound.ErrInvalidProperty, p)
	}
	return d.Load(), nil
}

// SetD6 sets a six-double property. Orientation vectors must not be zero.
func SetD6(h resound.Handle, p Property, v [6]float64) error {
	owner, slot, err := ownerFor(h, p)
	if err != nil {
		return err
	}
	d, ok := slot.(*property.Double6)
	if !ok {
		return fmt.Errorf("%w: property %d is not d6", resound.ErrInvalidProperty, p)
	}
	if p == PropOrientation {
		if v[0] == 0 && v[1] == 0 && v[2] == 0 || v[3] == 0 && v[4] == 0 && v[5] == 0 {
			return fmt.Errorf("%w: zero orientation vector", resound.ErrRange)
		}
	}
	d.Store(v)
	post(owner, func() { d.Apply(v) })
	return nil
}

// GetD6 reads a six-double property.
func GetD6(h resound.Handle, p Property) ([6]float64, error) {
	_, slot, err := ownerFor(h, p)
	if err != nil {
		return [6]float64{}, err
	}
	d, ok := slot.(*property.Double6)
	if !ok {
		return [6]float64{}, fmt.Errorf("%w: property %d is not d6", resound.ErrInvalidProperty, p)
	}
	return d.Load(), nil
}

// SetBiquad sets a filter-coefficients property.
func SetBiquad(h resound.Handle, p Property, v property.BiquadConfig) error {
	owner, slot, err := ownerFor(h, p)
	if err != nil {
		return err
	}
	b, ok := slot.(*property.Biquad)
	if !ok {
		return fmt.Errorf("%w: property %d is not biquad", resound.ErrInvalidProperty, p)
	}
	b.Store(v)
	post(owner, func() { b.Apply(v) })
	return nil
}

// GetBiquad reads a filter-coefficients property.
func GetBiquad(h resound.Handle, p Property) (property.BiquadConfig, error) {
	_, slot, err := ownerFor(h, p)
	if err != nil {
		return property.BiquadConfig{}, err
	}
	b, ok := slot.(*property.Biquad)
	if !ok {
		return property.BiquadConfig{}, fmt.Errorf("%w: property %d is not biquad", resound.ErrInvalidProperty, p)
	}
	return b.Load(), nil
}

func validateObjectProperty(owner propertyOwner, p Property, target Object) error {
	if target == nil {
		return nil
	}
	if p == PropBuffer && target.ObjectType() != ObjectTypeBuffer {
		return fmt.Errorf("%w: property expects a buffer", resound.ErrInvalidHandle)
	}
	return nil
}

func findHandle(obj Object) resound.Handle {
	stateMu.RLock()
	defer stateMu.RUnlock()
	for h, o := range handles {
		if o == obj {
			return h
		}
	}
	return 0
}

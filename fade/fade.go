// Package fade provides sample-accurate linear gain ramps. A Driver is the
// shared primitive behind property gain and pause/play in the engine, so
// that those mutations never produce a click. Route transitions do not use
// a Driver: the router computes its own per-route linear ramps.
package fade

import "github.com/dudk/resound/config"

// linearFader interpolates between two values over a span of whole blocks.
// Outside the span it is flat at the nearer endpoint.
type linearFader struct {
	startBlock uint64
	endBlock   uint64
	startValue float32
	endValue   float32
}

func flatFader(value float32) linearFader {
	return linearFader{startValue: value, endValue: value}
}

func (f linearFader) valueAt(block uint64) float32 {
	if block >= f.endBlock {
		return f.endValue
	}
	if block <= f.startBlock {
		return f.startValue
	}
	w := float32(block-f.startBlock) / float32(f.endBlock-f.startBlock)
	return f.startValue + w*(f.endValue-f.startValue)
}

func (f linearFader) isFading(block uint64) bool {
	return block >= f.startBlock && block < f.endBlock
}

// Driver reconfigures a fader on every movement of a value of interest and
// hands render loops a per-sample gain function for the current block.
type Driver struct {
	fader        linearFader
	fadeInBlocks uint64
}

// NewDriver returns a driver resting at start. Subsequent SetValue calls
// ramp over fadeBlocks blocks; zero is treated as one, the implicit
// single-block fade that de-clicks unramped changes.
func NewDriver(start float32, fadeBlocks uint64) *Driver {
	if fadeBlocks == 0 {
		fadeBlocks = 1
	}
	return &Driver{fader: flatFader(start), fadeInBlocks: fadeBlocks}
}

// SetValue splices a new ramp starting at the current instantaneous value
// at block, ending at value fade-time blocks later.
func (d *Driver) SetValue(block uint64, value float32) {
	d.fader = linearFader{
		startBlock: block,
		endBlock:   block + d.fadeInBlocks,
		startValue: d.fader.valueAt(block),
		endValue:   value,
	}
}

// SetValueOver is SetValue with an explicit ramp length for this change
// only.
func (d *Driver) SetValueOver(block uint64, value float32, fadeBlocks uint64) {
	if fadeBlocks == 0 {
		fadeBlocks = 1
	}
	d.fader = linearFader{
		startBlock: block,
		endBlock:   block + fadeBlocks,
		startValue: d.fader.valueAt(block),
		endValue:   value,
	}
}

// Drive invokes callback with a function that computes the gain for sample
// i of the block at the given time. When the block does not fade the
// function is constant, so the common case stays branch-free in the loop.
func (d *Driver) Drive(block uint64, callback func(gain func(i int) float32)) {
	if d.fader.isFading(block) {
		start := d.fader.valueAt(block)
		end := d.fader.valueAt(block + 1)
		step := (end - start) / float32(config.BlockSize)
		callback(func(i int) float32 {
			return start + step*float32(i)
		})
		return
	}
	value := d.fader.valueAt(block)
	callback(func(int) float32 {
		return value
	})
}

// Value returns the instantaneous value at the start of the given block.
func (d *Driver) Value(block uint64) float32 {
	return d.fader.valueAt(block)
}

// IsActiveAt reports whether the block at the given time is audible above
// threshold or still crossfading.
func (d *Driver) IsActiveAt(block uint64, threshold float32) bool {
	return d.fader.isFading(block) ||
		d.fader.valueAt(block) > threshold ||
		d.fader.valueAt(block+1) > threshold
}

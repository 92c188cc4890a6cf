// Package resample converts interleaved PCM between sample rates using
// Catmull-Rom cubic interpolation.
//
// The API is output-driven: Prepare asks for the exact input needed to
// produce a block of output, Out consumes it. This lets the streaming path
// land exactly one block in each ring slot regardless of the source rate.
package resample

// Resampler converts between two fixed rates. Not safe for concurrent use.
type Resampler struct {
	ratio    float64 // source frames per output frame
	channels int

	// window holds history frames followed by the most recent input, in
	// interleaved layout. pos points at the frame the next output
	// interpolates around and always stays >= 1 so a full 4-frame
	// neighborhood exists.
	window []float32
	frames int
	pos    float64

	in []float32
}

// New returns a resampler from srcRate to dstRate for the given channel
// count.
func New(srcRate, dstRate, channels int) *Resampler {
	r := &Resampler{
		ratio:    float64(srcRate) / float64(dstRate),
		channels: channels,
	}
	// One zero frame of priming keeps the interpolation window in range
	// at the very start of the stream.
	r.window = make([]float32, channels)
	r.frames = 1
	r.pos = 1
	return r
}

// Prepare returns a buffer for the input frames required to produce
// outFrames output frames. The buffer may be empty when enough history is
// already windowed. Fill it completely (or partially at end of stream)
// and pass the filled frame count to Out.
func (r *Resampler) Prepare(outFrames int) []float32 {
	lastPos := r.pos + float64(outFrames-1)*r.ratio
	needTotal := int(lastPos) + 3 // frames 0..floor(lastPos)+2
	needed := needTotal - r.frames
	if needed < 0 {
		needed = 0
	}
	if cap(r.in) < needed*r.channels {
		r.in = make([]float32, needed*r.channels)
	}
	r.in = r.in[:needed*r.channels]
	return r.in
}

// Out consumes gotFrames frames of the prepared input and writes up to
// outFrames interpolated frames into dst, returning the count produced.
// A short return means the source ended.
func (r *Resampler) Out(dst []float32, gotFrames, outFrames int) int {
	r.window = append(r.window, r.in[:gotFrames*r.channels]...)
	r.frames += gotFrames

	produced := 0
	for produced < outFrames {
		i := int(r.pos)
		if i+2 >= r.frames {
			break
		}
		x := float32(r.pos - float64(i))
		for ch := 0; ch < r.channels; ch++ {
			y0 := r.window[(i-1)*r.channels+ch]
			y1 := r.window[i*r.channels+ch]
			y2 := r.window[(i+1)*r.channels+ch]
			y3 := r.window[(i+2)*r.channels+ch]
			dst[produced*r.channels+ch] = cubicInterpolate(y0, y1, y2, y3, x)
		}
		r.pos += r.ratio
		produced++
	}

	// Slide the window, keeping one frame of history before pos.
	keepFrom := int(r.pos) - 1
	if keepFrom > 0 {
		if keepFrom > r.frames {
			keepFrom = r.frames
		}
		n := copy(r.window, r.window[keepFrom*r.channels:r.frames*r.channels])
		r.window = r.window[:n]
		r.frames -= keepFrom
		r.pos -= float64(keepFrom)
	}
	return produced
}

// Reset discards windowed history, e.g. after a seek.
func (r *Resampler) Reset() {
	r.window = r.window[:r.channels]
	for i := range r.window {
		r.window[i] = 0
	}
	r.frames = 1
	r.pos = 1
}

// cubicInterpolate evaluates a Catmull-Rom spline at fractional position x
// between y1 and y2.
func cubicInterpolate(y0, y1, y2, y3, x float32) float32 {
	a0 := -0.5*y0 + 1.5*y1 - 1.5*y2 + 0.5*y3
	a1 := y0 - 2.5*y1 + 2*y2 - 0.5*y3
	a2 := -0.5*y0 + 0.5*y2
	a3 := y1
	return a0*x*x*x + a1*x*x + a2*x + a3
}

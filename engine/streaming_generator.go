package engine

import (
	"errors"
	"io"
	"math"
	"sync"
	"sync/atomic"

	"github.com/dudk/resound"
	"github.com/dudk/resound/config"
	"github.com/dudk/resound/decode"
	"github.com/dudk/resound/fade"
	"github.com/dudk/resound/log"
	"github.com/dudk/resound/property"
	"github.com/dudk/resound/resample"
	"github.com/dudk/resound/ring"
)

// StreamingGenerator plays decoded audio through a bounded ring kept full
// by a dedicated goroutine, so a slow or blocking decoder can never stall
// the render loop. The two sides meet only at the ring and two atomic
// cells: a single-slot seek request and a position report.
type StreamingGenerator struct {
	generatorBase
	position property.Double
	looping  property.Int

	src      decode.Source
	channels int
	buf      *ring.Ring
	tmp      []float32

	// seekRequest holds the float64 bits of a pending seek; NaN means no
	// request.
	seekRequest        atomic.Uint64
	backgroundPosition atomic.Uint64

	stopOnce sync.Once
	done     chan struct{}
}

// CreateStreamingGenerator opens protocol://path and starts its decoder
// goroutine.
func CreateStreamingGenerator(ctxHandle resound.Handle, protocol, path, options string) (resound.Handle, error) {
	ctx, err := lookupContext(ctxHandle)
	if err != nil {
		return 0, err
	}
	src, err := decode.OpenProtocol(protocol, path, options)
	if err != nil {
		return 0, err
	}
	return exposeStreaming(ctx, src)
}

// CreateStreamingGeneratorFromSource wraps an already-open source; the
// generator takes ownership.
func CreateStreamingGeneratorFromSource(ctxHandle resound.Handle, src decode.Source) (resound.Handle, error) {
	ctx, err := lookupContext(ctxHandle)
	if err != nil {
		return 0, err
	}
	return exposeStreaming(ctx, src)
}

func exposeStreaming(ctx *Context, src decode.Source) (resound.Handle, error) {
	channels := src.Channels()
	if channels == 0 || channels > config.MaxChannels {
		src.Close()
		return 0, resound.ErrRange
	}
	g := &StreamingGenerator{
		src:      src,
		channels: channels,
		buf:      ring.New(config.StreamRingFrames * channels),
		tmp:      make([]float32, config.BlockSize*channels),
		done:     make(chan struct{}),
	}
	g.initGenerator(ctx)
	g.position.Init(0)
	g.looping.Init(0)
	g.seekRequest.Store(math.Float64bits(math.NaN()))
	go g.backgroundLoop()
	h, err := expose(g)
	if err != nil {
		g.stop()
		return 0, err
	}
	return h, nil
}

func (g *StreamingGenerator) ObjectType() ObjectType {
	return ObjectTypeStreamingGenerator
}

func (g *StreamingGenerator) property(p Property) (interface{}, bool) {
	switch p {
	case PropGain:
		return &g.gain.prop, true
	case PropPlaybackPosition:
		return &g.position, true
	case PropLooping:
		return &g.looping, true
	}
	return nil, false
}

func (g *StreamingGenerator) Channels() int {
	return g.channels
}

func (g *StreamingGenerator) finalize() {
	g.stop()
}

func (g *StreamingGenerator) stop() {
	g.stopOnce.Do(func() {
		g.buf.Close()
		<-g.done
		g.src.Close()
	})
}

func (g *StreamingGenerator) generateBlock(out []float32, driver *fade.Driver) {
	// Forward a control-side seek to the decoder goroutine. Looping
	// needs no forwarding: the decoder reads the property's atomic
	// shadow directly.
	if newPos, changed := g.position.Acquire(); changed {
		g.seekRequest.Store(math.Float64bits(newPos))
	}

	got := g.buf.Read(g.tmp)
	gotFrames := got / g.channels
	driver.Drive(g.ctx.blockTime, func(gain func(i int) float32) {
		for i := 0; i < gotFrames; i++ {
			gv := gain(i)
			for ch := 0; ch < g.channels; ch++ {
				out[i*g.channels+ch] += gv * g.tmp[i*g.channels+ch]
			}
		}
	})
	// The shortfall on underrun stays silent; out is additive and was
	// zeroed by the host.

	g.position.Report(math.Float64frombits(g.backgroundPosition.Load()))
}

// takeSeek consumes a pending seek request.
func (g *StreamingGenerator) takeSeek() (float64, bool) {
	bits := g.seekRequest.Swap(math.Float64bits(math.NaN()))
	v := math.Float64frombits(bits)
	return v, !math.IsNaN(v)
}

// backgroundLoop keeps the ring full, one block per iteration. It may
// block on decoder I/O and on ring space; never on anything the render
// loop holds.
func (g *StreamingGenerator) backgroundLoop() {
	defer close(g.done)

	var rs *resample.Resampler
	if g.src.SampleRate() != config.SR {
		rs = resample.New(g.src.SampleRate(), config.SR, g.channels)
	}
	seeker, _ := g.src.(decode.Seeker)
	position := 0.0
	// justLooped guards against a seek-to-zero that yields no data
	// looping forever on an empty stream: after such a seek, no further
	// seek happens until a read returns samples.
	justLooped := false

	for {
		if pos, ok := g.takeSeek(); ok && seeker != nil {
			if err := seeker.SeekSeconds(pos); err != nil {
				log.GetLogger().Error("streaming seek failed: ", err)
			} else {
				position = pos
				if rs != nil {
					rs.Reset()
				}
				justLooped = false
			}
		}

		first, _ := g.buf.BeginWrite(config.BlockSize * g.channels)
		if first == nil {
			return
		}
		if rs == nil {
			position = g.fillFromSource(first, config.BlockSize, position, seeker, &justLooped)
		} else {
			in := rs.Prepare(config.BlockSize)
			needed := len(in) / g.channels
			position = g.fillFromSource(in, needed, position, seeker, &justLooped)
			produced := rs.Out(first, needed, config.BlockSize)
			zero(first[produced*g.channels:])
		}
		g.backgroundPosition.Store(math.Float64bits(position))
		g.buf.EndWrite(config.BlockSize * g.channels)
	}
}

// fillFromSource decodes frames frames into dst, wrapping at end of
// stream when looping, zero-padding otherwise. Returns the new position
// in seconds. Decoders do not track position, so it is book-kept here
// from the frames they deliver.
func (g *StreamingGenerator) fillFromSource(dst []float32, frames int, position float64, seeker decode.Seeker, justLooped *bool) float64 {
	nativeSR := float64(g.src.SampleRate())
	needed := frames
	cursor := 0
	for needed > 0 {
		n, err := g.src.ReadSamples(dst[cursor : cursor+needed*g.channels])
		if err != nil && n == 0 && !errors.Is(err, io.EOF) {
			log.GetLogger().Error("decoder error, recovering: ", err)
		}
		gotFrames := n / g.channels
		cursor += gotFrames * g.channels
		needed -= gotFrames
		position += float64(gotFrames) / nativeSR
		if gotFrames > 0 {
			*justLooped = false
		}
		if needed > 0 && !*justLooped && g.looping.Load() != 0 && seeker != nil {
			if err := seeker.SeekSeconds(0); err != nil {
				log.GetLogger().Error("loop seek failed: ", err)
				break
			}
			*justLooped = true
			position = 0
			continue
		}
		break
	}
	zero(dst[cursor : frames*g.channels])
	return position
}

func zero(buf []float32) {
	for i := range buf {
		buf[i] = 0
	}
}

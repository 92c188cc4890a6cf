package engine

import (
	"fmt"

	"github.com/dudk/resound"
	"github.com/dudk/resound/buffer"
	"github.com/dudk/resound/decode"
	"github.com/dudk/resound/fade"
	"github.com/dudk/resound/log"
)

// Generator produces one block of up to MaxChannels channels. Generators
// add into their output and respect the fade driver they are handed; they
// never overwrite.
type Generator interface {
	Object
	// Channels the generator wants to output next block. Hosts re-read
	// this every block.
	Channels() int
	generateBlock(out []float32, driver *fade.Driver)
	base() *generatorBase
}

// generatorBase is the shared half of every generator: context
// back-pointer (non-owning, the graph outlives it by shutdown order) and
// the fused gain/pause control.
type generatorBase struct {
	baseObject
	ctx  *Context
	gain gainControl
}

func (g *generatorBase) initGenerator(ctx *Context) {
	g.initObject()
	g.ctx = ctx
	g.gain.init()
}

func (g *generatorBase) base() *generatorBase {
	return g
}

func (g *generatorBase) propContext() *Context {
	return g.ctx
}

func (g *generatorBase) pauseControl() *gainControl {
	return &g.gain
}

// runGenerator ticks the gain control and renders one block. Render loop
// only.
func runGenerator(g Generator, out []float32) {
	b := g.base()
	b.gain.tick(b.ctx.blockTime)
	g.generateBlock(out, b.gain.driver)
}

// Buffer wraps decoded PCM as a handle-referenced object.
type Buffer struct {
	baseObject
	data *buffer.Buffer
}

func (b *Buffer) ObjectType() ObjectType {
	return ObjectTypeBuffer
}

// Data exposes the underlying immutable sample storage.
func (b *Buffer) Data() *buffer.Buffer {
	return b.data
}

// CreateBufferFromStream decodes protocol://path fully into a buffer.
func CreateBufferFromStream(protocol, path, options string) (resound.Handle, error) {
	src, err := decode.OpenProtocol(protocol, path, options)
	if err != nil {
		return 0, err
	}
	defer src.Close()
	return CreateBufferFromSource(src)
}

// CreateBufferFromSource decodes an already-open source fully into a
// buffer. The caller keeps ownership of src.
func CreateBufferFromSource(src decode.Source) (resound.Handle, error) {
	data, err := buffer.FromSource(src)
	if err != nil {
		return 0, err
	}
	b := &Buffer{data: data}
	b.initObject()
	h, err := expose(b)
	if err != nil {
		return 0, err
	}
	log.GetLogger().Debug("buffer created: ", b.id, " frames=", data.Len())
	return h, nil
}

// BufferGetChannels returns the channel count of a buffer.
func BufferGetChannels(h resound.Handle) (int, error) {
	b, err := lookupBuffer(h)
	if err != nil {
		return 0, err
	}
	return b.data.Channels(), nil
}

// BufferGetLengthSamples returns the buffer length in frames.
func BufferGetLengthSamples(h resound.Handle) (int, error) {
	b, err := lookupBuffer(h)
	if err != nil {
		return 0, err
	}
	return b.data.Len(), nil
}

// BufferGetLengthSeconds returns the buffer length in seconds.
func BufferGetLengthSeconds(h resound.Handle) (float64, error) {
	b, err := lookupBuffer(h)
	if err != nil {
		return 0, err
	}
	return b.data.Duration().Seconds(), nil
}

func lookupBuffer(h resound.Handle) (*Buffer, error) {
	obj, err := lookup(h)
	if err != nil {
		return nil, err
	}
	b, ok := obj.(*Buffer)
	if !ok {
		return nil, fmt.Errorf("%w: not a buffer", resound.ErrInvalidHandle)
	}
	return b, nil
}

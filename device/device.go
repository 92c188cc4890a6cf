// Package device plays rendered blocks on the default output via
// portaudio. The render callback runs on a dedicated high-priority
// goroutine owned by this package; everything upstream treats it as the
// audio thread.
package device

import (
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/dudk/resound/log"
)

// Output is a running audio output. Close stops the stream and joins the
// render goroutine.
type Output interface {
	Close() error
}

type output struct {
	stream *portaudio.Stream
	buf    []float32
	done   chan struct{}
	stop   chan struct{}
	fatal  bool
	once   sync.Once
}

// Open starts the default output device and begins pulling blocks from
// render, which receives an interleaved buffer of blockSize*channels
// samples to fill. onFatal, if non-nil, runs once if the device is lost;
// the owner uses it to tear the context down.
func Open(channels, sampleRate, blockSize int, render func([]float32), onFatal func()) (Output, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, err
	}
	o := &output{
		buf:  make([]float32, blockSize*channels),
		done: make(chan struct{}),
		stop: make(chan struct{}),
	}
	stream, err := portaudio.OpenDefaultStream(0, channels, float64(sampleRate), blockSize, &o.buf)
	if err != nil {
		portaudio.Terminate()
		return nil, err
	}
	o.stream = stream
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, err
	}
	go func() {
		o.loop(render)
		close(o.done)
		if o.fatal && onFatal != nil {
			onFatal()
		}
	}()
	return o, nil
}

func (o *output) loop(render func([]float32)) {
	for {
		select {
		case <-o.stop:
			return
		default:
		}
		render(o.buf)
		if err := o.stream.Write(); err != nil {
			// Underflow recovers by itself; anything else means the
			// device is gone.
			if err == portaudio.OutputUnderflowed {
				log.GetLogger().Debug("output underflow")
				continue
			}
			log.GetLogger().Error("device lost: ", err)
			o.fatal = true
			return
		}
	}
}

func (o *output) Close() error {
	var err error
	o.once.Do(func() {
		close(o.stop)
		<-o.done
		err = o.stream.Stop()
		if cerr := o.stream.Close(); err == nil {
			err = cerr
		}
		if terr := portaudio.Terminate(); err == nil {
			err = terr
		}
	})
	return err
}

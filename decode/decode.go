// Package decode turns byte streams into PCM sample sources.
//
// Format support lives in subpackages (wav, aiff, mp3, vorbis), which
// register themselves the way image formats do: import the package, get
// the format. Selection first honors the path extension, then falls back
// to trying every registered format against the stream.
package decode

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dudk/resound"
	"github.com/dudk/resound/stream"
)

// Source produces interleaved float32 samples in [-1, 1].
type Source interface {
	// SampleRate of the PCM stream in Hz.
	SampleRate() int
	// Channels count (1 = mono, 2 = stereo).
	Channels() int
	// ReadSamples fills dst and returns the number of float32 values
	// written, a multiple of Channels. n == 0 with io.EOF means the
	// stream is finished.
	ReadSamples(dst []float32) (n int, err error)
	// Close releases the source and its underlying stream.
	Close() error
}

// Seeker is implemented by sources that can reposition.
type Seeker interface {
	// SeekSeconds moves the read cursor to the given time.
	SeekSeconds(seconds float64) error
}

// CanSeek reports whether src supports repositioning.
func CanSeek(src Source) bool {
	_, ok := src.(Seeker)
	return ok
}

// Opener constructs a Source from a seekable stream positioned at the
// start. On failure the stream may be left at any position.
type Opener func(s stream.SeekableStream) (Source, error)

type format struct {
	name       string
	extensions []string
	open       Opener
}

var (
	formatsMu sync.RWMutex
	formats   []format
)

// RegisterFormat adds a decodable format. Called from format subpackage
// init functions.
func RegisterFormat(name string, extensions []string, open Opener) {
	formatsMu.Lock()
	defer formatsMu.Unlock()
	formats = append(formats, format{name: name, extensions: extensions, open: open})
}

// Open decodes the stream, using the path hint's extension to pick the
// format and falling back to trying all of them.
func Open(s stream.SeekableStream, hint string) (Source, error) {
	formatsMu.RLock()
	candidates := make([]format, len(formats))
	copy(candidates, formats)
	formatsMu.RUnlock()

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(hint), "."))
	if ext != "" {
		for _, f := range candidates {
			for _, e := range f.extensions {
				if e != ext {
					continue
				}
				src, err := f.open(s)
				if err == nil {
					return src, nil
				}
				if _, serr := s.Seek(0, io.SeekStart); serr != nil {
					return nil, fmt.Errorf("%w: %v", resound.ErrByteStream, serr)
				}
			}
		}
	}
	for _, f := range candidates {
		src, err := f.open(s)
		if err == nil {
			return src, nil
		}
		if _, serr := s.Seek(0, io.SeekStart); serr != nil {
			return nil, fmt.Errorf("%w: %v", resound.ErrByteStream, serr)
		}
	}
	return nil, fmt.Errorf("%w: no decoder accepted %q", resound.ErrDecoding, s.Name())
}

// OpenProtocol is the engine-facing entry: acquire the byte stream, make
// it seekable, decode it.
func OpenProtocol(protocol, path, options string) (Source, error) {
	s, err := stream.Open(protocol, path, options)
	if err != nil {
		return nil, err
	}
	src, err := Open(stream.EnsureSeekable(s), path)
	if err != nil {
		s.Close()
		return nil, err
	}
	return src, nil
}

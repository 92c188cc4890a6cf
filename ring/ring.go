// Package ring implements a single-producer single-consumer ring of float32
// samples, modelled after the DirectSound lock-and-commit API: callers ask
// for a span and receive up to two segments (two when the span wraps the end
// of the ring), write or read them, then commit.
//
// The write side may block until the reader frees space; the read side never
// blocks. This matches the streaming generator's split: a background decoder
// goroutine keeps the ring full while the render loop drains it without
// ever waiting.
package ring

import "sync/atomic"

// Ring is an SPSC sample ring. The zero value is not usable; use New.
type Ring struct {
	data []float32

	// writePointer and readPointer are owned by their respective sides.
	writePointer int
	readPointer  int

	samplesInBuffer  atomic.Int64
	pendingWriteSize int
	pendingReadSize  int

	// readEnd is an auto-reset event: the reader signals after freeing
	// space, the writer waits on it when the ring is full.
	readEnd chan struct{}
	closed  atomic.Bool
}

// New returns a ring holding n samples, zero-filled.
func New(n int) *Ring {
	if n <= 0 {
		panic("ring: size must be positive")
	}
	return &Ring{
		data:    make([]float32, n),
		readEnd: make(chan struct{}, 1),
	}
}

// Size returns the ring capacity in samples.
func (r *Ring) Size() int {
	return len(r.data)
}

// Available returns the number of readable samples.
func (r *Ring) Available() int {
	return int(r.samplesInBuffer.Load())
}

// Close unblocks a writer waiting in BeginWrite. After Close, a BeginWrite
// that finds too little free space returns nil segments instead of
// waiting; one that finds enough space still returns segments.
func (r *Ring) Close() {
	if r.closed.CompareAndSwap(false, true) {
		select {
		case r.readEnd <- struct{}{}:
		default:
		}
	}
}

// Closed reports whether Close has been called.
func (r *Ring) Closed() bool {
	return r.closed.Load()
}

// BeginWrite reserves requested samples for writing, blocking until the
// reader has freed enough space. The second segment is non-nil only when
// the reservation wraps the end of the ring: if every write requests the
// same size, that size divides the ring size and writes are always fully
// committed, the second segment is never needed. Returns nil segments if
// the ring is closed while waiting.
func (r *Ring) BeginWrite(requested int) (first, second []float32) {
	if requested <= 0 || requested > len(r.data) {
		panic("ring: bad write request")
	}
	for {
		available := len(r.data) - int(r.samplesInBuffer.Load())
		if available >= requested {
			break
		}
		if r.closed.Load() {
			return nil, nil
		}
		<-r.readEnd
	}

	r.pendingWriteSize = requested
	size1 := min(len(r.data)-r.writePointer, requested)
	first = r.data[r.writePointer : r.writePointer+size1]
	if size1 == requested {
		return first, nil
	}
	return first, r.data[:requested-size1]
}

// EndWrite commits n written samples. Writes may be committed in chunks.
func (r *Ring) EndWrite(n int) {
	if n > r.pendingWriteSize {
		panic("ring: commit exceeds reservation")
	}
	r.writePointer = (r.writePointer + n) % len(r.data)
	r.pendingWriteSize -= n
	r.samplesInBuffer.Add(int64(n))
}

// BeginRead reserves up to requested samples for reading without blocking.
// If fewer than requested samples are buffered, it returns what is there;
// the caller zero-fills the shortfall. Nil segments mean the ring is empty.
func (r *Ring) BeginRead(requested int) (first, second []float32) {
	if requested <= 0 || requested > len(r.data) {
		panic("ring: bad read request")
	}
	available := int(r.samplesInBuffer.Load())
	if available == 0 {
		return nil, nil
	}
	allocating := min(available, requested)
	r.pendingReadSize = allocating
	size1 := min(allocating, len(r.data)-r.readPointer)
	first = r.data[r.readPointer : r.readPointer+size1]
	if size1 == allocating {
		return first, nil
	}
	return first, r.data[:allocating-size1]
}

// EndRead commits n consumed samples and wakes a blocked writer.
func (r *Ring) EndRead(n int) {
	if n > r.pendingReadSize {
		panic("ring: commit exceeds reservation")
	}
	r.readPointer = (r.readPointer + n) % len(r.data)
	r.pendingReadSize -= n
	r.samplesInBuffer.Add(int64(-n))
	select {
	case r.readEnd <- struct{}{}:
	default:
	}
}

// Read copies up to len(dst) samples into dst and returns the count. This
// is the render-loop entry point: one call per block, never blocking.
func (r *Ring) Read(dst []float32) int {
	first, second := r.BeginRead(len(dst))
	if first == nil {
		return 0
	}
	n := copy(dst, first)
	n += copy(dst[n:], second)
	r.EndRead(n)
	return n
}

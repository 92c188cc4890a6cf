// Package engine wires generators, sources, effects and routing into a
// realtime context and exposes the public control API.
//
// The control surface follows a handle convention: every live object is
// referenced by an opaque handle, calls validate and return errors without
// mutating state on failure, and all realtime mutation flows through the
// per-context command queue.
package engine

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dudk/resound"
	"github.com/dudk/resound/log"
)

// ObjectType tags every engine object.
type ObjectType int

const (
	ObjectTypeContext ObjectType = iota
	ObjectTypeBuffer
	ObjectTypeBufferGenerator
	ObjectTypeStreamingGenerator
	ObjectTypeNoiseGenerator
	ObjectTypeSourceDirect
	ObjectTypeSourcePanned
	ObjectTypeSource3D
	ObjectTypeGlobalEcho
	ObjectTypeGlobalFdnReverb
)

// Object is anything a handle can reference.
type Object interface {
	ObjectType() ObjectType
	refCounter() *atomic.Int32
	// finalize runs on the deletion goroutine once every reference is
	// gone.
	finalize()
}

// baseObject carries identity and shared ownership. Objects start with one
// reference, owned by the handle table.
type baseObject struct {
	id   string
	refs atomic.Int32
}

func (b *baseObject) initObject() {
	b.id = resound.NewUID()
	b.refs.Store(1)
}

func (b *baseObject) refCounter() *atomic.Int32 {
	return &b.refs
}

func (b *baseObject) finalize() {}

// retain takes a reference on behalf of an internal owner (a source
// holding a generator, a command in flight).
func retain(o Object) {
	o.refCounter().Add(1)
}

// release drops a reference. The final drop defers finalization to the
// deletion goroutine so destructors never run on the render loop.
func release(o Object) {
	if o.refCounter().Add(-1) == 0 {
		scheduleDeletion(o.finalize)
	}
}

var (
	stateMu     sync.RWMutex
	initialized bool
	handles     map[resound.Handle]Object
	nextHandle  resound.Handle
	contexts    []*Context
)

// Initialize prepares process-wide state: the handle table and the
// deletion goroutine. Exactly one initialization may be live at a time.
func Initialize() error {
	stateMu.Lock()
	defer stateMu.Unlock()
	if initialized {
		return resound.ErrAlreadyInitialized
	}
	handles = make(map[resound.Handle]Object)
	nextHandle = 0
	startDeletion()
	initialized = true
	log.GetLogger().Debug("engine initialized")
	return nil
}

// Shutdown tears down every context, invalidates all handles and stops
// the deletion goroutine.
func Shutdown() error {
	stateMu.Lock()
	if !initialized {
		stateMu.Unlock()
		return resound.ErrNotInitialized
	}
	ctxs := contexts
	contexts = nil
	stale := handles
	handles = nil
	initialized = false
	stateMu.Unlock()

	for _, ctx := range ctxs {
		ctx.shutdown()
	}
	for _, obj := range stale {
		release(obj)
	}
	stopDeletion()
	log.GetLogger().Debug("engine shut down")
	return nil
}

// expose registers obj in the handle table, transferring the initial
// reference to it.
func expose(obj Object) (resound.Handle, error) {
	stateMu.Lock()
	defer stateMu.Unlock()
	if !initialized {
		return 0, resound.ErrNotInitialized
	}
	nextHandle++
	h := nextHandle
	handles[h] = obj
	return h, nil
}

func lookup(h resound.Handle) (Object, error) {
	stateMu.RLock()
	defer stateMu.RUnlock()
	if !initialized {
		return nil, resound.ErrNotInitialized
	}
	obj, ok := handles[h]
	if !ok {
		return nil, fmt.Errorf("%w: %d", resound.ErrInvalidHandle, h)
	}
	return obj, nil
}

// HandleFree drops the external reference. The object stays alive while
// the audio graph still holds it and is finalized off the render loop.
func HandleFree(h resound.Handle) error {
	stateMu.Lock()
	if !initialized {
		stateMu.Unlock()
		return resound.ErrNotInitialized
	}
	obj, ok := handles[h]
	if !ok {
		stateMu.Unlock()
		return fmt.Errorf("%w: %d", resound.ErrInvalidHandle, h)
	}
	delete(handles, h)
	stateMu.Unlock()
	release(obj)
	return nil
}

// ConfigureLoggingBackend redirects engine logging. Kind selects the
// backend: "stderr" (target ignored) or "file" with target as path.
func ConfigureLoggingBackend(kind, target string) error {
	return configureLogging(kind, target)
}

// SetLogLevel adjusts the logging threshold, e.g. "debug" or "error".
func SetLogLevel(level string) error {
	return log.SetLevel(level)
}

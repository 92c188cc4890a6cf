package engine

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/dudk/resound"
	"github.com/dudk/resound/command"
	"github.com/dudk/resound/log"
)

// The deletion goroutine exists so that dropping the last reference to an
// object never runs teardown on the render loop: the loop posts the
// finalizer here through a lock-free queue and moves on.

const deletionQueueDepth = 4096

var (
	deletionQueue *command.Queue
	deletionStop  chan struct{}
	deletionDone  chan struct{}
)

func startDeletion() {
	deletionQueue = command.NewQueue(deletionQueueDepth)
	deletionStop = make(chan struct{})
	deletionDone = make(chan struct{})
	go deletionLoop(deletionQueue, deletionStop, deletionDone)
}

func stopDeletion() {
	close(deletionStop)
	<-deletionDone
	deletionQueue = nil
}

func scheduleDeletion(fn func()) {
	q := deletionQueue
	if q == nil {
		// Engine already shut down; nothing realtime is running, safe to
		// finalize inline.
		fn()
		return
	}
	if !q.TryPush(command.Command{Apply: fn}) {
		// The queue is deep enough that this only happens under
		// pathological churn, and then only control threads land here.
		q.Push(command.Command{Apply: fn})
	}
}

func deletionLoop(q *command.Queue, stop, done chan struct{}) {
	defer close(done)
	for {
		cmd, ok := q.Pop()
		if ok {
			runFinalizer(cmd.Apply)
			continue
		}
		select {
		case <-stop:
			// Drain whatever arrived before shutdown.
			for {
				cmd, ok := q.Pop()
				if !ok {
					return
				}
				runFinalizer(cmd.Apply)
			}
		case <-time.After(time.Millisecond):
		}
	}
}

func runFinalizer(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.GetLogger().Error("finalizer panicked: ", r)
		}
	}()
	fn()
}

var loggingMu sync.Mutex

func configureLogging(kind, target string) error {
	loggingMu.Lock()
	defer loggingMu.Unlock()
	switch kind {
	case "stderr", "":
		log.SetOutput(os.Stderr)
		return nil
	case "file":
		f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return err
		}
		log.SetOutput(f)
		return nil
	default:
		return fmt.Errorf("%w: unknown logging backend %q", resound.ErrRange, kind)
	}
}

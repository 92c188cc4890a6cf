// Package command delivers control-thread mutations into the render loop.
//
// The queue is a bounded multiple-producer single-consumer ring with
// sequence-stamped cells. Producers spin briefly when the queue is full
// (the control side may block); the consumer never waits and drains a
// bounded number of commands per block. Cells are allocated once at
// construction, so the render loop touches no allocator.
package command

import (
	"runtime"
	"sync/atomic"
)

// Command is one unit of work executed at a block boundary on the render
// loop.
type Command struct {
	// Apply runs on the render loop. It must not allocate, lock or block.
	Apply func()
	// Release, if set, is handed to the deletion goroutine after Apply so
	// that dropping the command's references never runs on the render
	// loop.
	Release func()
}

type cell struct {
	sequence atomic.Uint64
	cmd      Command
}

// Queue is a bounded MPSC command queue.
type Queue struct {
	cells   []cell
	mask    uint64
	enqueue atomic.Uint64
	dequeue uint64
}

// NewQueue returns a queue with the given capacity, rounded up to a power
// of two.
func NewQueue(capacity int) *Queue {
	n := uint64(1)
	for n < uint64(capacity) {
		n <<= 1
	}
	q := &Queue{
		cells: make([]cell, n),
		mask:  n - 1,
	}
	for i := range q.cells {
		q.cells[i].sequence.Store(uint64(i))
	}
	return q
}

// Push enqueues cmd, spinning while the queue is full. Callable from any
// control thread.
func (q *Queue) Push(cmd Command) {
	for {
		if q.TryPush(cmd) {
			return
		}
		runtime.Gosched()
	}
}

// TryPush enqueues cmd if there is room and reports whether it did.
func (q *Queue) TryPush(cmd Command) bool {
	for {
		pos := q.enqueue.Load()
		c := &q.cells[pos&q.mask]
		seq := c.sequence.Load()
		switch {
		case seq == pos:
			if q.enqueue.CompareAndSwap(pos, pos+1) {
				c.cmd = cmd
				c.sequence.Store(pos + 1)
				return true
			}
		case seq < pos:
			// The cell from one lap ago has not been consumed: full.
			return false
		default:
			// Lost a race; another producer claimed this cell.
		}
	}
}

// Pop dequeues one command. Single consumer only.
func (q *Queue) Pop() (Command, bool) {
	pos := q.dequeue
	c := &q.cells[pos&q.mask]
	seq := c.sequence.Load()
	if seq != pos+1 {
		return Command{}, false
	}
	cmd := c.cmd
	c.cmd = Command{}
	c.sequence.Store(pos + q.mask + 1)
	q.dequeue = pos + 1
	return cmd, true
}

// Drain pops and returns up to limit commands into dst, reusing its
// backing storage. Single consumer only.
func (q *Queue) Drain(dst []Command, limit int) []Command {
	dst = dst[:0]
	for len(dst) < limit {
		cmd, ok := q.Pop()
		if !ok {
			break
		}
		dst = append(dst, cmd)
	}
	return dst
}

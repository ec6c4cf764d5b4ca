// Package guard serializes work through a single FIFO worker.
package guard

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrQueueClosed is returned by Do after Close.
var ErrQueueClosed = errors.New("guard queue is closed")

type job struct {
	fn   func() error
	done chan error
}

// Queue runs submitted jobs one at a time in submission order.
// A failing or panicking job resolves only its own caller.
type Queue struct {
	jobs     chan job
	mu       sync.RWMutex
	closed   bool
	finished chan struct{}
}

// NewQueue starts the worker. backlog bounds the number of jobs waiting to run.
func NewQueue(backlog int) *Queue {
	if backlog < 1 {
		backlog = 1
	}
	q := &Queue{
		jobs:     make(chan job, backlog),
		finished: make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *Queue) run() {
	defer close(q.finished)
	for j := range q.jobs {
		j.done <- execute(j.fn)
	}
}

func execute(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("guarded job panicked: %v", r)
		}
	}()
	return fn()
}

// Do enqueues fn and waits for its result. Once queued the job always runs, even if ctx is
// cancelled while waiting; cancellation only stops the caller from waiting for a free slot.
func (q *Queue) Do(ctx context.Context, fn func() error) error {
	j := job{fn: fn, done: make(chan error, 1)}

	q.mu.RLock()
	if q.closed {
		q.mu.RUnlock()
		return ErrQueueClosed
	}
	select {
	case q.jobs <- j:
		q.mu.RUnlock()
	case <-ctx.Done():
		q.mu.RUnlock()
		return ctx.Err()
	}
	return <-j.done
}

// Close stops accepting jobs and waits for queued ones to finish.
func (q *Queue) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	q.mu.Unlock()
	<-q.finished
}

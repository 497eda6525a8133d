// Package queue provides the single-worker execution queue that gives every
// store its ordering guarantee.
package queue

import (
	"sync"

	feed "github.com/eugener/feedcache/internal"
)

// Queue runs submitted jobs one at a time, in submission order, on a single
// dedicated goroutine. Submit never waits for earlier jobs to finish.
type Queue struct {
	mu      sync.Mutex
	pending []func()
	closed  bool
	wake    chan struct{}
	done    chan struct{}
}

// New starts a queue worker.
func New() *Queue {
	q := &Queue{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go q.run()
	return q
}

// Submit enqueues job. It returns feed.ErrStoreClosed after Close.
func (q *Queue) Submit(job func()) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return feed.ErrStoreClosed
	}
	q.pending = append(q.pending, job)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return nil
}

// Len returns the number of jobs waiting to run.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Close rejects new jobs, waits for queued jobs to run, then stops the worker.
// Close is safe to call more than once.
func (q *Queue) Close() {
	q.mu.Lock()
	already := q.closed
	q.closed = true
	q.mu.Unlock()

	if !already {
		select {
		case q.wake <- struct{}{}:
		default:
		}
	}
	<-q.done
}

func (q *Queue) run() {
	defer close(q.done)
	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			closed := q.closed
			q.mu.Unlock()
			if closed {
				return
			}
			<-q.wake
			continue
		}
		job := q.pending[0]
		q.pending[0] = nil
		q.pending = q.pending[1:]
		q.mu.Unlock()

		job()
	}
}

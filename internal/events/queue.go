// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package events

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/Thermoquad/acmitm/internal/metrics"
)

// DefaultDepth is the queue capacity used when none is configured.
const DefaultDepth = 10

// ErrClosed is returned when enqueueing to or dequeueing from a closed queue.
var ErrClosed = errors.New("event queue closed")

// Queue is a bounded multi-producer, single-consumer event queue.
type Queue struct {
	ch      chan Event
	done    chan struct{}
	once    sync.Once
	dropped atomic.Uint64
}

// NewQueue creates a queue holding up to depth events.
func NewQueue(depth int) *Queue {
	if depth <= 0 {
		depth = DefaultDepth
	}
	return &Queue{
		ch:   make(chan Event, depth),
		done: make(chan struct{}),
	}
}

// Enqueue blocks until ev is queued, ctx is done or the queue is closed.
// Task-context producers use this.
func (q *Queue) Enqueue(ctx context.Context, ev Event) error {
	select {
	case <-q.done:
		return ErrClosed
	default:
	}

	select {
	case q.ch <- ev:
		metrics.SetQueueDepth(len(q.ch))
		return nil
	case <-q.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryEnqueue queues ev without waiting. A full or closed queue drops the
// event and counts it. Interrupt-context producers use this.
func (q *Queue) TryEnqueue(ev Event) bool {
	select {
	case <-q.done:
		return false
	default:
	}

	select {
	case q.ch <- ev:
		metrics.SetQueueDepth(len(q.ch))
		return true
	default:
		q.dropped.Add(1)
		metrics.RecordDrop()
		return false
	}
}

// Dequeue waits for the next event.
func (q *Queue) Dequeue(ctx context.Context) (Event, error) {
	select {
	case ev := <-q.ch:
		metrics.SetQueueDepth(len(q.ch))
		return ev, nil
	case <-q.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Dropped returns the number of events lost by TryEnqueue.
func (q *Queue) Dropped() uint64 {
	return q.dropped.Load()
}

// Len returns the number of queued events.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Cap returns the queue depth.
func (q *Queue) Cap() int {
	return cap(q.ch)
}

// Close releases blocked producers and the consumer. Events still queued are
// discarded.
func (q *Queue) Close() {
	q.once.Do(func() { close(q.done) })
}

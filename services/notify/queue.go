// Package notify delivers user-facing notifications through a channel drained by a single renderer.
package notify

import (
	"sync"

	"github.com/trezcool/alumni/core"
)

// RenderFunc displays one notification. It is only ever called from the renderer goroutine.
type RenderFunc func(n core.Notification)

type Queue struct {
	ch     chan core.Notification
	done   chan struct{}
	mu     sync.RWMutex
	closed bool
}

var _ core.Notifier = (*Queue)(nil)

// NewQueue starts the renderer goroutine.
func NewQueue(render RenderFunc, buffer int) *Queue {
	q := &Queue{
		ch:   make(chan core.Notification, buffer),
		done: make(chan struct{}),
	}
	go func() {
		defer close(q.done)
		for n := range q.ch {
			render(n)
		}
	}()
	return q
}

// Notify enqueues n; it blocks while the buffer is full. Notifications sent after Close are dropped.
func (q *Queue) Notify(n core.Notification) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return
	}
	q.ch <- n
}

// Close stops accepting notifications and waits for the pending ones to be rendered.
func (q *Queue) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
	q.mu.Unlock()
	<-q.done
}

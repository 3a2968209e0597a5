// Package events implements the typed broadcast bus connecting the feeders to
// the reconciliation engine, along with the message shapes crossing it.
package events

import "sync"

// Topic is a multi-subscriber broadcast channel. Every subscriber receives
// every message published after it attached, in publish order. Publishing
// never blocks: a subscriber that falls behind by more than the topic
// capacity loses its oldest unread messages first.
type Topic[T any] struct {
	mu       sync.RWMutex
	capacity int
	subs     []chan T
}

func NewTopic[T any](capacity int) *Topic[T] {
	if capacity < 1 {
		capacity = 1
	}

	return &Topic[T]{capacity: capacity}
}

// Subscribe attaches a new reader. Messages published before this call are
// not delivered to it.
func (t *Topic[T]) Subscribe() <-chan T {
	t.mu.Lock()
	defer t.mu.Unlock()

	sub := make(chan T, t.capacity)
	t.subs = append(t.subs, sub)

	return sub
}

// Publish delivers msg to all current subscribers without blocking on any of
// them. Lagging readers drop their oldest unread message to admit the new one.
func (t *Topic[T]) Publish(msg T) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, sub := range t.subs {
		select {
		case sub <- msg:
			continue
		default:
		}

		// Full backlog. Evict the oldest entry and retry once; a concurrent
		// reader may have raced us, so the retry must stay non-blocking.
		select {
		case <-sub:
		default:
		}

		select {
		case sub <- msg:
		default:
		}
	}
}

// Drain removes and returns everything currently queued on ch without
// blocking. The reconciliation engine uses this to consume whole backlogs at
// the top of each cycle.
func Drain[T any](ch <-chan T) []T {
	var out []T
	for {
		select {
		case msg := <-ch:
			out = append(out, msg)
		default:
			return out
		}
	}
}

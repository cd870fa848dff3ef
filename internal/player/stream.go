package player

import "sync"

// Stream broadcasts latest-value-wins state updates. Slow subscribers
// never block a publish: a stale buffered value is replaced by the
// newest one. New subscribers are primed with the last published value.
type Stream[T any] struct {
	mu      sync.Mutex
	subs    []chan T
	last    T
	hasLast bool
}

func NewStream[T any]() *Stream[T] {
	return &Stream[T]{}
}

// Publish delivers v to every subscriber, overwriting any undelivered
// previous value.
func (s *Stream[T]) Publish(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = v
	s.hasLast = true
	for _, ch := range s.subs {
		select {
		case ch <- v:
		default:
			// Drop the stale value, then retry once.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- v:
			default:
			}
		}
	}
}

// Subscribe returns a channel carrying state updates. The channel is
// primed with the current value when one exists.
func (s *Stream[T]) Subscribe() <-chan T {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan T, 1)
	if s.hasLast {
		ch <- s.last
	}
	s.subs = append(s.subs, ch)
	return ch
}

// Value returns the last published value, if any.
func (s *Stream[T]) Value() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.hasLast
}

const queueDepth = 16

// Queue broadcasts discrete events with queued delivery. Unlike Stream,
// every event matters; when a subscriber falls more than queueDepth
// events behind, the oldest event is dropped to keep publishers from
// blocking.
type Queue[T any] struct {
	mu   sync.Mutex
	subs []chan T
}

func NewQueue[T any]() *Queue[T] {
	return &Queue[T]{}
}

func (q *Queue[T]) Publish(v T) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, ch := range q.subs {
		select {
		case ch <- v:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- v:
			default:
			}
		}
	}
}

func (q *Queue[T]) Subscribe() <-chan T {
	q.mu.Lock()
	defer q.mu.Unlock()
	ch := make(chan T, queueDepth)
	q.subs = append(q.subs, ch)
	return ch
}

// Package event provides a small multi-subscriber observer list.
package event

import "sync"

// Feed delivers published values to every subscriber, synchronously and in
// subscription order. Handlers run on the publisher's goroutine, so a single
// publishing goroutine preserves event order for all subscribers.
type Feed[T any] struct {
	mu       sync.RWMutex
	nextID   int
	handlers []handler[T]
}

type handler[T any] struct {
	id int
	fn func(T)
}

// Subscribe registers fn and returns a function that removes it.
// The returned function is safe to call more than once.
func (f *Feed[T]) Subscribe(fn func(T)) func() {
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.handlers = append(f.handlers, handler[T]{id: id, fn: fn})
	f.mu.Unlock()

	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		for i, h := range f.handlers {
			if h.id == id {
				f.handlers = append(f.handlers[:i], f.handlers[i+1:]...)
				return
			}
		}
	}
}

// Publish calls every current subscriber with v.
func (f *Feed[T]) Publish(v T) {
	f.mu.RLock()
	handlers := make([]handler[T], len(f.handlers))
	copy(handlers, f.handlers)
	f.mu.RUnlock()

	for _, h := range handlers {
		h.fn(v)
	}
}

// Len returns the number of subscribers.
func (f *Feed[T]) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.handlers)
}

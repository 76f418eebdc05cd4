// Package mysync provides a mutex that owns the value it guards, so that the value can't be reached without holding
// the lock.
package mysync

import (
	"sync"
)

type Mutex[T any] struct {
	mu sync.Mutex
	v  T
}

func NewMutex[T any](v T) *Mutex[T] {
	return &Mutex[T]{v: v}
}

// Do calls fn with the guarded value while holding the lock.
func (mu *Mutex[T]) Do(fn func(v T)) {
	mu.mu.Lock()
	defer mu.mu.Unlock()
	fn(mu.v)
}

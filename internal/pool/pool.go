// Package pool provides a typed wrapper around sync.Pool for objects that can
// be reset between uses, such as the buffers used to encode snapshots.
package pool

import (
	"sync"
)

// Resetter is implemented by objects that can be returned to a clean state.
type Resetter interface {
	Reset()
}

// Pool is a generic pool of objects that implement the Resetter interface.
type Pool[T Resetter] struct {
	pool sync.Pool
}

// New creates a Pool that uses newFn to build objects when the pool is empty.
func New[T Resetter](newFn func() T) *Pool[T] {
	return &Pool[T]{
		pool: sync.Pool{
			New: func() interface{} {
				return newFn()
			},
		},
	}
}

// Get retrieves an object from the pool, creating one if necessary.
func (p *Pool[T]) Get() T {
	return p.pool.Get().(T)
}

// Put resets obj and places it back into the pool.
func (p *Pool[T]) Put(obj T) {
	obj.Reset()
	p.pool.Put(obj)
}

// Package refcnt provides a minimal atomic reference counter used to tie
// the lifetime of storage-owned buffers to their last reader.
package refcnt

import (
	"fmt"
	"sync/atomic"
)

// Counter is an atomic reference counter with an optional callback that
// fires when the count drops to zero.
type Counter struct {
	n      atomic.Int32
	onZero func()
}

// New creates a counter with an initial count of 1.
// onZero may be nil.
func New(onZero func()) *Counter {
	c := &Counter{onZero: onZero}
	c.n.Store(1)
	return c
}

// IncRef increments the count. Incrementing a released counter panics.
func (c *Counter) IncRef() {
	if n := c.n.Add(1); n <= 1 {
		panic(fmt.Errorf("invalid ref count %d after increment", n))
	}
}

// DecRef decrements the count, firing the on-zero callback when the last
// reference is dropped. Decrementing below zero panics.
func (c *Counter) DecRef() {
	n := c.n.Add(-1)
	switch {
	case n == 0:
		if c.onZero != nil {
			c.onZero()
		}
	case n < 0:
		panic(fmt.Errorf("invalid ref count %d after decrement", n))
	}
}

package pools

import (
	"sync"
	"sync/atomic"
)

// Poolable is implemented by per-connection state that can be recycled
type Poolable interface {
	Reset()
	SetFD(fd int)
}

// ConnectionPool recycles per-connection state objects.
// A connection is taken on accept and returned exactly once on teardown.
type ConnectionPool[T Poolable] struct {
	pool sync.Pool
	gets atomic.Uint64
	puts atomic.Uint64
}

// NewConnectionPool creates a new connection pool
func NewConnectionPool[T Poolable](newFunc func() T) *ConnectionPool[T] {
	cp := &ConnectionPool[T]{}
	cp.pool.New = func() any { return newFunc() }
	return cp
}

// Get retrieves a connection bound to fd
func (cp *ConnectionPool[T]) Get(fd int) T {
	cp.gets.Add(1)
	c := cp.pool.Get().(T)
	c.SetFD(fd)
	return c
}

// Put resets c and returns it to the pool
func (cp *ConnectionPool[T]) Put(c T) {
	c.Reset()
	cp.puts.Add(1)
	cp.pool.Put(c)
}

// Stats returns pool statistics. In-use is gets minus puts.
func (cp *ConnectionPool[T]) Stats() (gets, puts uint64) {
	return cp.gets.Load(), cp.puts.Load()
}

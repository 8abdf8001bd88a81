package storage

import (
	"context"
	"sync/atomic"
)

// MemoryCounter is a process-wide counter shared by every goroutine serving
// events in this process.
type MemoryCounter struct {
	n atomic.Int64
}

// NewMemoryCounter creates a counter starting at zero.
func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{}
}

// Incr increments the counter and returns the new value.
func (c *MemoryCounter) Incr(_ context.Context) (int64, error) {
	return c.n.Add(1), nil
}

// Value returns the current count.
func (c *MemoryCounter) Value(_ context.Context) (int64, error) {
	return c.n.Load(), nil
}

// Close is a no-op for the memory counter.
func (c *MemoryCounter) Close() error {
	return nil
}

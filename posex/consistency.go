package posex

import "sync"

// ConsistencyLock is the multi-reader/single-writer lock that serializes
// Tracking's pose-composition reads against Optimization's pose writeback
// (spec §5). Tracking holds it shared while composing the initial guess
// from the last registry entry and the current reference pose; Optimization
// holds it exclusively while writing updated Sim3 values back into the
// graph. It must never be held across blocking I/O on the Tracking side.
type ConsistencyLock struct {
	mu sync.RWMutex
}

// RLock/RUnlock give Tracking a consistent read of pose state.
func (c *ConsistencyLock) RLock()   { c.mu.RLock() }
func (c *ConsistencyLock) RUnlock() { c.mu.RUnlock() }

// Lock/Unlock give Optimization exclusive access to write poses back.
func (c *ConsistencyLock) Lock()   { c.mu.Lock() }
func (c *ConsistencyLock) Unlock() { c.mu.Unlock() }

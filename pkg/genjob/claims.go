package genjob

import (
	"sync"
	"sync/atomic"
)

// claimSet enforces the one-active-generation-per-thread invariant with an
// atomic compare-and-set per thread. It is the sole serialization point
// within a thread; threads are otherwise independent.
type claimSet struct {
	m sync.Map // threadID -> *int32
}

func (c *claimSet) flag(threadID string) *int32 {
	if v, ok := c.m.Load(threadID); ok {
		return v.(*int32)
	}
	v, _ := c.m.LoadOrStore(threadID, new(int32))
	return v.(*int32)
}

// TryClaim atomically claims the thread; false when a job already holds it.
func (c *claimSet) TryClaim(threadID string) bool {
	return atomic.CompareAndSwapInt32(c.flag(threadID), 0, 1)
}

// Release returns the thread's claim.
func (c *claimSet) Release(threadID string) {
	atomic.StoreInt32(c.flag(threadID), 0)
}

// Held reports whether the thread is currently claimed.
func (c *claimSet) Held(threadID string) bool {
	return atomic.LoadInt32(c.flag(threadID)) == 1
}

package builder

import "sync/atomic"

// BuildLock provides non-blocking lock semantics using atomic operations.
// A second Build on the same Builder fails fast instead of queueing behind
// the first.
type BuildLock struct {
	state atomic.Int32 // 0 = unlocked, 1 = locked
}

// TryAcquire attempts to acquire the lock without blocking.
func (l *BuildLock) TryAcquire() bool {
	return l.state.CompareAndSwap(0, 1)
}

// Release releases the lock.
// Must only be called by the goroutine that successfully acquired the lock.
func (l *BuildLock) Release() {
	l.state.Store(0)
}

// Held reports whether a build is running
func (l *BuildLock) Held() bool {
	return l.state.Load() == 1
}

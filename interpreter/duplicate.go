package interpreter

import (
	"sync"
	"time"
)

// MemoryDuplicateTracker is an in-process DuplicateTracker: a mutex-guarded
// map of key to the time it was last seen, suitable for tests and hosts
// that don't need vacation dedup to survive a process restart.
type MemoryDuplicateTracker struct {
	mu   sync.Mutex
	seen map[string]time.Time
	now  func() time.Time
}

// NewMemoryDuplicateTracker builds an empty tracker using time.Now for its
// clock.
func NewMemoryDuplicateTracker() *MemoryDuplicateTracker {
	return &MemoryDuplicateTracker{seen: make(map[string]time.Time), now: time.Now}
}

func (t *MemoryDuplicateTracker) Seen(key string, period time.Duration) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	last, ok := t.seen[key]
	t.seen[key] = now
	if !ok {
		return false, nil
	}
	return now.Sub(last) < period, nil
}

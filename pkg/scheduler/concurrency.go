// Copyright 2025 Justifai
package scheduler

import "sync"

// dedupSet is the in-process set of job ids P1 is currently rendering,
// guarded by a plain sync.Mutex rather than a dedicated concurrent-set
// library. It exists alongside the
// gateway's ClaimPending transition: claiming moves a row out of
// Pending in the database, but a retry within the same tick (a slow
// render still holding the row in Processing) must not be picked up
// twice by this process.
type dedupSet struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

func newDedupSet() *dedupSet {
	return &dedupSet{ids: make(map[string]struct{})}
}

// tryAdd reports whether id was newly added (true) or was already present.
func (d *dedupSet) tryAdd(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.ids[id]; ok {
		return false
	}
	d.ids[id] = struct{}{}
	return true
}

func (d *dedupSet) remove(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.ids, id)
}

// semaphore bounds concurrent PDF renders via a buffered channel, the
// idiom the pack uses in place of golang.org/x/sync/semaphore (which
// appears nowhere in the pack).
type semaphore struct {
	slots chan struct{}
}

func newSemaphore(n int) *semaphore {
	if n <= 0 {
		n = 1
	}
	return &semaphore{slots: make(chan struct{}, n)}
}

func (s *semaphore) acquire() { s.slots <- struct{}{} }
func (s *semaphore) release() { <-s.slots }

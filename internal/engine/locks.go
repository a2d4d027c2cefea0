package engine

import (
	"sort"
	"sync"
)

// lockMap hands out one mutex per resource identifier (account or goal id)
// so check-and-mutate sequences touching the same resource serialize while
// unrelated operations proceed in parallel.
type lockMap struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newLockMap() *lockMap {
	return &lockMap{locks: make(map[string]*sync.Mutex)}
}

func (lm *lockMap) get(id string) *sync.Mutex {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	l, ok := lm.locks[id]
	if !ok {
		l = &sync.Mutex{}
		lm.locks[id] = l
	}
	return l
}

// acquire locks every id in canonical (sorted, deduplicated) order so two
// operations touching overlapping resource sets can never deadlock. The
// returned func releases in reverse order.
func (lm *lockMap) acquire(ids ...string) func() {
	unique := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	sort.Strings(unique)

	held := make([]*sync.Mutex, 0, len(unique))
	for _, id := range unique {
		l := lm.get(id)
		l.Lock()
		held = append(held, l)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}

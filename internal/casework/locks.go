package casework

import "sync"

// lockTable hands out one mutex per case id so transitions on the same case
// serialize while distinct cases proceed in parallel. Mutexes are never
// removed; the table grows with the number of distinct cases touched, which
// is bounded by the working set.
type lockTable struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[int64]*sync.Mutex)}
}

func (t *lockTable) lock(id int64) *sync.Mutex {
	t.mu.Lock()
	m, ok := t.locks[id]
	if !ok {
		m = &sync.Mutex{}
		t.locks[id] = m
	}
	t.mu.Unlock()
	m.Lock()
	return m
}

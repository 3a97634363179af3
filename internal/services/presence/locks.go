package presence

import (
	"sort"
	"sync"

	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/model"
)

type lockKey struct {
	group model.GroupID
	name  string
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// keyedMutex serializes work per (group, identity key). Entries are created
// on demand and dropped once no goroutine holds or waits for them.
type keyedMutex struct {
	mu      sync.Mutex
	entries map[lockKey]*lockEntry
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{entries: make(map[lockKey]*lockEntry)}
}

func (k *keyedMutex) lock(key lockKey) {
	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		e = &lockEntry{}
		k.entries[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
}

func (k *keyedMutex) unlock(key lockKey) {
	k.mu.Lock()
	defer k.mu.Unlock()
	e, ok := k.entries[key]
	if !ok {
		panic("presence: unlock of unlocked key")
	}
	e.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(k.entries, key)
	}
}

// lockAll acquires every distinct key in sorted order and returns the release func
func (k *keyedMutex) lockAll(group model.GroupID, names []string) func() {
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)

	var held []lockKey
	for i, name := range sorted {
		if i > 0 && sorted[i-1] == name {
			continue
		}
		key := lockKey{group, name}
		k.lock(key)
		held = append(held, key)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			k.unlock(held[i])
		}
	}
}

func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}

// Package db keeps cache entries in creation order. Lookups go through an
// xxh3 keyed map, eviction and expiry scans walk a list whose front is always
// the oldest entry. Global counters are atomics so they can be read without locks.
package db

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"

	"github.com/Borislavv/go-ash-perf/internal/cache/db/model"
)

// Store is a creation-ordered map with precise global counters.
type Store struct {
	sync.RWMutex
	items map[uint64]*list.Element // value is *model.Entry
	order *list.List               // front = oldest createdAt

	len atomic.Int64 // number of items
	mem atomic.Int64 // summed entry weight in bytes
}

func NewStore() *Store {
	return &Store{items: make(map[uint64]*list.Element), order: list.New()}
}

func (s *Store) Len() int64 { return s.len.Load() }
func (s *Store) Mem() int64 { return s.mem.Load() }

// Set inserts or replaces an entry. A replaced entry loses its place in the
// creation order; the new one is placed by its createdAt, after any entry
// created at the same instant. Restored entries may be older than resident ones.
func (s *Store) Set(entry *model.Entry) (old *model.Entry, replaced bool) {
	key := entry.Key().Value()

	s.Lock()
	defer s.Unlock()

	if el, hit := s.items[key]; hit {
		old = el.Value.(*model.Entry)
		s.order.Remove(el)
		s.mem.Add(-old.Weight())
		s.len.Add(-1)
		replaced = true
	}

	s.items[key] = s.insertOrdered(entry)
	s.mem.Add(entry.Weight())
	s.len.Add(1)
	return
}

// insertOrdered walks back from the youngest entry, so in-order puts are O(1).
func (s *Store) insertOrdered(entry *model.Entry) *list.Element {
	mark := s.order.Back()
	for mark != nil && mark.Value.(*model.Entry).CreatedAt() > entry.CreatedAt() {
		mark = mark.Prev()
	}
	if mark == nil {
		return s.order.PushFront(entry)
	}
	return s.order.InsertAfter(entry, mark)
}

// Get reads an entry under a shared lock. Hash collisions read as a miss.
func (s *Store) Get(key *model.Key) (*model.Entry, bool) {
	s.RLock()
	defer s.RUnlock()

	if el, hit := s.items[key.Value()]; hit {
		entry := el.Value.(*model.Entry)
		if entry.Key().IsTheSame(key) {
			return entry, true
		}
		// hash collision
	}
	return nil, false
}

// Remove deletes whatever entry is stored under key.
func (s *Store) Remove(key *model.Key) (freedBytes int64, hit bool) {
	s.Lock()
	defer s.Unlock()

	el, ok := s.items[key.Value()]
	if !ok || !el.Value.(*model.Entry).Key().IsTheSame(key) {
		return 0, false
	}
	return s.removeUnlocked(el), true
}

// RemoveEntry deletes entry only if it is still the stored one, so a
// concurrent re-put of the same key survives.
func (s *Store) RemoveEntry(entry *model.Entry) (freedBytes int64, hit bool) {
	s.Lock()
	defer s.Unlock()

	el, ok := s.items[entry.Key().Value()]
	if !ok || el.Value.(*model.Entry) != entry {
		return 0, false
	}
	return s.removeUnlocked(el), true
}

// Clear removes all entries and returns what was dropped.
func (s *Store) Clear() (freedBytes int64, items int64) {
	s.Lock()
	defer s.Unlock()

	items = s.len.Load()
	freedBytes = s.mem.Load()

	s.items = make(map[uint64]*list.Element)
	s.order.Init()
	s.len.Store(0)
	s.mem.Store(0)
	return
}

// Walk iterates entries oldest first under a shared lock. The callback must be lightweight.
func (s *Store) Walk(ctx context.Context, fn func(entry *model.Entry) bool) {
	s.RLock()
	defer s.RUnlock()

	for el := s.order.Front(); el != nil; el = el.Next() {
		select {
		case <-ctx.Done():
			return
		default:
			if !fn(el.Value.(*model.Entry)) {
				return
			}
		}
	}
}

// removeUnlocked - is unsafe without s.Lock due to it mutates the list.
func (s *Store) removeUnlocked(el *list.Element) int64 {
	entry := el.Value.(*model.Entry)
	delete(s.items, entry.Key().Value())
	s.order.Remove(el)

	freed := entry.Weight()
	s.mem.Add(-freed)
	s.len.Add(-1)
	return freed
}

package db

import (
	"time"

	"github.com/Borislavv/go-ash-perf/internal/cache/db/model"
)

// PopOldest removes and returns the entry with the smallest createdAt.
func (s *Store) PopOldest() (*model.Entry, bool) {
	s.Lock()
	defer s.Unlock()

	el := s.order.Front()
	if el == nil {
		return nil, false
	}
	entry := el.Value.(*model.Entry)
	s.removeUnlocked(el)
	return entry, true
}

// EvictUntilWithinLimit pops oldest entries until Mem()+reserve fits into limit,
// the store is empty, or backoff pops were made. Every victim is passed to onEvict.
func (s *Store) EvictUntilWithinLimit(limit, reserve, backoff int64, onEvict func(*model.Entry)) (freed, evicted int64) {
	for backoff > 0 && s.Len() > 0 && s.Mem()+reserve > limit {
		victim, ok := s.PopOldest()
		if !ok {
			break
		}
		freed += victim.Weight()
		evicted++
		backoff--
		if onEvict != nil {
			onEvict(victim)
		}
	}
	return
}

// CollectExpired returns up to limit expired entries, oldest first.
func (s *Store) CollectExpired(now time.Time, limit int) []*model.Entry {
	if limit <= 0 {
		return nil
	}

	s.RLock()
	defer s.RUnlock()

	var out []*model.Entry
	for el := s.order.Front(); el != nil && len(out) < limit; el = el.Next() {
		if entry := el.Value.(*model.Entry); entry.IsExpired(now) {
			out = append(out, entry)
		}
	}
	return out
}

package core

import "sync"

// Store is a keyed arena of per-key state. Each key has its own lock, so updates on the
// same key are serialized while different keys proceed in parallel.
// Entries are created lazily and removed as soon as an update leaves them empty.
type Store[K comparable, V any] struct {
	mu      sync.Mutex
	entries map[K]*slot[V]
	create  func(K) V
}

type slot[V any] struct {
	mu   sync.Mutex
	val  V
	dead bool
}

func NewStore[K comparable, V any](create func(K) V) *Store[K, V] {
	return &Store[K, V]{
		entries: make(map[K]*slot[V]),
		create:  create,
	}
}

// Update runs fn on the entry for key, creating it first if needed.
// fn reports whether the entry should be kept; false removes it.
func (s *Store[K, V]) Update(key K, fn func(V) bool) {
	s.update(key, true, fn)
}

// UpdateExisting is Update without lazy creation. It reports whether an entry was found.
func (s *Store[K, V]) UpdateExisting(key K, fn func(V) bool) bool {
	return s.update(key, false, fn)
}

// View runs fn on an existing entry without the option to remove it.
func (s *Store[K, V]) View(key K, fn func(V)) bool {
	return s.update(key, false, func(v V) bool {
		fn(v)
		return true
	})
}

func (s *Store[K, V]) update(key K, create bool, fn func(V) bool) bool {
	for {
		s.mu.Lock()
		e, ok := s.entries[key]
		if !ok {
			if !create {
				s.mu.Unlock()
				return false
			}
			e = &slot[V]{val: s.create(key)}
			s.entries[key] = e
		}
		s.mu.Unlock()

		e.mu.Lock()
		if e.dead {
			// lost a race with a removal; the key is free again
			e.mu.Unlock()
			continue
		}
		if !fn(e.val) {
			e.dead = true
			s.mu.Lock()
			if s.entries[key] == e {
				delete(s.entries, key)
			}
			s.mu.Unlock()
		}
		e.mu.Unlock()
		return true
	}
}

// Has reports whether key currently has an entry.
func (s *Store[K, V]) Has(key K) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[key]
	return ok
}

// Keys returns a snapshot of the present keys.
func (s *Store[K, V]) Keys() []K {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]K, 0, len(s.entries))
	for k := range s.entries {
		out = append(out, k)
	}
	return out
}

func (s *Store[K, V]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

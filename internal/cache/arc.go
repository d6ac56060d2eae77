package cache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// entry is an encoded cache value. Fields other than hits and lastAccess
// are immutable after insertion.
type entry struct {
	data       []byte
	compressed bool
	sum        uint64
	size       int64
	expires    time.Time
	lastAccess time.Time
	hits       uint64
}

func (e *entry) expired(now time.Time) bool {
	return !e.expires.IsZero() && !now.Before(e.expires)
}

type lookup int

const (
	lookupMiss lookup = iota
	lookupHit
	lookupExpired
)

// shard is one ARC instance. T1 holds entries seen once recently, T2
// entries seen at least twice; B1 and B2 are ghost lists of keys recently
// evicted from T1 and T2. p is the adaptive target size of T1.
//
// The adaptation follows the golang-lru ARC variant: a B1 ghost hit grows
// p by max(|B2|/|B1|, 1), a B2 ghost hit shrinks it by max(|B1|/|B2|, 1),
// and replacement evicts from T1 when |T1| > p (or |T1| == p on a B2 hit).
//
// All methods require mu to be held by the caller.
type shard struct {
	capacity  int
	maxMemory int64
	p         int

	t1, t2 *simplelru.LRU[Key, *entry]
	b1, b2 *simplelru.LRU[Key, struct{}]

	bytes     int64
	evictions uint64
}

// listSize bounds the simplelru lists above anything the ARC invariants
// allow, so simplelru never evicts on its own.
func listSize(capacity int) int { return 2*capacity + 1 }

func newShard(capacity int, maxMemory int64) *shard {
	s := &shard{capacity: capacity, maxMemory: maxMemory}
	s.reset()
	return s
}

func mustLRU[V any](size int) *simplelru.LRU[Key, V] {
	l, err := simplelru.NewLRU[Key, V](size, nil)
	if err != nil {
		// size is always positive
		panic(err)
	}
	return l
}

func (s *shard) reset() {
	n := listSize(s.capacity)
	s.t1 = mustLRU[*entry](n)
	s.t2 = mustLRU[*entry](n)
	s.b1 = mustLRU[struct{}](n)
	s.b2 = mustLRU[struct{}](n)
	s.p = 0
	s.bytes = 0
}

func (s *shard) resident() int { return s.t1.Len() + s.t2.Len() }

// get looks key up and promotes it to T2 on a hit. Expired entries are
// removed and reported as lookupExpired.
func (s *shard) get(key Key, now time.Time) (*entry, lookup) {
	if e, ok := s.t1.Peek(key); ok {
		s.t1.Remove(key)
		if e.expired(now) {
			s.bytes -= e.size
			return nil, lookupExpired
		}
		s.t2.Add(key, e)
		e.hits++
		e.lastAccess = now
		return e, lookupHit
	}
	if e, ok := s.t2.Get(key); ok {
		if e.expired(now) {
			s.t2.Remove(key)
			s.bytes -= e.size
			return nil, lookupExpired
		}
		e.hits++
		e.lastAccess = now
		return e, lookupHit
	}
	return nil, lookupMiss
}

// put stores e under key and returns the number of resident entries
// evicted to make room.
func (s *shard) put(key Key, e *entry) int {
	if s.capacity <= 0 {
		return 0
	}
	before := s.evictions

	if old, ok := s.t1.Peek(key); ok {
		s.t1.Remove(key)
		s.bytes += e.size - old.size
		s.t2.Add(key, e)
		s.enforceMemory()
		return int(s.evictions - before)
	}
	if old, ok := s.t2.Peek(key); ok {
		s.bytes += e.size - old.size
		s.t2.Add(key, e)
		s.enforceMemory()
		return int(s.evictions - before)
	}

	switch {
	case s.b1.Contains(key):
		delta := 1
		if b1, b2 := s.b1.Len(), s.b2.Len(); b2 > b1 {
			delta = b2 / b1
		}
		s.p = min(s.p+delta, s.capacity)
		if s.resident() >= s.capacity {
			s.replace(false)
		}
		s.b1.Remove(key)
		s.t2.Add(key, e)

	case s.b2.Contains(key):
		delta := 1
		if b1, b2 := s.b1.Len(), s.b2.Len(); b1 > b2 {
			delta = b1 / b2
		}
		s.p = max(s.p-delta, 0)
		if s.resident() >= s.capacity {
			s.replace(true)
		}
		s.b2.Remove(key)
		s.t2.Add(key, e)

	default:
		if s.resident() >= s.capacity {
			s.replace(false)
		}
		if s.b1.Len() > s.capacity-s.p {
			s.b1.RemoveOldest()
		}
		if s.b2.Len() > s.p {
			s.b2.RemoveOldest()
		}
		s.t1.Add(key, e)
	}

	s.bytes += e.size
	s.enforceMemory()
	return int(s.evictions - before)
}

// replace evicts one resident entry into its ghost list, from T1 when T1
// exceeds its target size and from T2 otherwise.
func (s *shard) replace(b2Hit bool) {
	t1 := s.t1.Len()
	if t1 > 0 && (t1 > s.p || (t1 == s.p && b2Hit) || s.t2.Len() == 0) {
		if k, e, ok := s.t1.RemoveOldest(); ok {
			s.b1.Add(k, struct{}{})
			s.bytes -= e.size
			s.evictions++
		}
		return
	}
	if k, e, ok := s.t2.RemoveOldest(); ok {
		s.b2.Add(k, struct{}{})
		s.bytes -= e.size
		s.evictions++
	}
}

// enforceMemory evicts until the shard fits its memory budget.
func (s *shard) enforceMemory() {
	for s.maxMemory > 0 && s.bytes > s.maxMemory && s.resident() > 0 {
		s.replace(false)
	}
}

func (s *shard) remove(key Key) bool {
	if e, ok := s.t1.Peek(key); ok {
		s.t1.Remove(key)
		s.bytes -= e.size
		return true
	}
	if e, ok := s.t2.Peek(key); ok {
		s.t2.Remove(key)
		s.bytes -= e.size
		return true
	}
	return false
}

// removeIf drops resident and ghost keys matching pred.
func (s *shard) removeIf(pred func(Key) bool) int {
	n := 0
	for _, k := range s.t1.Keys() {
		if pred(k) && s.remove(k) {
			n++
		}
	}
	for _, k := range s.t2.Keys() {
		if pred(k) && s.remove(k) {
			n++
		}
	}
	for _, k := range s.b1.Keys() {
		if pred(k) {
			s.b1.Remove(k)
		}
	}
	for _, k := range s.b2.Keys() {
		if pred(k) {
			s.b2.Remove(k)
		}
	}
	return n
}

// purgeExpired drops expired resident entries.
func (s *shard) purgeExpired(now time.Time) int {
	n := 0
	for _, l := range []*simplelru.LRU[Key, *entry]{s.t1, s.t2} {
		for _, k := range l.Keys() {
			if e, ok := l.Peek(k); ok && e.expired(now) {
				l.Remove(k)
				s.bytes -= e.size
				n++
			}
		}
	}
	return n
}

// rebalance trims the ghost lists back to the ARC bounds
// |T1|+|B1| ≤ c and |T1|+|T2|+|B1|+|B2| ≤ 2c.
func (s *shard) rebalance() {
	for s.t1.Len()+s.b1.Len() > s.capacity && s.b1.Len() > 0 {
		s.b1.RemoveOldest()
	}
	for s.resident()+s.b1.Len()+s.b2.Len() > 2*s.capacity && s.b2.Len() > 0 {
		s.b2.RemoveOldest()
	}
	s.p = min(max(s.p, 0), s.capacity)
}

// resize applies new budgets, evicting as needed, and returns the number
// of entries evicted.
func (s *shard) resize(capacity int, maxMemory int64) int {
	before := s.evictions
	s.capacity = max(capacity, 0)
	s.maxMemory = maxMemory
	for s.resident() > s.capacity {
		s.replace(false)
	}
	s.enforceMemory()
	s.rebalance()

	n := listSize(s.capacity)
	s.t1.Resize(n)
	s.t2.Resize(n)
	s.b1.Resize(n)
	s.b2.Resize(n)
	return int(s.evictions - before)
}

package lru

import (
	"container/list"
	"sync"
)

type shard struct {
	mu         sync.Mutex
	maxBytes   uint64
	totalBytes uint64
	evictList  *list.List
	elems      map[uint64]*list.Element
}

type item struct {
	key   uint64
	value []byte
}

func newShard(maxBytes uint64) *shard {
	return &shard{
		maxBytes:  maxBytes,
		evictList: list.New(),
		elems:     make(map[uint64]*list.Element),
	}
}

func (s *shard) get(key uint64) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.elems[key]
	if !ok {
		return nil, false
	}

	s.evictList.MoveToFront(elem)
	return elem.Value.(*item).value, true
}

// add returns the number of new keys stored and the number of keys evicted
func (s *shard) add(key uint64, value []byte) (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	size := uint64(len(value))
	if size > s.maxBytes {
		if s.removeUnderLock(key) {
			return 0, 1
		}
		return 0, 0
	}

	if elem, ok := s.elems[key]; ok {
		it := elem.Value.(*item)
		s.totalBytes -= uint64(len(it.value))
		it.value = value
		s.totalBytes += size
		s.evictList.MoveToFront(elem)
		return 0, s.shrinkUnderLock(elem)
	}

	elem := s.evictList.PushFront(&item{key: key, value: value})
	s.elems[key] = elem
	s.totalBytes += size

	return 1, s.shrinkUnderLock(elem)
}

// shrinkUnderLock evicts the oldest entries, never keep, until the budget holds
func (s *shard) shrinkUnderLock(keep *list.Element) int {
	var evicted int
	for s.totalBytes > s.maxBytes {
		oldest := s.evictList.Back()
		if oldest == nil || oldest == keep {
			break
		}

		s.removeElementUnderLock(oldest)
		evicted++
	}

	return evicted
}

func (s *shard) remove(key uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeUnderLock(key)
}

func (s *shard) removeUnderLock(key uint64) bool {
	elem, ok := s.elems[key]
	if !ok {
		return false
	}

	s.removeElementUnderLock(elem)
	return true
}

func (s *shard) removeElementUnderLock(elem *list.Element) {
	it := s.evictList.Remove(elem).(*item)
	delete(s.elems, it.key)
	s.totalBytes -= uint64(len(it.value))
}

func (s *shard) purge() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.elems = make(map[uint64]*list.Element)
	s.evictList.Init()
	s.totalBytes = 0
}

func (s *shard) bytes() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalBytes
}

package reconcile

import "container/list"

// processedSet remembers up to cap keys, forgetting the oldest first.
type processedSet struct {
	cap   int
	order *list.List
	keys  map[string]*list.Element
}

func newProcessedSet(capacity int) *processedSet {
	return &processedSet{cap: capacity, order: list.New(), keys: map[string]*list.Element{}}
}

func (s *processedSet) Has(key string) bool {
	_, ok := s.keys[key]
	return ok
}

// Add records key and reports whether it was new.
func (s *processedSet) Add(key string) bool {
	if _, ok := s.keys[key]; ok {
		return false
	}
	s.keys[key] = s.order.PushBack(key)
	for s.cap > 0 && s.order.Len() > s.cap {
		oldest := s.order.Front()
		s.order.Remove(oldest)
		delete(s.keys, oldest.Value.(string))
	}
	return true
}

func (s *processedSet) Len() int { return s.order.Len() }

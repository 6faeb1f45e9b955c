package internal

import "sync"

// SeenSet remembers keys for the lifetime of one session.
type SeenSet struct {
	mu sync.Mutex
	v  map[string]struct{}
}

func NewSeenSet() *SeenSet {
	return &SeenSet{v: make(map[string]struct{})}
}

// Add records key and reports whether it was new.
func (s *SeenSet) Add(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.v[key]; ok {
		return false
	}
	s.v[key] = struct{}{}
	return true
}

func (s *SeenSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.v)
}

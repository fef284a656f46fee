package transfer

import "sync"

// inflightSet enforces per-path mutual exclusion across transfer workers: two
// workers must never operate on the same relative path at once.
type inflightSet struct {
	mu    sync.Mutex
	cond  *sync.Cond
	paths map[string]struct{}
}

func newInflightSet() *inflightSet {
	s := &inflightSet{paths: make(map[string]struct{})}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Acquire blocks until the path is free, then claims it.
func (s *inflightSet) Acquire(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		if _, busy := s.paths[path]; !busy {
			s.paths[path] = struct{}{}
			return
		}
		s.cond.Wait()
	}
}

// Release frees a path and wakes blocked acquirers.
func (s *inflightSet) Release(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.paths, path)
	s.cond.Broadcast()
}

package workspace

import (
	"slices"
	"sync"
)

// OpenSet tracks which documents are open as live buffers. It is
// bookkeeping only and independent of solution snapshots.
type OpenSet struct {
	mu  sync.RWMutex
	ids map[DocumentID]struct{}
}

// NewOpenSet creates an empty open set.
func NewOpenSet() *OpenSet {
	return &OpenSet{ids: make(map[DocumentID]struct{})}
}

// Add marks id open.
func (s *OpenSet) Add(id DocumentID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids[id] = struct{}{}
}

// Remove marks id closed and reports whether it was open.
func (s *OpenSet) Remove(id DocumentID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ids[id]
	delete(s.ids, id)
	return ok
}

// Contains reports whether id is open.
func (s *OpenSet) Contains(id DocumentID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.ids[id]
	return ok
}

// IDs returns the open document IDs in sorted order.
func (s *OpenSet) IDs() []DocumentID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]DocumentID, 0, len(s.ids))
	for id := range s.ids {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Retain closes every document for which keep returns false and returns
// the IDs that were closed.
func (s *OpenSet) Retain(keep func(DocumentID) bool) []DocumentID {
	s.mu.Lock()
	defer s.mu.Unlock()
	var closed []DocumentID
	for id := range s.ids {
		if !keep(id) {
			delete(s.ids, id)
			closed = append(closed, id)
		}
	}
	return closed
}

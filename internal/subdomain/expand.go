package subdomain

import (
	"fmt"
	"sync"

	"cybersentinel/internal/domain"
)

// DefaultExpandDepth is the depth from which nodes start collapsed.
const DefaultExpandDepth = 2

// DefaultExpanded reports the initial expansion of a node at depth.
func DefaultExpanded(depth int) bool { return depth < DefaultExpandDepth }

// ExpandState holds per-node expand/collapse flags keyed by node id, kept
// apart from the tree so structural changes never shift another node's flag.
// Only explicit toggles are stored; everything else falls back to the depth
// default. Safe for concurrent use.
type ExpandState struct {
	mu        sync.RWMutex
	overrides map[string]bool
}

func NewExpandState() *ExpandState {
	return &ExpandState{overrides: make(map[string]bool)}
}

// Expanded reports whether id shows its children. Leaves always report true
// since there is nothing to hide.
func (s *ExpandState) Expanded(t *Tree, id string) bool {
	if !t.HasChildren(id) {
		return true
	}
	if s != nil {
		s.mu.RLock()
		v, ok := s.overrides[id]
		s.mu.RUnlock()
		if ok {
			return v
		}
	}
	return DefaultExpanded(t.Depth(id))
}

// Toggle flips id's flag and returns the new value. Leaves are left alone.
func (s *ExpandState) Toggle(t *Tree, id string) (bool, error) {
	if _, ok := t.Get(id); !ok {
		return false, fmt.Errorf("%w: subdomain %s", domain.ErrNotFound, id)
	}
	if !t.HasChildren(id) {
		return true, nil
	}
	next := !s.Expanded(t, id)
	s.mu.Lock()
	s.overrides[id] = next
	s.mu.Unlock()
	return next, nil
}

// Set forces id's flag regardless of the default.
func (s *ExpandState) Set(id string, expanded bool) {
	s.mu.Lock()
	s.overrides[id] = expanded
	s.mu.Unlock()
}

// Prune forgets state for removed nodes.
func (s *ExpandState) Prune(ids ...string) {
	s.mu.Lock()
	for _, id := range ids {
		delete(s.overrides, id)
	}
	s.mu.Unlock()
}

// Overrides returns a copy of the explicitly toggled flags.
func (s *ExpandState) Overrides() map[string]bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]bool, len(s.overrides))
	for k, v := range s.overrides {
		out[k] = v
	}
	return out
}

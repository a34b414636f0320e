package subdomain

import (
	"fmt"
	"sort"
	"strings"

	"cybersentinel/internal/domain"
)

// Tree is an arena-style index over a domain hierarchy. Nodes are kept by id
// and the structure lives in parent -> ordered child id lists, so callers can
// mutate structure without touching node records.
type Tree struct {
	nodes    map[string]domain.Subdomain
	byName   map[string]string
	children map[string][]string
	roots    []string
}

// NestedNode is the literal, children-inline form used by seed files.
type NestedNode struct {
	Node     domain.Subdomain
	Children []NestedNode
}

func empty() *Tree {
	return &Tree{
		nodes:    make(map[string]domain.Subdomain),
		byName:   make(map[string]string),
		children: make(map[string][]string),
	}
}

// New builds a tree from flat records. Siblings are ordered by Position, then
// by input order. Every ParentID must name another record.
func New(records []domain.Subdomain) (*Tree, error) {
	t := empty()
	sorted := make([]domain.Subdomain, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Position < sorted[j].Position })

	for _, rec := range sorted {
		if err := t.index(rec); err != nil {
			return nil, err
		}
	}
	for _, rec := range sorted {
		if rec.ParentID == "" {
			t.roots = append(t.roots, rec.ID)
			continue
		}
		if _, ok := t.nodes[rec.ParentID]; !ok {
			return nil, fmt.Errorf("%w: %s references unknown parent %s", domain.ErrInvalidParent, rec.ID, rec.ParentID)
		}
		t.children[rec.ParentID] = append(t.children[rec.ParentID], rec.ID)
	}
	// Anything not reachable from a root is part of a parent cycle.
	if seen := len(t.Subtree("")); seen != len(t.nodes) {
		return nil, fmt.Errorf("%w: %d nodes unreachable from roots", domain.ErrInvalidParent, len(t.nodes)-seen)
	}
	t.renumber()
	return t, nil
}

// FromNested builds a tree from nested literals, assigning ParentID and
// Position from the nesting.
func FromNested(roots []NestedNode) (*Tree, error) {
	t := empty()
	var add func(n NestedNode, parentID string) error
	add = func(n NestedNode, parentID string) error {
		if err := t.Add(n.Node, parentID); err != nil {
			return err
		}
		for _, c := range n.Children {
			if err := add(c, n.Node.ID); err != nil {
				return err
			}
		}
		return nil
	}
	for _, r := range roots {
		if err := add(r, ""); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func (t *Tree) index(n domain.Subdomain) error {
	if n.ID == "" {
		return fmt.Errorf("%w: node %q has no id", domain.ErrInvalidName, n.Name)
	}
	name, err := domain.NormalizeName(n.Name)
	if err != nil {
		return err
	}
	if _, ok := t.nodes[n.ID]; ok {
		return fmt.Errorf("%w: id %s", domain.ErrDuplicate, n.ID)
	}
	if _, ok := t.byName[name]; ok {
		return fmt.Errorf("%w: %s", domain.ErrDuplicate, name)
	}
	n.Name = name
	t.nodes[n.ID] = n
	t.byName[name] = n.ID
	return nil
}

// Add appends n to the end of parentID's children, or to the roots when
// parentID is empty.
func (t *Tree) Add(n domain.Subdomain, parentID string) error {
	if parentID != "" {
		if _, ok := t.nodes[parentID]; !ok {
			return fmt.Errorf("%w: %s", domain.ErrInvalidParent, parentID)
		}
	}
	n.ParentID = parentID
	if parentID == "" {
		n.Position = len(t.roots)
	} else {
		n.Position = len(t.children[parentID])
	}
	if err := t.index(n); err != nil {
		return err
	}
	if parentID == "" {
		t.roots = append(t.roots, n.ID)
	} else {
		t.children[parentID] = append(t.children[parentID], n.ID)
	}
	return nil
}

// Remove deletes id and its whole subtree and returns the removed ids in
// pre-order.
func (t *Tree) Remove(id string) ([]string, error) {
	n, ok := t.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: subdomain %s", domain.ErrNotFound, id)
	}
	removed := t.Subtree(id)
	if n.ParentID == "" {
		t.roots = without(t.roots, id)
	} else {
		t.children[n.ParentID] = without(t.children[n.ParentID], id)
	}
	for _, rid := range removed {
		delete(t.byName, t.nodes[rid].Name)
		delete(t.nodes, rid)
		delete(t.children, rid)
	}
	t.renumber()
	return removed, nil
}

func without(ids []string, id string) []string {
	out := ids[:0:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func (t *Tree) renumber() {
	for i, id := range t.roots {
		n := t.nodes[id]
		n.Position = i
		t.nodes[id] = n
	}
	for _, kids := range t.children {
		for i, id := range kids {
			n := t.nodes[id]
			n.Position = i
			t.nodes[id] = n
		}
	}
}

// Update replaces the informational fields of an existing node. Structure
// (ParentID, Position) and Name are left untouched.
func (t *Tree) Update(n domain.Subdomain) error {
	cur, ok := t.nodes[n.ID]
	if !ok {
		return fmt.Errorf("%w: subdomain %s", domain.ErrNotFound, n.ID)
	}
	n.ParentID, n.Position, n.Name = cur.ParentID, cur.Position, cur.Name
	t.nodes[n.ID] = n
	return nil
}

func (t *Tree) Get(id string) (domain.Subdomain, bool) {
	n, ok := t.nodes[id]
	return n, ok
}

// Lookup finds a node by name, case-insensitively.
func (t *Tree) Lookup(name string) (domain.Subdomain, bool) {
	id, ok := t.byName[strings.TrimSuffix(strings.ToLower(strings.TrimSpace(name)), ".")]
	if !ok {
		return domain.Subdomain{}, false
	}
	return t.nodes[id], true
}

func (t *Tree) Len() int { return len(t.nodes) }

func (t *Tree) Roots() []string { return append([]string(nil), t.roots...) }

func (t *Tree) Children(id string) []string { return append([]string(nil), t.children[id]...) }

func (t *Tree) HasChildren(id string) bool { return len(t.children[id]) > 0 }

// Depth is the number of ancestors of id; -1 when id is unknown.
func (t *Tree) Depth(id string) int {
	n, ok := t.nodes[id]
	if !ok {
		return -1
	}
	d := 0
	for n.ParentID != "" {
		d++
		n = t.nodes[n.ParentID]
	}
	return d
}

// Ancestors returns the ids from id's parent up to its root.
func (t *Tree) Ancestors(id string) []string {
	var out []string
	n, ok := t.nodes[id]
	for ok && n.ParentID != "" {
		out = append(out, n.ParentID)
		n, ok = t.nodes[n.ParentID]
	}
	return out
}

// AttachPoint returns the id of the deepest node whose name is a proper
// label suffix of name, or "" when no such node exists.
func (t *Tree) AttachPoint(name string) string {
	name = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(name)), ".")
	for i := strings.IndexByte(name, '.'); i >= 0; {
		suffix := name[i+1:]
		if id, ok := t.byName[suffix]; ok {
			return id
		}
		next := strings.IndexByte(suffix, '.')
		if next < 0 {
			break
		}
		i += next + 1
	}
	return ""
}

// Subtree lists id and its descendants in pre-order. An empty id walks every
// root.
func (t *Tree) Subtree(id string) []string {
	var start []string
	if id == "" {
		start = t.roots
	} else if _, ok := t.nodes[id]; ok {
		start = []string{id}
	}
	var out []string
	t.Walk(start, func(n domain.Subdomain, _ int) bool {
		out = append(out, n.ID)
		return true
	})
	return out
}

// Walk visits the given start ids and their descendants depth-first in
// pre-order, preserving child insertion order. Depth is relative to the
// start ids. Returning false from fn skips that node's children.
func (t *Tree) Walk(start []string, fn func(n domain.Subdomain, depth int) bool) {
	type frame struct {
		id    string
		depth int
	}
	stack := make([]frame, 0, len(start))
	for i := len(start) - 1; i >= 0; i-- {
		stack = append(stack, frame{start[i], 0})
	}
	seen := make(map[string]bool, len(t.nodes))
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n, ok := t.nodes[f.id]
		if !ok || seen[f.id] {
			continue
		}
		seen[f.id] = true
		if !fn(n, f.depth) {
			continue
		}
		kids := t.children[f.id]
		for i := len(kids) - 1; i >= 0; i-- {
			stack = append(stack, frame{kids[i], f.depth + 1})
		}
	}
}

// Records returns every node in pre-order.
func (t *Tree) Records() []domain.Subdomain {
	out := make([]domain.Subdomain, 0, len(t.nodes))
	t.Walk(t.roots, func(n domain.Subdomain, _ int) bool {
		out = append(out, n)
		return true
	})
	return out
}

// Clone returns an independent copy of the tree.
func (t *Tree) Clone() *Tree {
	c := empty()
	for id, n := range t.nodes {
		c.nodes[id] = n
	}
	for name, id := range t.byName {
		c.byName[name] = id
	}
	for id, kids := range t.children {
		c.children[id] = append([]string(nil), kids...)
	}
	c.roots = append([]string(nil), t.roots...)
	return c
}

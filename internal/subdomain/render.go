package subdomain

import (
	"strings"

	"cybersentinel/internal/domain"
)

// DefaultIndentUnit is the per-level indentation of a rendered row.
const DefaultIndentUnit = 28

type Options struct {
	IndentUnit int
	// Query keeps nodes whose name contains it, plus their ancestors, which
	// are shown open for this render only.
	Query string
	// ExpandAll ignores the expand state.
	ExpandAll bool
}

// Row is one visible line of the rendered hierarchy.
type Row struct {
	Node        domain.Subdomain
	Depth       int
	Indent      int
	HasChildren bool
	Expanded    bool
}

// Render walks the tree pre-order and returns the visible rows. Children are
// emitted only under expanded nodes, in insertion order. A nil state means a
// freshly mounted view. Render never mutates t or state.
func Render(t *Tree, state *ExpandState, opts Options) []Row {
	unit := opts.IndentUnit
	if unit <= 0 {
		unit = DefaultIndentUnit
	}
	var keep, open map[string]bool
	if q := strings.ToLower(strings.TrimSpace(opts.Query)); q != "" {
		keep, open = matchQuery(t, q)
	}

	rows := make([]Row, 0, t.Len())
	t.Walk(t.roots, func(n domain.Subdomain, depth int) bool {
		if keep != nil && !keep[n.ID] {
			return false
		}
		hasChildren := t.HasChildren(n.ID)
		expanded := opts.ExpandAll || state.Expanded(t, n.ID)
		if open != nil {
			expanded = !hasChildren || open[n.ID]
		}
		rows = append(rows, Row{
			Node:        n,
			Depth:       depth,
			Indent:      depth * unit,
			HasChildren: hasChildren,
			Expanded:    expanded,
		})
		return hasChildren && expanded
	})
	return rows
}

// matchQuery returns the nodes to keep (matches and their ancestors) and the
// ancestors that must be open for the matches to be visible.
func matchQuery(t *Tree, q string) (keep, open map[string]bool) {
	keep = make(map[string]bool)
	open = make(map[string]bool)
	for id, n := range t.nodes {
		if !strings.Contains(n.Name, q) {
			continue
		}
		keep[id] = true
		for _, a := range t.Ancestors(id) {
			keep[a] = true
			open[a] = true
		}
	}
	return keep, open
}

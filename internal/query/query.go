// Package query implements the Query Surface: the read-only operations
// exposed over the Graph Store. Every return value is a copy; callers
// never observe internal aliasing. See SPEC_FULL.md §4.6.
package query

import (
	"sort"
	"strings"

	"github.com/standardbeagle/graphsyncd/internal/graph"
	"github.com/standardbeagle/graphsyncd/internal/types"
)

// Direction selects which side of an edge to traverse in EdgesFor.
type Direction string

const (
	DirIn   Direction = "in"
	DirOut  Direction = "out"
	DirBoth Direction = "both"
)

// Filter narrows ListNodes to nodes of a given kind; a zero value
// matches every kind.
type Filter struct {
	Kind types.Kind
}

// Surface wraps a Graph Store with the engine's read-only query
// operations.
type Surface struct {
	store *graph.Store
}

// New returns a Surface over store.
func New(store *graph.Store) *Surface {
	return &Surface{store: store}
}

// ListNodes returns up to limit nodes matching filter, sorted by id for
// stable pagination. limit <= 0 means unbounded.
func (s *Surface) ListNodes(filter Filter, limit int) []*types.Node {
	all := s.store.GetAllNodes()
	var out []*types.Node
	for _, n := range all {
		if filter.Kind != "" && n.Kind != filter.Kind {
			continue
		}
		out = append(out, n)
	}
	sortNodesByID(out)
	return capNodes(out, limit)
}

// GetNode returns the node with the given id, or nil if absent.
func (s *Surface) GetNode(id string) *types.Node {
	return s.store.GetNode(id)
}

// SearchNodes returns up to limit nodes whose id or filepath contains
// substring, case-insensitively.
func (s *Surface) SearchNodes(substring string, limit int) []*types.Node {
	needle := strings.ToLower(substring)
	all := s.store.GetAllNodes()
	var out []*types.Node
	for _, n := range all {
		if strings.Contains(strings.ToLower(n.ID), needle) || strings.Contains(strings.ToLower(n.Filepath), needle) {
			out = append(out, n)
		}
	}
	sortNodesByID(out)
	return capNodes(out, limit)
}

// EdgesFor returns the edges incident to id in the requested direction.
func (s *Surface) EdgesFor(id string, dir Direction) []*types.Edge {
	all := s.store.GetEdgesFor([]string{id})
	var out []*types.Edge
	for _, e := range all {
		switch dir {
		case DirIn:
			if e.Target == id {
				out = append(out, e)
			}
		case DirOut:
			if e.Source == id {
				out = append(out, e)
			}
		default:
			out = append(out, e)
		}
	}
	return out
}

// NodesForFile returns the nodes the given file's last parse claims.
func (s *Surface) NodesForFile(path string) []*types.Node {
	return s.store.GetNodesForFile(path)
}

// CallersOf returns up to limit nodes with a `calls` edge targeting id.
func (s *Surface) CallersOf(id string, limit int) []*types.Node {
	edges := s.store.GetEdgesFor([]string{id})
	var out []*types.Node
	for _, e := range edges {
		if e.Type != types.EdgeCalls || e.Target != id {
			continue
		}
		if n := s.store.GetNode(e.Source); n != nil {
			out = append(out, n)
		}
	}
	sortNodesByID(out)
	return capNodes(out, limit)
}

// CalleesOf returns up to limit nodes targeted by a `calls` edge from id.
func (s *Surface) CalleesOf(id string, limit int) []*types.Node {
	edges := s.store.GetEdgesFor([]string{id})
	var out []*types.Node
	for _, e := range edges {
		if e.Type != types.EdgeCalls || e.Source != id {
			continue
		}
		if n := s.store.GetNode(e.Target); n != nil {
			out = append(out, n)
		}
	}
	sortNodesByID(out)
	return capNodes(out, limit)
}

func sortNodesByID(nodes []*types.Node) {
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
}

func capNodes(nodes []*types.Node, limit int) []*types.Node {
	if limit > 0 && len(nodes) > limit {
		return nodes[:limit]
	}
	return nodes
}

package graph

import "github.com/standardbeagle/graphsyncd/internal/types"

// EnsureFunctionNode returns the function node with the given id,
// creating a minimal placeholder claimed by file if absent. Used by the
// Dynamic Ingestor (spec.md §4.5 step 2) so an unknown function
// referenced only at runtime still gets a home a later static parse can
// claim.
func (s *Store) EnsureFunctionNode(id, name, file string) *types.Node {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n, ok := s.nodes[id]; ok {
		return n.Clone()
	}
	n := &types.Node{
		ID:       id,
		Kind:     types.KindFunction,
		Name:     name,
		Filepath: file,
		Files:    map[string]struct{}{file: {}},
	}
	s.nodes[id] = n
	s.afterMutation()
	return n.Clone()
}

// IncrementDynamicCallCount bumps a function node's DynamicCallCount by
// one and returns the new value. I4 (monotone non-decreasing) follows
// directly from this being the only mutator of the field.
func (s *Store) IncrementDynamicCallCount(id string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.nodes[id]
	if !ok {
		return 0
	}
	n.DynamicCallCount++
	s.afterMutation()
	return n.DynamicCallCount
}

// UpsertDynamicCallEdge records one observed call from parent to
// target. On first observation it creates the edge with dynamic=true
// and stamps FirstCallTime; on repeat observations it increments the
// counter and updates LastCallTime. Self-edges are the caller's
// responsibility to skip (spec.md §4.5 step 3). Callers must have
// already materialized both endpoints (e.g. via EnsureFunctionNode) so
// I2 holds without this method guessing at a claiming file.
func (s *Store) UpsertDynamicCallEdge(parent, target string, timestampNanos int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := types.EdgeKey{Source: parent, Target: target, Type: types.EdgeCalls}
	e, ok := s.edges[key]
	if !ok {
		s.edges[key] = &types.Edge{
			Source:           parent,
			Target:           target,
			Type:             types.EdgeCalls,
			Dynamic:          true,
			DynamicCallCount: 1,
			FirstCallTime:    timestampNanos,
			LastCallTime:     timestampNanos,
		}
		s.afterMutation()
		return
	}
	e.Dynamic = true
	e.DynamicCallCount++
	e.LastCallTime = timestampNanos
	if e.FirstCallTime == 0 {
		e.FirstCallTime = timestampNanos
	}
	s.afterMutation()
}

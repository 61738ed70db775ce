// Package graph implements the Graph Store: the in-memory multigraph of
// nodes and edges, its per-file membership index, and optional snapshot
// persistence. See SPEC_FULL.md §4.1.
package graph

import (
	"strings"
	"sync"

	graphsyncderrors "github.com/standardbeagle/graphsyncd/internal/errors"
	"github.com/standardbeagle/graphsyncd/internal/types"
)

// Store holds the live dependency graph: nodes, edges, and the
// file-membership index required for O(k) removal. All mutations are
// atomic with respect to readers (spec.md §4.1 failure semantics).
type Store struct {
	mu sync.RWMutex

	nodes map[string]*types.Node
	edges map[types.EdgeKey]*types.Edge

	// fileIndex maps a filepath to the set of node ids its last
	// successful parse produced (spec.md I3).
	fileIndex map[string]map[string]struct{}

	// persist, when non-nil, is invoked after every committed mutation
	// so snapshot persistence stays out of the Store's own concerns
	// (the watch command wires it up when storage_mode is "snapshot").
	persist func(*Store)
}

// New creates an empty Graph Store.
func New() *Store {
	return &Store{
		nodes:     make(map[string]*types.Node),
		edges:     make(map[types.EdgeKey]*types.Edge),
		fileIndex: make(map[string]map[string]struct{}),
	}
}

// SetPersistHook registers a callback invoked after every committed
// mutation, used to drive save_snapshot() when storage_mode is
// "snapshot" (spec.md §4.1 step 8). The callback runs on its own
// goroutine, so it may take the store's read lock once the mutating
// call has released the write lock. Pass nil to disable.
func (s *Store) SetPersistHook(fn func(*Store)) {
	s.mu.Lock()
	s.persist = fn
	s.mu.Unlock()
}

func inferKind(id string) types.Kind {
	prefix, _, ok := strings.Cut(id, ":")
	if !ok {
		return types.KindVariable
	}
	switch prefix {
	case "module":
		return types.KindModule
	case "class":
		return types.KindClass
	case "function":
		return types.KindFunction
	case "import":
		return types.KindImport
	case "call":
		return types.KindCall
	default:
		return types.KindVariable
	}
}

// UpsertFile applies the central contract of spec.md §4.1: it merges a
// single file's freshly parsed nodes/edges into the graph, removing
// whatever that file previously claimed but no longer produces, and
// materializing placeholder nodes for any edge endpoint not otherwise
// declared (preserving I2). The whole operation commits atomically or
// leaves the store unchanged. The module node's content hash travels on
// pr.Nodes (the parser stamps it there); mergeNode picks it up from
// incoming.ContentHash like every other field.
func (s *Store) UpsertFile(path string, pr *types.ParseResult) error {
	if pr == nil {
		pr = &types.ParseResult{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	previousIDs := s.fileIndex[path]

	newIDs := make(map[string]struct{}, len(pr.Nodes))
	for _, n := range pr.Nodes {
		newIDs[n.ID] = struct{}{}
	}

	// Step 2: merge/insert nodes from the new parse.
	for _, incoming := range pr.Nodes {
		s.mergeNode(path, incoming)
	}

	// Step 3: insert/merge edges, creating implicit placeholder
	// endpoints so I2 holds at every observable point.
	for _, incoming := range pr.Edges {
		s.upsertEdge(path, incoming)
	}

	// Step 4+5: anything the file claimed before but didn't re-emit
	// loses this file's claim; nodes whose claim set empties, and every
	// edge incident to them, are removed.
	for id := range previousIDs {
		if _, stillClaimed := newIDs[id]; stillClaimed {
			continue
		}
		s.releaseNodeFile(id, path)
	}

	// Step 6: drop edges this file previously produced but the new
	// parse did not re-emit.
	reEmitted := make(map[types.EdgeKey]struct{}, len(pr.Edges))
	for _, e := range pr.Edges {
		reEmitted[e.Key()] = struct{}{}
	}
	for key, e := range s.edges {
		if e.File == path {
			if _, ok := reEmitted[key]; !ok {
				delete(s.edges, key)
			}
		}
	}

	// Step 7: replace the file index entry.
	if len(newIDs) == 0 {
		delete(s.fileIndex, path)
	} else {
		s.fileIndex[path] = newIDs
	}

	s.afterMutation()
	return nil
}

// mergeNode implements step 2's last-writer-wins field merge, with the
// content_hash/rename_history exceptions spec.md calls out.
func (s *Store) mergeNode(path string, incoming *types.Node) {
	existing, ok := s.nodes[incoming.ID]
	if !ok {
		clone := incoming.Clone()
		clone.Files = map[string]struct{}{path: {}}
		if clone.Kind == "" {
			clone.Kind = inferKind(clone.ID)
		}
		s.nodes[incoming.ID] = clone
		return
	}

	preservedHash := existing.ContentHash
	preservedHistory := existing.RenameHistory

	existing.Kind = incoming.Kind
	existing.Name = incoming.Name
	existing.Filepath = path
	existing.Span = incoming.Span
	if incoming.SecretWarnings != nil {
		existing.SecretWarnings = incoming.SecretWarnings
	}

	if incoming.ContentHash != "" {
		existing.ContentHash = incoming.ContentHash
	} else {
		existing.ContentHash = preservedHash
	}

	if incoming.RenameHistory != nil {
		existing.RenameHistory = incoming.RenameHistory
	} else {
		existing.RenameHistory = preservedHistory
	}

	if existing.Files == nil {
		existing.Files = make(map[string]struct{})
	}
	existing.Files[path] = struct{}{}
}

// upsertEdge inserts (source,target,type) if absent and stamps its
// originating file, materializing minimal placeholder endpoints that
// don't yet exist so I2 is preserved.
func (s *Store) upsertEdge(path string, incoming *types.Edge) {
	s.ensurePlaceholder(incoming.Source, path)
	s.ensurePlaceholder(incoming.Target, path)

	key := incoming.Key()
	e, ok := s.edges[key]
	if !ok {
		clone := incoming.Clone()
		clone.File = path
		s.edges[key] = clone
		return
	}
	e.File = path
	if incoming.Dynamic {
		e.Dynamic = true
	}
}

func (s *Store) ensurePlaceholder(id, path string) {
	if _, ok := s.nodes[id]; ok {
		return
	}
	s.nodes[id] = &types.Node{
		ID:       id,
		Kind:     inferKind(id),
		Name:     id,
		Filepath: path,
		Files:    map[string]struct{}{path: {}},
	}
}

// releaseNodeFile removes path from a node's claim set; when the set
// empties the node and every incident edge are deleted (I1).
func (s *Store) releaseNodeFile(id, path string) {
	n, ok := s.nodes[id]
	if !ok {
		return
	}
	delete(n.Files, path)
	if len(n.Files) > 0 {
		return
	}
	delete(s.nodes, id)
	for key := range s.edges {
		if key.Source == id || key.Target == id {
			delete(s.edges, key)
		}
	}
}

// RemoveFile performs steps 4-7 of upsert_file with an empty new parse,
// i.e. the file no longer exists.
func (s *Store) RemoveFile(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	previousIDs := s.fileIndex[path]
	for id := range previousIDs {
		s.releaseNodeFile(id, path)
	}
	for key, e := range s.edges {
		if e.File == path {
			delete(s.edges, key)
		}
	}
	delete(s.fileIndex, path)

	s.afterMutation()
	return nil
}

func (s *Store) afterMutation() {
	if s.persist != nil {
		go s.persist(s)
	}
}

// GetNode returns a copy of the node with the given id, or nil.
func (s *Store) GetNode(id string) *types.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nodes[id].Clone()
}

// GetAllNodes returns copies of every node currently in the store.
func (s *Store) GetAllNodes() []*types.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*types.Node, 0, len(s.nodes))
	for _, n := range s.nodes {
		out = append(out, n.Clone())
	}
	return out
}

// GetAllEdges returns copies of every edge currently in the store.
func (s *Store) GetAllEdges() []*types.Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*types.Edge, 0, len(s.edges))
	for _, e := range s.edges {
		out = append(out, e.Clone())
	}
	return out
}

// GetEdgesFor returns every edge with a source or target in ids.
func (s *Store) GetEdgesFor(ids []string) []*types.Edge {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*types.Edge
	for _, e := range s.edges {
		if _, ok := set[e.Source]; ok {
			out = append(out, e.Clone())
			continue
		}
		if _, ok := set[e.Target]; ok {
			out = append(out, e.Clone())
		}
	}
	return out
}

// GetNodesForFile returns copies of every node the given file's last
// parse claims.
func (s *Store) GetNodesForFile(path string) []*types.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.fileIndex[path]
	out := make([]*types.Node, 0, len(ids))
	for id := range ids {
		if n, ok := s.nodes[id]; ok {
			out = append(out, n.Clone())
		}
	}
	return out
}

// UpdateNodeFiles adds or removes path from a node's claim set outside
// of a full upsert_file/remove_file cycle, e.g. to correct bookkeeping
// after an out-of-band operation. Used by rename_file (internal/sync).
func (s *Store) UpdateNodeFiles(id, path string, add bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.nodes[id]
	if !ok {
		return graphsyncderrors.NewInvariantError("I2", "UpdateNodeFiles on unknown node "+id)
	}
	if add {
		if n.Files == nil {
			n.Files = make(map[string]struct{})
		}
		n.Files[path] = struct{}{}
	} else {
		delete(n.Files, path)
		if len(n.Files) == 0 {
			delete(s.nodes, id)
			for key := range s.edges {
				if key.Source == id || key.Target == id {
					delete(s.edges, key)
				}
			}
		}
	}
	s.afterMutation()
	return nil
}

// RenameFile updates every node claiming oldPath to claim newPath
// instead, without reparsing (spec.md §4.4 rename_file). A node whose
// Filepath moves to newPath gets oldPath appended to its RenameHistory.
// Node ids are unchanged, so incident edges survive untouched.
func (s *Store) RenameFile(oldPath, newPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids, ok := s.fileIndex[oldPath]
	if !ok {
		return nil
	}

	for id := range ids {
		n, ok := s.nodes[id]
		if !ok {
			continue
		}
		delete(n.Files, oldPath)
		if n.Files == nil {
			n.Files = make(map[string]struct{})
		}
		n.Files[newPath] = struct{}{}
		if n.Filepath == oldPath || n.Filepath == "" {
			n.Filepath = newPath
			n.RenameHistory = append(n.RenameHistory, oldPath)
		}
	}

	for key, e := range s.edges {
		if e.File == oldPath {
			e.File = newPath
			s.edges[key] = e
		}
	}

	delete(s.fileIndex, oldPath)
	s.fileIndex[newPath] = ids

	s.afterMutation()
	return nil
}

// RenameNode mutates a node's Name in place, preserving its id and
// appending the former name to RenameHistory (I5), without touching
// incident edges.
func (s *Store) RenameNode(id, newName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.nodes[id]
	if !ok {
		return graphsyncderrors.NewInvariantError("I2", "RenameNode on unknown node "+id)
	}
	if n.Name == newName {
		return nil
	}
	n.RenameHistory = append(n.RenameHistory, n.Name)
	n.Name = newName
	s.afterMutation()
	return nil
}

// ApplyFunctionRename updates the stored node at oldID in place to match
// updated's name/span/body/param-count, appending the former name to
// RenameHistory without touching id, files, or incident edges (spec.md
// §4.4 modified-event rule: "update the stored node in place"). Callers
// (internal/sync) then rewrite the new parse's own copy of this node to
// oldID before upsert_file, so the new id never enters the store.
func (s *Store) ApplyFunctionRename(oldID string, updated *types.Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.nodes[oldID]
	if !ok {
		return graphsyncderrors.NewInvariantError("I2", "ApplyFunctionRename on unknown node "+oldID)
	}
	if n.Name != updated.Name {
		n.RenameHistory = append(n.RenameHistory, n.Name)
	}
	n.Name = updated.Name
	n.Span = updated.Span
	n.Body = updated.Body
	n.ParamCount = updated.ParamCount
	s.afterMutation()
	return nil
}

// WithReadLock runs fn with the store's read lock held so a caller can
// build a multi-step snapshot view atomically without exposing the
// lock itself. fn must not call back into the Store.
func (s *Store) WithReadLock(fn func(nodes map[string]*types.Node, edges map[types.EdgeKey]*types.Edge, fileIndex map[string]map[string]struct{})) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.nodes, s.edges, s.fileIndex)
}

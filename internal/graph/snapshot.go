package graph

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/standardbeagle/graphsyncd/internal/debug"
	"github.com/standardbeagle/graphsyncd/internal/types"
)

// snapshotDoc is the on-disk shape described in spec.md §6: nodes and
// edges as arrays (sets serialized as ordered sequences), plus the
// file-membership index. json.RawMessage passthrough is not needed
// here because the document has no caller-supplied unknown fields to
// preserve beyond what Node/Edge already model, but the struct tags
// keep the three top-level sections exactly as named in the contract.
type snapshotDoc struct {
	Nodes     []snapshotNode      `json:"nodes"`
	Edges     []snapshotEdge      `json:"edges"`
	FileNodes map[string][]string `json:"file_nodes"`
}

type snapshotNode struct {
	ID               string   `json:"id"`
	Kind             string   `json:"kind"`
	Name             string   `json:"name"`
	Filepath         string   `json:"filepath"`
	Files            []string `json:"files"`
	RenameHistory    []string `json:"rename_history,omitempty"`
	DynamicCallCount uint64   `json:"dynamic_call_count,omitempty"`
	ContentHash      string   `json:"content_hash,omitempty"`
	SecretWarnings   []string `json:"secret_warnings,omitempty"`
	StartLine        int      `json:"start_line,omitempty"`
	StartCol         int      `json:"start_col,omitempty"`
	EndLine          int      `json:"end_line,omitempty"`
	EndCol           int      `json:"end_col,omitempty"`
}

type snapshotEdge struct {
	Source           string `json:"source"`
	Target           string `json:"target"`
	Type             string `json:"type"`
	File             string `json:"file"`
	Dynamic          bool   `json:"dynamic,omitempty"`
	DynamicCallCount uint64 `json:"dynamic_call_count,omitempty"`
	FirstCallTime    int64  `json:"first_call_time,omitempty"`
	LastCallTime     int64  `json:"last_call_time,omitempty"`
}

const staleLockAge = 60 * time.Second

// SaveSnapshot writes the complete graph to path via write-to-temp-
// then-rename, guarded by a sibling ".lock" file carrying this
// process's PID. A failed write is logged and left for the next
// mutation to retry (spec.md §4.1 failure semantics); it never rolls
// back the in-memory graph.
func (s *Store) SaveSnapshot(path string) error {
	doc := s.buildSnapshotDoc()

	unlock, err := acquireLock(path)
	if err != nil {
		debug.LogSync("snapshot save skipped, lock busy: %v", err)
		return err
	}
	defer unlock()

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename temp snapshot: %w", err)
	}
	return nil
}

// SaveSnapshotWithRetry attempts SaveSnapshot with bounded exponential
// backoff and jitter, up to 10 attempts (spec.md §5).
func (s *Store) SaveSnapshotWithRetry(path string) error {
	var lastErr error
	for attempt := 0; attempt < 10; attempt++ {
		if err := s.SaveSnapshot(path); err == nil {
			return nil
		} else {
			lastErr = err
		}
		backoff := time.Duration(1<<uint(attempt)) * 10 * time.Millisecond
		jitter := time.Duration(rand.Int63n(int64(backoff) + 1))
		time.Sleep(backoff + jitter)
	}
	debug.LogSync("snapshot save failed after retries: %v", lastErr)
	return lastErr
}

func (s *Store) buildSnapshotDoc() snapshotDoc {
	var doc snapshotDoc
	s.WithReadLock(func(nodes map[string]*types.Node, edges map[types.EdgeKey]*types.Edge, fileIndex map[string]map[string]struct{}) {
		doc.Nodes = make([]snapshotNode, 0, len(nodes))
		for _, n := range nodes {
			sn := snapshotNode{
				ID:               n.ID,
				Kind:             string(n.Kind),
				Name:             n.Name,
				Filepath:         n.Filepath,
				Files:            setToSortedSlice(n.Files),
				RenameHistory:    n.RenameHistory,
				DynamicCallCount: n.DynamicCallCount,
				ContentHash:      n.ContentHash,
				SecretWarnings:   n.SecretWarnings,
			}
			if n.Span != nil {
				sn.StartLine, sn.StartCol = n.Span.StartLine, n.Span.StartCol
				sn.EndLine, sn.EndCol = n.Span.EndLine, n.Span.EndCol
			}
			doc.Nodes = append(doc.Nodes, sn)
		}

		doc.Edges = make([]snapshotEdge, 0, len(edges))
		for _, e := range edges {
			doc.Edges = append(doc.Edges, snapshotEdge{
				Source:           e.Source,
				Target:           e.Target,
				Type:             string(e.Type),
				File:             e.File,
				Dynamic:          e.Dynamic,
				DynamicCallCount: e.DynamicCallCount,
				FirstCallTime:    e.FirstCallTime,
				LastCallTime:     e.LastCallTime,
			})
		}

		doc.FileNodes = make(map[string][]string, len(fileIndex))
		for path, ids := range fileIndex {
			doc.FileNodes[path] = setToSortedSlice(ids)
		}
	})
	return doc
}

// LoadSnapshot restores the store from path. A missing file yields an
// empty store; a malformed file yields an empty store and a logged
// error, per spec.md §4.1.
func (s *Store) LoadSnapshot(path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		s.reset()
		return nil
	}
	if err != nil {
		debug.LogSync("snapshot load failed, starting empty: %v", err)
		s.reset()
		return nil
	}

	var doc snapshotDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		debug.LogSync("snapshot malformed, starting empty: %v", err)
		s.reset()
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nodes = make(map[string]*types.Node, len(doc.Nodes))
	for _, sn := range doc.Nodes {
		n := &types.Node{
			ID:               sn.ID,
			Kind:             types.Kind(sn.Kind),
			Name:             sn.Name,
			Filepath:         sn.Filepath,
			Files:            sliceToSet(sn.Files),
			RenameHistory:    sn.RenameHistory,
			DynamicCallCount: sn.DynamicCallCount,
			ContentHash:      sn.ContentHash,
			SecretWarnings:   sn.SecretWarnings,
		}
		if sn.StartLine != 0 || sn.EndLine != 0 {
			n.Span = &types.Span{StartLine: sn.StartLine, StartCol: sn.StartCol, EndLine: sn.EndLine, EndCol: sn.EndCol}
		}
		s.nodes[sn.ID] = n
	}

	s.edges = make(map[types.EdgeKey]*types.Edge, len(doc.Edges))
	for _, se := range doc.Edges {
		e := &types.Edge{
			Source:           se.Source,
			Target:           se.Target,
			Type:             types.EdgeType(se.Type),
			File:             se.File,
			Dynamic:          se.Dynamic,
			DynamicCallCount: se.DynamicCallCount,
			FirstCallTime:    se.FirstCallTime,
			LastCallTime:     se.LastCallTime,
		}
		s.edges[e.Key()] = e
	}

	s.fileIndex = make(map[string]map[string]struct{}, len(doc.FileNodes))
	for path, ids := range doc.FileNodes {
		s.fileIndex[path] = sliceToSet(ids)
	}
	return nil
}

func (s *Store) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes = make(map[string]*types.Node)
	s.edges = make(map[types.EdgeKey]*types.Edge)
	s.fileIndex = make(map[string]map[string]struct{})
}

func setToSortedSlice(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sortStrings(out)
	return out
}

func sliceToSet(in []string) map[string]struct{} {
	out := make(map[string]struct{}, len(in))
	for _, s := range in {
		out[s] = struct{}{}
	}
	return out
}

func sortStrings(s []string) {
	// small helper to avoid importing sort for a one-line call site
	// at every use; insertion sort is fine, membership sets are small.
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

// acquireLock creates a sibling ".lock" file holding this process's
// PID, breaking a stale lock older than staleLockAge (spec.md §4.1,
// §5). The returned func releases the lock.
func acquireLock(path string) (func(), error) {
	lockPath := path + ".lock"

	if info, err := os.Stat(lockPath); err == nil {
		if time.Since(info.ModTime()) > staleLockAge {
			os.Remove(lockPath)
		} else {
			return nil, fmt.Errorf("snapshot lock held: %s", lockPath)
		}
	}

	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("acquire snapshot lock: %w", err)
	}
	fmt.Fprintf(f, "%d", os.Getpid())
	f.Close()

	return func() { os.Remove(lockPath) }, nil
}

package graph

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/graphsyncd/internal/types"
)

func moduleNode(path, name string) *types.Node {
	return &types.Node{ID: "module:" + path, Kind: types.KindModule, Name: name, Filepath: path}
}

func funcNode(id, name, path string) *types.Node {
	return &types.Node{ID: id, Kind: types.KindFunction, Name: name, Filepath: path}
}

// Scenario 1: single file create.
func TestUpsertFile_SingleFileCreate(t *testing.T) {
	s := New()
	pr := &types.ParseResult{
		Nodes: []*types.Node{moduleNode("src/a.py", "a"), funcNode("function:a.f", "f", "src/a.py")},
		Edges: []*types.Edge{{Source: "function:a.f", Target: "module:src/a.py", Type: types.EdgeMemberOf}},
	}
	require.NoError(t, s.UpsertFile("src/a.py", pr))

	nodes := s.GetNodesForFile("src/a.py")
	ids := make(map[string]bool)
	for _, n := range nodes {
		ids[n.ID] = true
	}
	assert.True(t, ids["module:src/a.py"])
	assert.True(t, ids["function:a.f"])
	assert.Len(t, nodes, 2)

	edges := s.GetAllEdges()
	require.Len(t, edges, 1)
	assert.Equal(t, "function:a.f", edges[0].Source)
	assert.Equal(t, "module:src/a.py", edges[0].Target)
	assert.Equal(t, types.EdgeMemberOf, edges[0].Type)
}

// Scenario 3: rename function in place preserves node id.
func TestUpsertFile_FieldMergeIsLastWriterWinsExceptHashAndHistory(t *testing.T) {
	s := New()
	fn := funcNode("function:a.f", "f", "src/a.py")
	fn.ContentHash = "hash1"
	require.NoError(t, s.UpsertFile("src/a.py", &types.ParseResult{
		Nodes: []*types.Node{fn},
	}))

	n := s.GetNode("function:a.f")
	require.NotNil(t, n)
	assert.Equal(t, "f", n.Name)

	// Rename in place via RenameNode: same id, new name, former name in
	// history (the Sync Coordinator does this via ApplyFunctionRename, not
	// upsert_file); the re-parse below then exercises upsert_file's merge rule.
	require.NoError(t, s.RenameNode("function:a.f", "g"))
	n = s.GetNode("function:a.f")
	assert.Equal(t, "g", n.Name)
	assert.Equal(t, []string{"f"}, n.RenameHistory)

	// content_hash is preserved across a merge that doesn't supply one.
	require.NoError(t, s.UpsertFile("src/a.py", &types.ParseResult{
		Nodes: []*types.Node{funcNode("function:a.f", "g", "src/a.py")},
	}))
	n = s.GetNode("function:a.f")
	assert.Equal(t, "hash1", n.ContentHash)
}

// Scenario 4: a node shared across two files survives one file's removal.
func TestUpsertFile_SharedNodeAcrossFiles(t *testing.T) {
	s := New()
	imp := &types.Node{ID: "import:x", Kind: types.KindImport, Name: "x"}

	require.NoError(t, s.UpsertFile("src/a.py", &types.ParseResult{Nodes: []*types.Node{imp}}))
	require.NoError(t, s.UpsertFile("src/b.py", &types.ParseResult{Nodes: []*types.Node{imp}}))

	n := s.GetNode("import:x")
	require.NotNil(t, n)
	assert.True(t, n.HasFile("src/a.py"))
	assert.True(t, n.HasFile("src/b.py"))

	require.NoError(t, s.RemoveFile("src/a.py"))
	n = s.GetNode("import:x")
	require.NotNil(t, n, "shared node must survive one claimant's removal")
	assert.False(t, n.HasFile("src/a.py"))
	assert.True(t, n.HasFile("src/b.py"))
}

// I1: a node's files set emptying deletes the node and its incident edges.
func TestRemoveFile_EmptyFilesDeletesNodeAndIncidentEdges(t *testing.T) {
	s := New()
	pr := &types.ParseResult{
		Nodes: []*types.Node{moduleNode("src/a.py", "a"), funcNode("function:a.f", "f", "src/a.py")},
		Edges: []*types.Edge{{Source: "function:a.f", Target: "module:src/a.py", Type: types.EdgeMemberOf}},
	}
	require.NoError(t, s.UpsertFile("src/a.py", pr))
	require.NoError(t, s.RemoveFile("src/a.py"))

	assert.Nil(t, s.GetNode("function:a.f"))
	assert.Nil(t, s.GetNode("module:src/a.py"))
	assert.Empty(t, s.GetAllEdges())
}

// I2: edges reference placeholder nodes when an endpoint isn't otherwise declared.
func TestUpsertFile_ImplicitPlaceholderPreservesI2(t *testing.T) {
	s := New()
	pr := &types.ParseResult{
		Nodes: []*types.Node{moduleNode("src/a.py", "a")},
		Edges: []*types.Edge{{Source: "module:src/a.py", Target: "import:unseen", Type: types.EdgeImports}},
	}
	require.NoError(t, s.UpsertFile("src/a.py", pr))

	placeholder := s.GetNode("import:unseen")
	require.NotNil(t, placeholder, "edge endpoint must be materialized to preserve I2")
	assert.Equal(t, types.KindImport, placeholder.Kind)
}

// upsert_file step 4-6: edges/nodes no longer produced by a re-parse of
// the same file are dropped even if the file is otherwise unchanged.
func TestUpsertFile_DropsStaleNodesAndEdgesOnReparse(t *testing.T) {
	s := New()
	first := &types.ParseResult{
		Nodes: []*types.Node{moduleNode("src/a.py", "a"), funcNode("function:a.f", "f", "src/a.py")},
		Edges: []*types.Edge{{Source: "function:a.f", Target: "module:src/a.py", Type: types.EdgeMemberOf}},
	}
	require.NoError(t, s.UpsertFile("src/a.py", first))

	second := &types.ParseResult{Nodes: []*types.Node{moduleNode("src/a.py", "a")}}
	require.NoError(t, s.UpsertFile("src/a.py", second))

	assert.Nil(t, s.GetNode("function:a.f"))
	assert.Empty(t, s.GetAllEdges())
}

// Scenario 6: save then load yields identical observable state (L1).
func TestSnapshotRoundTrip(t *testing.T) {
	s := New()
	mod := moduleNode("src/a.py", "a")
	mod.ContentHash = "hash1"
	pr := &types.ParseResult{
		Nodes: []*types.Node{mod, funcNode("function:a.f", "f", "src/a.py")},
		Edges: []*types.Edge{{Source: "function:a.f", Target: "module:src/a.py", Type: types.EdgeMemberOf}},
	}
	require.NoError(t, s.UpsertFile("src/a.py", pr))

	dir := t.TempDir()
	snapPath := filepath.Join(dir, "snapshot.json")
	require.NoError(t, s.SaveSnapshot(snapPath))

	s2 := New()
	require.NoError(t, s2.LoadSnapshot(snapPath))

	assert.ElementsMatch(t, idsOf(s.GetAllNodes()), idsOf(s2.GetAllNodes()))
	assert.Len(t, s2.GetAllEdges(), len(s.GetAllEdges()))
	assert.Equal(t, "hash1", s2.GetNode("module:src/a.py").ContentHash)

	_, err := os.Stat(snapPath + ".lock")
	assert.True(t, os.IsNotExist(err), "lock file must be released after save")
}

func TestLoadSnapshot_MissingFileYieldsEmptyStore(t *testing.T) {
	s := New()
	require.NoError(t, s.LoadSnapshot(filepath.Join(t.TempDir(), "missing.json")))
	assert.Empty(t, s.GetAllNodes())
}

func TestLoadSnapshot_MalformedFileYieldsEmptyStoreNoError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	s := New()
	require.NoError(t, s.LoadSnapshot(path))
	assert.Empty(t, s.GetAllNodes())
}

func idsOf(nodes []*types.Node) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.ID)
	}
	return out
}

func TestRenameFile_PreservesNodeIdentityAndEdges(t *testing.T) {
	s := New()
	pr := &types.ParseResult{
		Nodes: []*types.Node{moduleNode("src/a.py", "a"), funcNode("function:a.f", "f", "src/a.py")},
		Edges: []*types.Edge{{Source: "function:a.f", Target: "module:src/a.py", Type: types.EdgeMemberOf}},
	}
	require.NoError(t, s.UpsertFile("src/a.py", pr))
	require.NoError(t, s.RenameFile("src/a.py", "src/b.py"))

	n := s.GetNode("function:a.f")
	require.NotNil(t, n)
	assert.True(t, n.HasFile("src/b.py"))
	assert.False(t, n.HasFile("src/a.py"))
	assert.Equal(t, "src/b.py", n.Filepath)
	assert.Empty(t, s.GetNodesForFile("src/a.py"))
	assert.Len(t, s.GetNodesForFile("src/b.py"), 2)
	assert.Len(t, s.GetAllEdges(), 1, "rename must not disturb incident edges")
}

func TestGetNode_ReturnsCopyNotAlias(t *testing.T) {
	s := New()
	require.NoError(t, s.UpsertFile("src/a.py", &types.ParseResult{Nodes: []*types.Node{moduleNode("src/a.py", "a")}}))

	n1 := s.GetNode("module:src/a.py")
	n1.Name = "mutated"
	n2 := s.GetNode("module:src/a.py")
	assert.Equal(t, "a", n2.Name, "callers must never observe internal aliasing")
}

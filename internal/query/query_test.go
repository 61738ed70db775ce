package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/graphsyncd/internal/graph"
	"github.com/standardbeagle/graphsyncd/internal/types"
)

func seedStore(t *testing.T) *graph.Store {
	t.Helper()
	s := graph.New()
	require.NoError(t, s.UpsertFile("m.py", &types.ParseResult{
		Nodes: []*types.Node{
			{ID: "module:m.py", Kind: types.KindModule, Name: "m", Filepath: "m.py"},
			{ID: "function:m.outer", Kind: types.KindFunction, Name: "outer", Filepath: "m.py"},
			{ID: "function:m.inner", Kind: types.KindFunction, Name: "inner", Filepath: "m.py"},
		},
		Edges: []*types.Edge{
			{Source: "function:m.outer", Target: "function:m.inner", Type: types.EdgeCalls},
		},
	}))
	return s
}

func TestListNodes_FiltersByKindAndSortsByID(t *testing.T) {
	s := seedStore(t)
	surf := New(s)

	funcs := surf.ListNodes(Filter{Kind: types.KindFunction}, 0)
	require.Len(t, funcs, 2)
	assert.Equal(t, "function:m.inner", funcs[0].ID)
	assert.Equal(t, "function:m.outer", funcs[1].ID)
}

func TestListNodes_LimitCaps(t *testing.T) {
	s := seedStore(t)
	surf := New(s)

	all := surf.ListNodes(Filter{}, 0)
	require.Len(t, all, 3)
	limited := surf.ListNodes(Filter{}, 2)
	assert.Len(t, limited, 2)
}

func TestSearchNodes_CaseInsensitiveOverIDAndFilepath(t *testing.T) {
	s := seedStore(t)
	surf := New(s)

	byID := surf.SearchNodes("OUTER", 0)
	require.Len(t, byID, 1)
	assert.Equal(t, "function:m.outer", byID[0].ID)

	byPath := surf.SearchNodes("M.PY", 0)
	assert.Len(t, byPath, 3)
}

func TestEdgesFor_Direction(t *testing.T) {
	s := seedStore(t)
	surf := New(s)

	out := surf.EdgesFor("function:m.outer", DirOut)
	require.Len(t, out, 1)
	assert.Equal(t, "function:m.inner", out[0].Target)

	in := surf.EdgesFor("function:m.inner", DirIn)
	require.Len(t, in, 1)
	assert.Equal(t, "function:m.outer", in[0].Source)

	assert.Empty(t, surf.EdgesFor("function:m.outer", DirIn))
}

func TestCallersAndCalleesOf(t *testing.T) {
	s := seedStore(t)
	surf := New(s)

	callers := surf.CallersOf("function:m.inner", 0)
	require.Len(t, callers, 1)
	assert.Equal(t, "function:m.outer", callers[0].ID)

	callees := surf.CalleesOf("function:m.outer", 0)
	require.Len(t, callees, 1)
	assert.Equal(t, "function:m.inner", callees[0].ID)
}

func TestNodesForFile(t *testing.T) {
	s := seedStore(t)
	surf := New(s)

	nodes := surf.NodesForFile("m.py")
	assert.Len(t, nodes, 3)
	assert.Empty(t, surf.NodesForFile("unknown.py"))
}

func TestGetNode_ReturnsCopy(t *testing.T) {
	s := seedStore(t)
	surf := New(s)

	n := surf.GetNode("module:m.py")
	require.NotNil(t, n)
	n.Name = "mutated"
	assert.Equal(t, "m", surf.GetNode("module:m.py").Name)

	assert.Nil(t, surf.GetNode("does-not-exist"))
}

package dynamic

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/graphsyncd/internal/graph"
	"github.com/standardbeagle/graphsyncd/internal/types"
)

// Scenario 5: three observed "outer.inner" calls increment the callee's
// dynamic_call_count and materialize a dynamic calls edge.
func TestIngest_NestedCallIncrementsCountAndEdge(t *testing.T) {
	store := graph.New()
	require.NoError(t, store.UpsertFile("m.py", &types.ParseResult{
		Nodes: []*types.Node{
			{ID: "function:m.outer", Kind: types.KindFunction, Name: "outer", Filepath: "m.py"},
			{ID: "function:m.inner", Kind: types.KindFunction, Name: "inner", Filepath: "m.py"},
		},
	}))

	in := New(store)
	for i := 0; i < 3; i++ {
		in.ingest(types.FunctionCallEvent{FunctionName: "outer.inner", ModuleName: "m", Filename: "m.py", Timestamp: int64(i + 1)})
	}

	inner := store.GetNode("function:m.inner")
	require.NotNil(t, inner)
	assert.Equal(t, uint64(3), inner.DynamicCallCount)

	edges := store.GetEdgesFor([]string{"function:m.outer"})
	require.Len(t, edges, 1)
	assert.Equal(t, types.EdgeCalls, edges[0].Type)
	assert.True(t, edges[0].Dynamic)
	assert.Equal(t, uint64(3), edges[0].DynamicCallCount)
	assert.Equal(t, int64(1), edges[0].FirstCallTime)
	assert.Equal(t, int64(3), edges[0].LastCallTime)
}

// An unqualified call (no parent segment) only bumps the function node,
// never emitting a self-edge.
func TestIngest_UnqualifiedCallCreatesOnlyFunctionNode(t *testing.T) {
	store := graph.New()
	in := New(store)
	in.ingest(types.FunctionCallEvent{FunctionName: "standalone", ModuleName: "m", Filename: "m.py", Timestamp: 1})

	node := store.GetNode("function:m.standalone")
	require.NotNil(t, node)
	assert.Equal(t, uint64(1), node.DynamicCallCount)
	assert.Empty(t, store.GetAllEdges())
}

// A call observed for an unknown function materializes a minimal node
// a later static parse can claim (spec.md §4.5 step 2, §9).
func TestIngest_UnknownFunctionCreatesMinimalNode(t *testing.T) {
	store := graph.New()
	in := New(store)
	in.ingest(types.FunctionCallEvent{FunctionName: "ghost", ModuleName: "m", Filename: "m.py", Timestamp: 1})

	node := store.GetNode("function:m.ghost")
	require.NotNil(t, node)
	assert.True(t, node.HasFile("m.py"))
}

func TestIngest_SelfCallIsSkipped(t *testing.T) {
	store := graph.New()
	in := New(store)
	in.ingest(types.FunctionCallEvent{FunctionName: "f.f", ModuleName: "m", Filename: "m.py", Timestamp: 1})

	assert.Empty(t, store.GetAllEdges(), "self-edges must be skipped")
}

// Instrumentation exclude patterns keep an event out of the queue
// entirely, mirroring the filter graph_core/dynamic/import_hook.py
// applied before enqueuing.
func TestIngestor_ExcludePatternDropsEventBeforeEnqueue(t *testing.T) {
	store := graph.New()
	in := New(store)
	in.SetInstrumentationFilters(nil, []string{"**/vendor/**"})

	require.NoError(t, in.Enqueue(context.Background(), types.FunctionCallEvent{
		FunctionName: "f", ModuleName: "m", Filename: "vendor/pkg/m.py", Timestamp: 1,
	}))

	assert.Empty(t, in.queue, "excluded event must never reach the queue")
}

// A non-empty include list narrows admission to only matching filenames.
func TestIngestor_IncludePatternNarrowsAdmission(t *testing.T) {
	store := graph.New()
	in := New(store)
	in.SetInstrumentationFilters([]string{"src/**"}, nil)

	require.NoError(t, in.Enqueue(context.Background(), types.FunctionCallEvent{
		FunctionName: "f", ModuleName: "m", Filename: "other/m.py", Timestamp: 1,
	}))
	assert.Empty(t, in.queue)

	require.NoError(t, in.Enqueue(context.Background(), types.FunctionCallEvent{
		FunctionName: "f", ModuleName: "m", Filename: "src/m.py", Timestamp: 1,
	}))
	assert.Len(t, in.queue, 1)
}

func TestIngestor_EnqueueAndRunDrainsQueue(t *testing.T) {
	store := graph.New()
	in := New(store)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go in.Run(ctx, 5*time.Millisecond)

	require.NoError(t, in.Enqueue(ctx, types.FunctionCallEvent{FunctionName: "f", ModuleName: "m", Filename: "m.py", Timestamp: 1}))

	require.Eventually(t, func() bool {
		return store.GetNode("function:m.f") != nil
	}, time.Second, 5*time.Millisecond)
}

// Package dynamic implements the Dynamic Ingestor: a bounded queue of
// observed runtime function calls that get merged into the Graph Store
// alongside the statically parsed graph. See SPEC_FULL.md §4.5.
package dynamic

import (
	"context"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/standardbeagle/graphsyncd/internal/debug"
	"github.com/standardbeagle/graphsyncd/internal/graph"
	"github.com/standardbeagle/graphsyncd/internal/types"
)

const queueCapacity = 1024

// Ingestor drains a bounded channel of FunctionCallEvent and merges each
// into the Graph Store per spec.md §4.5's three steps.
type Ingestor struct {
	store    *graph.Store
	queue    chan types.FunctionCallEvent
	onEvent  func(types.FunctionCallEvent) // optional listener, e.g. for metrics/logging
	includes []string
	excludes []string
}

// New creates an Ingestor bound to store.
func New(store *graph.Store) *Ingestor {
	return &Ingestor{
		store: store,
		queue: make(chan types.FunctionCallEvent, queueCapacity),
	}
}

// SetInstrumentationFilters configures the include/exclude glob patterns
// (instrumentation_include_patterns/instrumentation_exclude_patterns) a
// call event's Filename must satisfy to be enqueued at all, matching the
// filter the original graph_core/dynamic/import_hook.py applied before
// ever placing an event on its queue. Reuses the same glob matcher the
// Watcher uses for directory exclusion rather than a second
// pattern-matching implementation.
func (in *Ingestor) SetInstrumentationFilters(includes, excludes []string) {
	in.includes = includes
	in.excludes = excludes
}

func (in *Ingestor) admits(filename string) bool {
	for _, pattern := range in.excludes {
		if ok, _ := doublestar.Match(pattern, filename); ok {
			return false
		}
	}
	if len(in.includes) == 0 {
		return true
	}
	for _, pattern := range in.includes {
		if ok, _ := doublestar.Match(pattern, filename); ok {
			return true
		}
	}
	return false
}

// OnEvent registers a callback invoked after every ingested event,
// letting a caller (e.g. the CLI) observe ingestion without polling the
// store itself.
func (in *Ingestor) OnEvent(fn func(types.FunctionCallEvent)) {
	in.onEvent = fn
}

// Enqueue submits one observed call. It blocks if the queue is full,
// applying natural backpressure to the instrumentation source rather
// than dropping events silently.
func (in *Ingestor) Enqueue(ctx context.Context, ev types.FunctionCallEvent) error {
	if !in.admits(ev.Filename) {
		return nil
	}
	select {
	case in.queue <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run drains the queue until ctx is canceled, applying pollInterval as
// an idle-wait between drains when the queue is momentarily empty — the
// default 0.5s cadence spec.md §6 names for dynamic_poll_interval_seconds.
func (in *Ingestor) Run(ctx context.Context, pollInterval time.Duration) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-in.queue:
			in.ingest(ev)
		case <-ticker.C:
			// Drain any events that arrived between ticks without
			// blocking the loop on a single Enqueue.
			in.drainAvailable()
		}
	}
}

func (in *Ingestor) drainAvailable() {
	for {
		select {
		case ev := <-in.queue:
			in.ingest(ev)
		default:
			return
		}
	}
}

// ingest applies spec.md §4.5's three steps for one event.
func (in *Ingestor) ingest(ev types.FunctionCallEvent) {
	moduleSeg := lastSegment(ev.ModuleName, ".")
	funcName := lastSegment(ev.FunctionName, ".")
	targetID := "function:" + moduleSeg + "." + funcName

	node := in.store.EnsureFunctionNode(targetID, funcName, ev.Filename)
	in.store.IncrementDynamicCallCount(targetID)

	if parent := parentSegment(ev.FunctionName); parent != "" && parent != funcName {
		parentID := "function:" + moduleSeg + "." + parent
		in.store.EnsureFunctionNode(parentID, parent, ev.Filename)
		if parentID != targetID {
			in.store.UpsertDynamicCallEdge(parentID, targetID, ev.Timestamp)
		}
	}

	debug.LogDynamic("ingested call %s (node %s, count now recorded)", ev.FunctionName, node.ID)

	if in.onEvent != nil {
		in.onEvent(ev)
	}
}

// lastSegment returns the final dot-separated component of s.
func lastSegment(s, sep string) string {
	if i := strings.LastIndex(s, sep); i >= 0 {
		return s[i+len(sep):]
	}
	return s
}

// parentSegment returns the qualified name's parent segment (e.g.
// "outer" from "outer.inner"), or "" if the name is unqualified.
func parentSegment(qualified string) string {
	i := strings.LastIndex(qualified, ".")
	if i < 0 {
		return ""
	}
	return lastSegment(qualified[:i], ".")
}

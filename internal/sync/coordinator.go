// Package sync implements the Sync Coordinator: the single on_event
// entry point that debounces created/deleted pairs into renames, drives
// parse + diff + store update, applies in-place function-rename updates,
// and serializes events per path. See SPEC_FULL.md §4.4.
package sync

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/singleflight"

	"github.com/standardbeagle/graphsyncd/internal/config"
	"github.com/standardbeagle/graphsyncd/internal/debug"
	"github.com/standardbeagle/graphsyncd/internal/graph"
	"github.com/standardbeagle/graphsyncd/internal/parser"
	"github.com/standardbeagle/graphsyncd/internal/rename"
	"github.com/standardbeagle/graphsyncd/internal/types"
)

// EventKind is the kind of file event the watcher reports.
type EventKind int

const (
	Created EventKind = iota
	Modified
	Deleted
	Renamed
)

const ringCapacity = 100

// parseCacheEntry holds the last successful parse of a path, including
// its raw bytes, so a later modify/delete can build the Rename
// Detector's "old AST"/old content inputs without a second disk read of
// content that may already be gone (spec.md §4.4 modified/deleted rules).
type parseCacheEntry struct {
	result  *types.ParseResult
	content []byte
}

// Coordinator is the Sync Coordinator: it owns the rename-inference ring
// buffers and the serialization discipline, and drives the Graph Store
// and Parser Facade in response to file events.
type Coordinator struct {
	store    *graph.Store
	parsers  *parser.Registry
	detector *rename.Detector
	cfg      *config.Config

	mu         chan struct{} // binary semaphore guarding ring buffers + cache
	deleted    *ring
	created    *ring
	parseCache map[string]parseCacheEntry

	sf singleflight.Group

	window time.Duration
}

// New builds a Coordinator. cfg supplies the rename window and
// extensions the Sync Coordinator will process.
func New(store *graph.Store, parsers *parser.Registry, detector *rename.Detector, cfg *config.Config) *Coordinator {
	c := &Coordinator{
		store:      store,
		parsers:    parsers,
		detector:   detector,
		cfg:        cfg,
		mu:         make(chan struct{}, 1),
		deleted:    newRing(ringCapacity),
		created:    newRing(ringCapacity),
		parseCache: make(map[string]parseCacheEntry),
		window:     time.Duration(cfg.RenameWindowSeconds * float64(time.Second)),
	}
	c.mu <- struct{}{}
	return c
}

func (c *Coordinator) lock()   { <-c.mu }
func (c *Coordinator) unlock() { c.mu <- struct{}{} }

// OnEvent is the watcher-facing entry point (spec.md §4.4). Events for
// the same path are serialized via singleflight keyed by path; events
// for distinct paths proceed concurrently.
func (c *Coordinator) OnEvent(ctx context.Context, kind EventKind, path string, renameOld string) error {
	_, err, _ := c.sf.Do(path, func() (interface{}, error) {
		return nil, c.dispatch(ctx, kind, path, renameOld)
	})
	return err
}

func (c *Coordinator) dispatch(ctx context.Context, kind EventKind, path, renameOld string) error {
	switch kind {
	case Created:
		return c.onCreated(ctx, path)
	case Modified:
		return c.onModified(ctx, path)
	case Deleted:
		return c.onDeleted(path)
	case Renamed:
		return c.onRenamed(renameOld, path)
	}
	return nil
}

func (c *Coordinator) onCreated(ctx context.Context, path string) error {
	if !c.cfg.SupportsExtension(filepath.Ext(path)) {
		return nil
	}

	content, hash := bestEffortRead(path)

	c.lock()
	c.created.push(ringEntry{path: path, at: time.Now(), content: content, contentHash: hash})
	deletedEntries := c.deleted.within(c.window, time.Now())
	createdEntries := c.created.within(c.window, time.Now())
	c.unlock()

	pairs := c.detector.MatchFiles(toTimestamped(deletedEntries), toTimestamped(createdEntries))
	for _, p := range pairs {
		if p.New != path {
			continue
		}
		if err := c.store.RenameFile(p.Old, p.New); err != nil {
			return err
		}
		c.lock()
		c.deleted.remove(p.Old)
		c.created.remove(p.New)
		if cached, ok := c.parseCache[p.Old]; ok {
			c.parseCache[p.New] = cached
			delete(c.parseCache, p.Old)
		}
		c.unlock()
		debug.LogSync("rename_file %s -> %s (score %.2f)", p.Old, p.New, p.Score)
		return nil
	}

	return c.parseAndUpsert(ctx, path)
}

func (c *Coordinator) onModified(ctx context.Context, path string) error {
	if !c.cfg.SupportsExtension(filepath.Ext(path)) {
		return nil
	}

	c.lock()
	oldEntry := c.parseCache[path]
	c.unlock()

	result, err := c.parsers.Parse(ctx, path)
	if err != nil {
		debug.LogSync("parse failed for %s, treating as empty: %v", path, err)
		result = &types.ParseResult{}
	}

	oldSigs := buildSignatures(oldEntry.result)
	newSigs := buildSignatures(result)
	matches := c.detector.MatchFunctions(oldSigs, newSigs)

	if len(matches) > 0 {
		rewrite := make(map[string]string, len(matches))
		for _, m := range matches {
			if err := c.store.ApplyFunctionRename(m.OldID, m.New); err != nil {
				debug.LogSync("function rename %s -> %s failed: %v", m.OldID, m.NewID, err)
				continue
			}
			rewrite[m.NewID] = m.OldID
		}

		// Matched nodes keep their old id, so upsert_file merges them into
		// the renamed node instead of releasing it as no longer produced.
		for _, n := range result.Nodes {
			if to, ok := rewrite[n.ID]; ok {
				n.ID = to
			}
		}

		for _, e := range result.Edges {
			if to, ok := rewrite[e.Source]; ok {
				e.Source = to
			}
			if to, ok := rewrite[e.Target]; ok {
				e.Target = to
			}
		}
	}

	if err := c.store.UpsertFile(path, result); err != nil {
		return err
	}

	content, _ := os.ReadFile(path)
	c.lock()
	c.parseCache[path] = parseCacheEntry{result: result, content: content}
	c.unlock()
	return nil
}

func (c *Coordinator) onDeleted(path string) error {
	if !c.cfg.SupportsExtension(filepath.Ext(path)) {
		return nil
	}

	c.lock()
	cached := c.parseCache[path]
	content := cached.content
	hash := ""
	if content != nil {
		hash = contentHash(content)
	}
	c.deleted.push(ringEntry{path: path, at: time.Now(), content: content, contentHash: hash})
	deletedEntries := c.deleted.within(c.window, time.Now())
	createdEntries := c.created.within(c.window, time.Now())
	c.unlock()

	pairs := c.detector.MatchFiles(toTimestamped(deletedEntries), toTimestamped(createdEntries))
	for _, p := range pairs {
		if p.Old == path {
			// The matching created(p.New) handling consumes this pair.
			return nil
		}
	}

	c.lock()
	delete(c.parseCache, path)
	c.unlock()
	return c.store.RemoveFile(path)
}

func (c *Coordinator) onRenamed(oldPath, newPath string) error {
	if err := c.store.RenameFile(oldPath, newPath); err != nil {
		return err
	}
	c.lock()
	if cached, ok := c.parseCache[oldPath]; ok {
		c.parseCache[newPath] = cached
		delete(c.parseCache, oldPath)
	}
	c.unlock()
	return nil
}

func (c *Coordinator) parseAndUpsert(ctx context.Context, path string) error {
	result, err := c.parsers.Parse(ctx, path)
	if err != nil {
		debug.LogSync("parse failed for %s, treating as empty: %v", path, err)
		result = &types.ParseResult{}
	}
	if err := c.store.UpsertFile(path, result); err != nil {
		return err
	}
	content, _ := os.ReadFile(path)
	c.lock()
	c.parseCache[path] = parseCacheEntry{result: result, content: content}
	c.unlock()
	return nil
}

func buildSignatures(pr *types.ParseResult) []rename.FunctionSignature {
	if pr == nil {
		return nil
	}
	out := make([]rename.FunctionSignature, 0, len(pr.Nodes))
	for _, n := range pr.Nodes {
		if n.Kind == types.KindFunction {
			out = append(out, rename.FunctionSignature{Node: n, Body: n.Body, ParamCount: n.ParamCount})
		}
	}
	return out
}

func toTimestamped(entries []ringEntry) []rename.TimestampedPath {
	out := make([]rename.TimestampedPath, 0, len(entries))
	for _, e := range entries {
		out = append(out, rename.TimestampedPath{
			Path:         e.path,
			TimestampSec: float64(e.at.UnixNano()) / float64(time.Second),
			Content:      e.content,
			ContentHash:  e.contentHash,
		})
	}
	return out
}

func bestEffortRead(path string) (content []byte, hash string) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, ""
	}
	return content, contentHash(content)
}

func contentHash(content []byte) string {
	return strconv.FormatUint(xxhash.Sum64(content), 16)
}

// Package parser implements the Parser Facade: dispatching a file path
// to a concrete language parser and normalizing its AST into a
// ParseResult of nodes and edges using the id conventions of the data
// model (module:<path>, class:<name>, function:<module>.<name>,
// import:<target>).
package parser

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/cespare/xxhash/v2"

	"github.com/standardbeagle/graphsyncd/internal/config"
	"github.com/standardbeagle/graphsyncd/internal/types"
)

// Parser converts one file's contents into a ParseResult. Implementations
// must be idempotent and side-effect free: parsing unchanged content
// twice yields observationally identical results.
type Parser interface {
	Parse(ctx context.Context, path string) (*types.ParseResult, error)
}

// Registry dispatches a path to the Parser registered for its extension.
type Registry struct {
	byExt map[string]Parser
}

// NewRegistry builds a Registry with one concrete tree-sitter-backed
// parser per extension cfg allows, per spec.md §4.2 ("extensible").
// Extensions the underlying grammar setup failed to initialize (the
// go-tree-sitter Go binding's typed-nil-error quirk, kept from the
// teacher's setup functions) are silently absent from the registry, and
// ParserFor reports them as unsupported rather than panicking.
func NewRegistry(cfg *config.Config) *Registry {
	r := &Registry{byExt: make(map[string]Parser)}

	if p := newPythonParser(); p != nil {
		r.register(".py", p)
	}
	if p := newJavaScriptParser(); p != nil {
		r.register(".js", p)
		r.register(".jsx", p)
	}
	if p := newTypeScriptParser(false); p != nil {
		r.register(".ts", p)
	}
	if p := newTypeScriptParser(true); p != nil {
		r.register(".tsx", p)
	}

	for ext := range r.byExt {
		if !cfg.SupportsExtension(ext) {
			delete(r.byExt, ext)
		}
	}
	return r
}

func (r *Registry) register(ext string, p Parser) {
	r.byExt[ext] = p
}

// ParserFor returns the parser registered for path's extension. A file
// with no supported extension yields ok=false; the Sync Coordinator
// ignores such paths per spec.md §4.2.
func (r *Registry) ParserFor(path string) (Parser, bool) {
	p, ok := r.byExt[extOf(path)]
	return p, ok
}

// Parse looks up the parser for path and runs it. Callers that already
// hold a Parser from ParserFor may call it directly; the Sync
// Coordinator calls Parse for every file it parses.
func (r *Registry) Parse(ctx context.Context, path string) (*types.ParseResult, error) {
	p, ok := r.ParserFor(path)
	if !ok {
		return nil, fmt.Errorf("parser: no parser registered for %s", path)
	}
	return p.Parse(ctx, path)
}

// readAndHash reads path and returns its bytes plus a hex-encoded xxhash,
// the module node's content_hash per spec.md §3.
func readAndHash(path string) ([]byte, string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, "", err
	}
	sum := xxhash.Sum64(content)
	return content, strconv.FormatUint(sum, 16), nil
}

// minimalResult is the fallback ParseResult spec.md §4.2 requires on
// parse failure: just a module node so the store still records the
// file's existence.
func minimalResult(path string) *types.ParseResult {
	return &types.ParseResult{
		Nodes: []*types.Node{
			{
				ID:       moduleID(path),
				Kind:     types.KindModule,
				Name:     moduleSegment(path),
				Filepath: path,
				Files:    map[string]struct{}{path: {}},
			},
		},
	}
}

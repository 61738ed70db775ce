package parser

import (
	"context"
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_javascript "github.com/tree-sitter/tree-sitter-javascript/bindings/go"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"
	tree_sitter_typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"

	"github.com/standardbeagle/graphsyncd/internal/types"
)

// treeSitterParser is the shared shape of every concrete language
// parser: a configured grammar plus a query that tags the AST nodes the
// extract function below turns into graph nodes/edges. Grounded on the
// teacher's TreeSitterParser setup*() methods, narrowed to the five
// captures this engine's data model needs: function, method, class,
// import, call.
type treeSitterParser struct {
	language *tree_sitter.Language
	query    *tree_sitter.Query
	extract  func(capture string, node *tree_sitter.Node, content []byte, moduleSeg, path string, pr *types.ParseResult, moduleNodeID string)
}

func newParser(language *tree_sitter.Language, queryStr string, extract func(capture string, node *tree_sitter.Node, content []byte, moduleSeg, path string, pr *types.ParseResult, moduleNodeID string)) *treeSitterParser {
	// The go-tree-sitter Go binding can return a typed-nil error even on
	// success; query itself is the only reliable success signal.
	query, _ := tree_sitter.NewQuery(language, queryStr)
	if query == nil {
		return nil
	}
	return &treeSitterParser{language: language, query: query, extract: extract}
}

// Parse reads path, runs the grammar, and walks the query captures into
// a ParseResult. A read or grammar failure yields the minimal
// module-only result spec.md §4.2 requires rather than an error, so the
// store still records the file's existence.
func (t *treeSitterParser) Parse(ctx context.Context, path string) (*types.ParseResult, error) {
	content, hash, err := readAndHash(path)
	if err != nil {
		return minimalResult(path), nil
	}

	parser := tree_sitter.NewParser()
	defer parser.Close()
	if err := parser.SetLanguage(t.language); err != nil {
		return minimalResult(path), nil
	}

	tree := parser.Parse(content, nil)
	if tree == nil {
		return minimalResult(path), nil
	}
	defer tree.Close()

	moduleSeg := moduleSegment(path)
	modID := moduleID(path)

	pr := &types.ParseResult{
		Nodes: []*types.Node{
			{
				ID:          modID,
				Kind:        types.KindModule,
				Name:        moduleSeg,
				Filepath:    path,
				Files:       map[string]struct{}{path: {}},
				ContentHash: hash,
			},
		},
	}

	qc := tree_sitter.NewQueryCursor()
	defer qc.Close()

	matches := qc.Matches(t.query, tree.RootNode(), content)
	captureNames := t.query.CaptureNames()
	for {
		match := matches.Next()
		if match == nil {
			break
		}
		for _, c := range match.Captures {
			name := captureNames[c.Index]
			// Only dispatch on the outer captures (function, method,
			// class, import, call); .name sub-captures are read by field
			// lookup inside extract, matching the teacher's approach.
			if strings.Contains(name, ".") {
				continue
			}
			node := c.Node
			t.extract(name, &node, content, moduleSeg, path, pr, modID)
		}
	}

	return pr, nil
}

// lastDotSegment returns the final dot-separated component of a callee
// expression's text (e.g. "self.repo" -> "repo", "obj.method" ->
// "method"), matching spec.md's name-only identifier matching: without
// type resolution, a qualified callee is attributed to its bare name.
func lastDotSegment(s string) string {
	if i := strings.LastIndex(s, "."); i >= 0 {
		return s[i+1:]
	}
	return s
}

func nodeText(n *tree_sitter.Node, content []byte) string {
	if n == nil {
		return ""
	}
	return string(content[n.StartByte():n.EndByte()])
}

func nodeSpan(n *tree_sitter.Node) *types.Span {
	start := n.StartPosition()
	end := n.EndPosition()
	return &types.Span{
		StartLine: int(start.Row) + 1,
		StartCol:  int(start.Column) + 1,
		EndLine:   int(end.Row) + 1,
		EndCol:    int(end.Column) + 1,
	}
}

// addContainment records that the enclosing module/class contains a
// member, and the member is member_of the enclosing scope, mirroring
// the contains/member_of pair spec.md §3 lists as distinct edge types.
func addContainment(pr *types.ParseResult, parentID, childID, path string) {
	pr.Edges = append(pr.Edges,
		&types.Edge{Source: parentID, Target: childID, Type: types.EdgeContains, File: path},
		&types.Edge{Source: childID, Target: parentID, Type: types.EdgeMemberOf, File: path},
	)
}

func newPythonParser() Parser {
	lang := tree_sitter.NewLanguage(tree_sitter_python.Language())
	const queryStr = `
        (class_definition
            body: (block
                (function_definition name: (identifier) @method.name) @method))
        (function_definition name: (identifier) @function.name) @function
        (class_definition name: (identifier) @class.name) @class
        (import_statement) @import
        (import_from_statement) @import
        (call) @call
    `
	p := newParser(lang, queryStr, extractPythonCapture)
	if p == nil {
		return nil
	}
	return p
}

func newJavaScriptParser() Parser {
	lang := tree_sitter.NewLanguage(tree_sitter_javascript.Language())
	const queryStr = `
        (function_declaration name: (identifier) @function.name) @function
        (generator_function_declaration name: (identifier) @function.name) @function
        (variable_declarator
            name: (identifier) @function.name
            value: [(arrow_function) (function_expression) (generator_function)]) @function
        (method_definition name: (property_identifier) @method.name) @method
        (class_declaration name: (identifier) @class.name) @class
        (import_statement source: (string) @import.source) @import
        (call_expression) @call
    `
	p := newParser(lang, queryStr, extractJSFamilyCapture)
	if p == nil {
		return nil
	}
	return p
}

func newTypeScriptParser(tsx bool) Parser {
	langPtr := tree_sitter_typescript.LanguageTypescript()
	if tsx {
		langPtr = tree_sitter_typescript.LanguageTSX()
	}
	lang := tree_sitter.NewLanguage(langPtr)
	const queryStr = `
        (function_declaration name: (identifier) @function.name) @function
        (generator_function_declaration name: (identifier) @function.name) @function
        (method_definition name: (property_identifier) @method.name) @method
        (class_declaration name: (type_identifier) @class.name) @class
        (import_statement source: (string) @import.source) @import
        (call_expression) @call
    `
	p := newParser(lang, queryStr, extractJSFamilyCapture)
	if p == nil {
		return nil
	}
	return p
}

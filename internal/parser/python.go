package parser

import (
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/standardbeagle/graphsyncd/internal/types"
)

// extractPythonCapture converts one query capture from the Python grammar
// into nodes/edges, grounded on the teacher's setupPython() query shape
// (class_definition/function_definition/import_statement).
func extractPythonCapture(capture string, node *tree_sitter.Node, content []byte, moduleSeg, path string, pr *types.ParseResult, moduleNodeID string) {
	switch capture {
	case "function":
		name := fieldText(node, "name", content)
		if name == "" {
			return
		}
		id := functionID(moduleSeg, name)
		pr.Nodes = append(pr.Nodes, &types.Node{
			ID: id, Kind: types.KindFunction, Name: name, Filepath: path, Span: nodeSpan(node),
			Body: functionBody(node, content), ParamCount: countParams(node, content),
		})
		addContainment(pr, moduleNodeID, id, path)

	case "class":
		name := fieldText(node, "name", content)
		if name == "" {
			return
		}
		id := classID(name)
		pr.Nodes = append(pr.Nodes, &types.Node{
			ID: id, Kind: types.KindClass, Name: name, Filepath: path, Span: nodeSpan(node),
		})
		addContainment(pr, moduleNodeID, id, path)
		for _, base := range pythonSuperclasses(node, content) {
			baseID := classID(base)
			pr.Nodes = append(pr.Nodes, &types.Node{ID: baseID, Kind: types.KindClass, Name: base, Filepath: path})
			pr.Edges = append(pr.Edges, &types.Edge{Source: id, Target: baseID, Type: types.EdgeInherits, File: path})
		}

	case "method":
		// The query captures the function_definition inside a class body
		// as @method; its grandparent (block -> class_definition) names
		// the class.
		var cls *tree_sitter.Node
		if block := node.Parent(); block != nil {
			cls = block.Parent()
		}
		if cls == nil || cls.Kind() != "class_definition" {
			return
		}
		name := fieldText(node, "name", content)
		className := fieldText(cls, "name", content)
		if name == "" || className == "" {
			return
		}
		id := functionID(moduleSeg, name)
		pr.Nodes = append(pr.Nodes, &types.Node{
			ID: id, Kind: types.KindFunction, Name: name, Filepath: path, Span: nodeSpan(node),
			Body: functionBody(node, content), ParamCount: countParams(node, content),
		})
		addContainment(pr, classID(className), id, path)

	case "import":
		for _, target := range pythonImportTargets(node, content) {
			id := importID(target)
			pr.Nodes = append(pr.Nodes, &types.Node{
				ID: id, Kind: types.KindImport, Name: target, Filepath: path,
			})
			pr.Edges = append(pr.Edges, &types.Edge{
				Source: moduleNodeID, Target: id, Type: types.EdgeImports, File: path,
			})
		}

	case "call":
		calleeName := lastDotSegment(fieldText(node, "function", content))
		if calleeName == "" {
			return
		}
		callerID := enclosingPythonFunctionID(node, moduleSeg, content)
		if callerID == "" {
			// Module-level calls (outside any function) are not tracked,
			// matching the original analyzer's parent_id-gated emission.
			return
		}
		targetID := functionID(moduleSeg, calleeName)
		pr.Edges = append(pr.Edges, &types.Edge{Source: callerID, Target: targetID, Type: types.EdgeCalls, File: path})
	}
}

// enclosingPythonFunctionID walks up from a call node to the nearest
// enclosing function_definition (including methods, which the grammar
// represents the same way) and returns its node id, or "" if the call
// sits at module scope.
func enclosingPythonFunctionID(node *tree_sitter.Node, moduleSeg string, content []byte) string {
	for p := node.Parent(); p != nil; p = p.Parent() {
		if p.Kind() == "function_definition" {
			name := fieldText(p, "name", content)
			if name == "" {
				return ""
			}
			return functionID(moduleSeg, name)
		}
	}
	return ""
}

// pythonImportTargets extracts dotted module names from "import a.b, c"
// or "from a.b import c" statements, per the text between the import
// keyword and the colon/newline. The grammar exposes these as
// dotted_name / aliased_import children rather than a single field, so
// we walk children rather than relying on ChildByFieldName.
func pythonImportTargets(node *tree_sitter.Node, content []byte) []string {
	if node.Kind() == "import_from_statement" {
		// "from X import ..." form: module_name field names X directly.
		if moduleNode := node.ChildByFieldName("module_name"); moduleNode != nil {
			return []string{nodeText(moduleNode, content)}
		}
		return nil
	}
	var targets []string
	count := int(node.ChildCount())
	for i := 0; i < count; i++ {
		child := node.Child(uint(i))
		if child == nil {
			continue
		}
		switch child.Kind() {
		case "dotted_name":
			targets = append(targets, nodeText(child, content))
		case "aliased_import":
			if nameNode := child.ChildByFieldName("name"); nameNode != nil {
				targets = append(targets, nodeText(nameNode, content))
			}
		}
	}
	return targets
}

// pythonSuperclasses extracts the identifier bases from a class's
// argument_list, e.g. "class Dog(Animal, Mixin):" -> ["Animal", "Mixin"],
// grounded on the teacher's PythonAnalyzer.AnalyzeExtends.
func pythonSuperclasses(node *tree_sitter.Node, content []byte) []string {
	args := node.ChildByFieldName("superclasses")
	if args == nil {
		return nil
	}
	var bases []string
	count := int(args.ChildCount())
	for i := 0; i < count; i++ {
		child := args.Child(uint(i))
		if child == nil {
			continue
		}
		if child.Kind() == "identifier" {
			bases = append(bases, nodeText(child, content))
		}
	}
	return bases
}

func fieldText(node *tree_sitter.Node, field string, content []byte) string {
	n := node.ChildByFieldName(field)
	if n == nil {
		return ""
	}
	return nodeText(n, content)
}

func findDescendant(node *tree_sitter.Node, kind string) *tree_sitter.Node {
	count := int(node.ChildCount())
	for i := 0; i < count; i++ {
		child := node.Child(uint(i))
		if child == nil {
			continue
		}
		if child.Kind() == kind {
			return child
		}
		if found := findDescendant(child, kind); found != nil {
			return found
		}
	}
	return nil
}

// functionBody is the source text of a function_definition's block body,
// the "body" half of the Rename Detector's composite similarity
// (spec.md §4.3 body_sim). Falls back to the whole node's text if the
// grammar exposes no separate body field.
func functionBody(node *tree_sitter.Node, content []byte) string {
	if body := node.ChildByFieldName("body"); body != nil {
		return nodeText(body, content)
	}
	return nodeText(node, content)
}

// countParams counts the top-level parameter children of a function's
// parameter list, used for param_count_sim.
func countParams(node *tree_sitter.Node, content []byte) int {
	params := node.ChildByFieldName("parameters")
	if params == nil {
		return 0
	}
	count := 0
	n := int(params.ChildCount())
	for i := 0; i < n; i++ {
		child := params.Child(uint(i))
		if child == nil {
			continue
		}
		switch child.Kind() {
		case "(", ")", ",":
			continue
		default:
			count++
		}
	}
	return count
}

func trimQuotes(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

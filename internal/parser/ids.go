package parser

import (
	"path"
	"strings"
)

// moduleID is the node id for a file's module node: spec.md's
// "module:<path>".
func moduleID(filePath string) string {
	return "module:" + filePath
}

// moduleSegment is the last path segment, extension stripped, used both
// as the module node's display name and as the qualifying prefix of a
// function id (spec.md §3, §4.5 "last-module-segment").
func moduleSegment(filePath string) string {
	base := path.Base(filePath)
	if ext := path.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	return base
}

// functionID builds "function:<module>.<name>" per spec.md §3.
func functionID(module, name string) string {
	return "function:" + module + "." + name
}

// classID builds "class:<name>" per spec.md §3.
func classID(name string) string {
	return "class:" + name
}

// importID builds "import:<target>" per spec.md §3.
func importID(target string) string {
	return "import:" + target
}

func extOf(filePath string) string {
	return path.Ext(filePath)
}

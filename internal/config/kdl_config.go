package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	kdl "github.com/sblinch/kdl-go"
	"github.com/sblinch/kdl-go/document"
)

// Load reads a ".graphsyncd.kdl" file at path and merges it over
// Default(). A missing file is not an error: it simply yields the
// defaults, mirroring the engine's stance that configuration errors are
// only ever about values the caller actually supplied.
func Load(path string) (*Config, error) {
	cfg := Default()

	content, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	doc, err := kdl.Parse(strings.NewReader(string(content)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse KDL config %s: %w", path, err)
	}

	for _, n := range doc.Nodes {
		switch nodeName(n) {
		case "watch_dir":
			if s, ok := firstStringArg(n); ok {
				cfg.WatchDir = s
			}
		case "storage_mode":
			if s, ok := firstStringArg(n); ok {
				cfg.StorageMode = StorageMode(s)
			}
		case "snapshot_path":
			if s, ok := firstStringArg(n); ok {
				cfg.SnapshotPath = s
			}
		case "supported_extensions":
			if exts := collectStringArgs(n); len(exts) > 0 {
				cfg.SupportedExtensions = exts
			}
		case "rename_window_seconds":
			if f, ok := firstFloatArg(n); ok {
				cfg.RenameWindowSeconds = f
			}
		case "file_similarity_threshold":
			if f, ok := firstFloatArg(n); ok {
				cfg.FileSimilarityThreshold = f
			}
		case "function_similarity_threshold":
			if f, ok := firstFloatArg(n); ok {
				cfg.FunctionSimilarityThreshold = f
			}
		case "dynamic_poll_interval_seconds":
			if f, ok := firstFloatArg(n); ok {
				cfg.DynamicPollIntervalSeconds = f
			}
		case "instrumentation_include_patterns":
			if pats := collectStringArgs(n); len(pats) > 0 {
				cfg.InstrumentationIncludePatterns = pats
			}
		case "instrumentation_exclude_patterns":
			if pats := collectStringArgs(n); len(pats) > 0 {
				cfg.InstrumentationExcludePatterns = pats
			}
		}
	}

	return cfg, nil
}

func nodeName(n *document.Node) string {
	if n == nil || n.Name == nil {
		return ""
	}
	return n.Name.NodeNameString()
}

func firstStringArg(n *document.Node) (string, bool) {
	if len(n.Arguments) == 0 {
		return "", false
	}
	if s, ok := n.Arguments[0].Value.(string); ok {
		return s, true
	}
	return "", false
}

func firstFloatArg(n *document.Node) (float64, bool) {
	if len(n.Arguments) == 0 {
		return 0, false
	}
	switch v := n.Arguments[0].Value.(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// collectStringArgs reads a list either from inline arguments
// (`supported_extensions ".py" ".js"`) or from child nodes
// (`exclude { "**/test/**" }`), matching the block forms the teacher's
// KDL config accepts.
func collectStringArgs(n *document.Node) []string {
	if n == nil {
		return nil
	}
	out := make([]string, 0, len(n.Arguments))
	for _, a := range n.Arguments {
		if s, ok := a.Value.(string); ok {
			out = append(out, s)
		}
	}
	if len(out) == 0 && len(n.Children) > 0 {
		for _, child := range n.Children {
			if s, ok := firstStringArg(child); ok {
				out = append(out, s)
			} else if child.Name != nil {
				if s, ok := child.Name.Value.(string); ok {
					out = append(out, s)
				}
			}
		}
	}
	return out
}

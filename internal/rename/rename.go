// Package rename implements the Rename Detector: matching deleted/created
// file pairs by content similarity, and matching renamed functions
// across a file's old and new parse by a composite body/line/param
// similarity. See SPEC_FULL.md §4.3.
package rename

import (
	"math"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hbollon/go-edlib"

	"github.com/standardbeagle/graphsyncd/internal/debug"
	"github.com/standardbeagle/graphsyncd/internal/types"
)

// Detector holds the configured similarity thresholds (spec.md §4.3
// τ_file, τ_fn) used by both matching problems.
type Detector struct {
	FileThreshold     float64
	FunctionThreshold float64
}

// New returns a Detector with the given thresholds.
func New(fileThreshold, functionThreshold float64) *Detector {
	return &Detector{FileThreshold: fileThreshold, FunctionThreshold: functionThreshold}
}

// TimestampedPath is one entry in a ring buffer of recently deleted or
// created paths (internal/sync keeps the buffers; this package only
// scores and matches).
type TimestampedPath struct {
	Path         string
	TimestampSec float64
	Content      []byte // nil if unreadable; treated as content-hash path
	ContentHash  string
}

// FilePair is one matched (old_path, new_path) rename.
type FilePair struct {
	Old   string
	New   string
	Score float64
}

// MatchFiles pairs deleted and created paths within window by similarity,
// resolving conflicts greedily by descending score (spec.md §4.3). It
// does not itself enforce the time window; callers (internal/sync) only
// pass entries already inside W before calling this.
func (d *Detector) MatchFiles(deleted, created []TimestampedPath) []FilePair {
	if len(deleted) == 1 && len(created) == 1 && deleted[0].Path != created[0].Path &&
		filepath.Ext(deleted[0].Path) == filepath.Ext(created[0].Path) {
		return []FilePair{{Old: deleted[0].Path, New: created[0].Path, Score: 1.0}}
	}

	type candidate struct {
		di, ci int
		score  float64
	}
	var candidates []candidate
	for di, del := range deleted {
		for ci, cre := range created {
			if del.Path == cre.Path {
				// The same path observed as both deleted and created within
				// the window is not a rename; it is the same file revisited
				// (e.g. a create immediately followed by a delete with no
				// later create to pair against).
				continue
			}
			if filepath.Ext(del.Path) != filepath.Ext(cre.Path) {
				continue
			}
			score := d.fileSimilarity(del, cre)
			if score >= d.FileThreshold {
				candidates = append(candidates, candidate{di, ci, score})
			}
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })

	usedD := make(map[int]bool)
	usedC := make(map[int]bool)
	var out []FilePair
	for _, c := range candidates {
		if usedD[c.di] || usedC[c.ci] {
			continue
		}
		usedD[c.di] = true
		usedC[c.ci] = true
		out = append(out, FilePair{Old: deleted[c.di].Path, New: created[c.ci].Path, Score: c.score})
	}
	return out
}

// fileSimilarity scores one delete/create pair. Textual content is
// compared by an LCS ratio (Ratcliff/Obershelp-style); content that
// looks binary, or that couldn't be read, falls back to exact
// content-hash equality. Read failures downgrade the score to 0 rather
// than raising (spec.md §4.3 failure semantics).
func (d *Detector) fileSimilarity(a, b TimestampedPath) float64 {
	if looksBinary(a.Content) || looksBinary(b.Content) || a.Content == nil || b.Content == nil {
		if a.ContentHash != "" && a.ContentHash == b.ContentHash {
			return 1.0
		}
		return 0.0
	}
	ratio, err := lcsRatio(string(a.Content), string(b.Content))
	if err != nil {
		debug.LogSync("rename: file similarity read failed, scoring 0: %v", err)
		return 0.0
	}
	return ratio
}

func looksBinary(content []byte) bool {
	if content == nil {
		return false
	}
	for _, b := range content {
		if b == 0 {
			return true
		}
	}
	return false
}

// lcsRatio returns go-edlib's LCS-based similarity of the two strings.
// It compares characters, not lines.
func lcsRatio(a, b string) (float64, error) {
	if a == b {
		return 1.0, nil
	}
	score, err := edlib.StringsSimilarity(a, b, edlib.Lcs)
	if err != nil {
		return 0, err
	}
	return float64(score), nil
}

// FunctionMatch is one old-id -> new-id function rename pairing.
type FunctionMatch struct {
	OldID string
	NewID string
	New   *types.Node
	Score float64
}

// FunctionSignature is the subset of a parsed function node the
// composite similarity needs beyond its Node (body text, param count).
type FunctionSignature struct {
	Node       *types.Node
	Body       string
	ParamCount int
}

// MatchFunctions pairs old and new function/method nodes with different
// names by the composite similarity of spec.md §4.3, keeping pairs
// scoring at or above FunctionThreshold and resolving conflicts greedily
// by descending score.
func (d *Detector) MatchFunctions(oldSigs, newSigs []FunctionSignature) []FunctionMatch {
	type candidate struct {
		oi, ni int
		score  float64
	}
	var candidates []candidate
	for oi, o := range oldSigs {
		if o.Node.Kind != types.KindFunction {
			continue
		}
		for ni, n := range newSigs {
			if n.Node.Kind != types.KindFunction {
				continue
			}
			if o.Node.Name == n.Node.Name {
				continue
			}
			score := d.functionSimilarity(o, n)
			if score >= d.FunctionThreshold {
				candidates = append(candidates, candidate{oi, ni, score})
			}
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })

	usedOld := make(map[int]bool)
	usedNew := make(map[int]bool)
	var out []FunctionMatch
	for _, c := range candidates {
		if usedOld[c.oi] || usedNew[c.ni] {
			continue
		}
		usedOld[c.oi] = true
		usedNew[c.ni] = true
		out = append(out, FunctionMatch{
			OldID: oldSigs[c.oi].Node.ID,
			NewID: newSigs[c.ni].Node.ID,
			New:   newSigs[c.ni].Node,
			Score: c.score,
		})
	}
	return out
}

func (d *Detector) functionSimilarity(o, n FunctionSignature) float64 {
	bodySim := 0.0
	if o.Body != "" && n.Body != "" {
		if ratio, err := lcsRatio(o.Body, n.Body); err == nil {
			bodySim = ratio
		} else {
			debug.LogSync("rename: function body similarity failed, scoring 0: %v", err)
		}
	}

	lineDelta := math.Abs(float64(spanLines(n.Node.Span) - spanLines(o.Node.Span)))
	lineSim := 1 / (1 + lineDelta)

	paramDelta := math.Abs(float64(n.ParamCount - o.ParamCount))
	paramSim := 1 / (1 + paramDelta)

	return 0.7*bodySim + 0.2*lineSim + 0.1*paramSim
}

func spanLines(sp *types.Span) int {
	if sp == nil {
		return 0
	}
	return sp.EndLine - sp.StartLine
}

// NormalizeExt returns path's extension in lower case. Nothing in this
// repository calls it; MatchFiles compares filepath.Ext directly.
func NormalizeExt(path string) string {
	return strings.ToLower(filepath.Ext(path))
}

package registry

import (
	"regexp"
	"strings"

	"github.com/ethereum-optimism/infra/op-testd/pathmatch"
)

// FileMap maps a normalized source-file path to the fully-qualified titles
// of the suites that file defines, in traversal order. It is derived from
// the suite tree on demand and never persisted.
type FileMap map[string][]string

// The fully-qualified title of a suite is its ancestors' titles and its
// own joined with single spaces, mirroring how the titles are addressed by
// grep patterns.
const titleSeparator = " "

// visit is called for every node with the node's resolved source file
// (inherited from the nearest tagged ancestor) and its fully-qualified
// title. The resolved file is threaded down the depth-first walk as an
// explicit parameter; nodes never hold parent links.
type visit func(n *SuiteNode, resolvedFile, qualifiedTitle string)

func walkTree(n *SuiteNode, inheritedFile, titlePrefix string, fn visit) {
	resolvedFile := inheritedFile
	if n.SourceFile != "" {
		resolvedFile = n.SourceFile
	}

	qualified := titlePrefix
	if n.Title != "" {
		if qualified != "" {
			qualified += titleSeparator
		}
		qualified += n.Title
		fn(n, resolvedFile, qualified)
	}

	for _, c := range n.Children {
		walkTree(c, resolvedFile, qualified, fn)
	}
}

// BuildFileMap walks the tree depth-first, pre-order, and collects the
// fully-qualified title of every node that has both a resolved file and a
// title under that file's normalized path.
func (r *Registry) BuildFileMap() FileMap {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fm := make(FileMap)
	walkTree(r.root, "", "", func(n *SuiteNode, file, qualified string) {
		if file == "" {
			return
		}
		key := pathmatch.Normalize(file)
		fm[key] = append(fm[key], qualified)
	})
	return fm
}

// SuitesForFile returns the fully-qualified titles of all suites whose
// resolved source file matches the given path pattern, with regex
// metacharacters escaped so each title can be embedded literally in a
// composed name filter. Traversal order is preserved.
func (r *Registry) SuitesForFile(pattern string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	normalized := pathmatch.Normalize(pattern)

	var titles []string
	walkTree(r.root, "", "", func(n *SuiteNode, file, qualified string) {
		if file == "" {
			return
		}
		if pathmatch.Matches(file, normalized) {
			titles = append(titles, regexp.QuoteMeta(qualified))
		}
	})
	return titles
}

// QualifiedTitles returns every fully-qualified suite title in traversal
// order, unescaped. The runner uses this as the candidate set a filter is
// evaluated against.
func (r *Registry) QualifiedTitles() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var titles []string
	walkTree(r.root, "", "", func(n *SuiteNode, file, qualified string) {
		titles = append(titles, qualified)
	})
	return titles
}

// LeafName returns the last component of a fully-qualified title.
func LeafName(qualified string) string {
	if i := strings.LastIndex(qualified, titleSeparator); i >= 0 {
		return qualified[i+len(titleSeparator):]
	}
	return qualified
}

package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Root is one entry of the search path: a directory or a zip archive of test binaries
type Root struct {
	Path    string
	Archive bool
}

// SearchPath is the ordered list of roots artifacts are resolved against.
// Earlier roots take precedence.
type SearchPath []Root

// ParseSearchPath splits a path-list string on the platform separator and
// resolves every segment to an absolute root. Empty segments are ignored.
func ParseSearchPath(path string) (SearchPath, error) {
	var roots SearchPath
	for _, segment := range filepath.SplitList(path) {
		segment = strings.TrimSpace(segment)
		if segment == "" {
			continue
		}
		abs, err := filepath.Abs(segment)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve absolute path for search path entry '%s': %w", segment, err)
		}
		roots = append(roots, Root{
			Path:    abs,
			Archive: strings.EqualFold(filepath.Ext(abs), ".zip"),
		})
	}
	if len(roots) == 0 {
		return nil, fmt.Errorf("search path %q contains no entries", path)
	}
	return roots, nil
}

// String renders the search path back into its path-list form
func (sp SearchPath) String() string {
	parts := make([]string, len(sp))
	for i, root := range sp {
		parts[i] = root.Path
	}
	return strings.Join(parts, string(os.PathListSeparator))
}

// candidateNames returns the relative file names an artifact may be stored
// under, in lookup order: the name itself, "<name>.test" and "<base>.test".
func candidateNames(name string) []string {
	name = strings.TrimSuffix(name, "/")
	base := name
	if idx := strings.LastIndex(name, "/"); idx != -1 {
		base = name[idx+1:]
	}

	var names []string
	seen := make(map[string]bool)
	for _, n := range []string{name, name + ".test", base + ".test"} {
		if n == "" || n == ".test" || seen[n] {
			continue
		}
		seen[n] = true
		names = append(names, n)
	}
	return names
}

// packageName derives the package label passed to test2json from an artifact name
func packageName(name string) string {
	return strings.TrimSuffix(strings.TrimSuffix(name, "/"), ".test")
}

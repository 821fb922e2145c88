package unipkg

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
)

// DefaultNativeExcludes are single-architecture intermediates left behind by
// a toolchain that builds every architecture in one go.
var DefaultNativeExcludes = []string{"*Objects-normal"}

// ExcludeFilter wraps next so that any path with a component matching one
// of patterns is excluded as well.
func ExcludeFilter(next CopyFilter, patterns ...string) (CopyFilter, error) {
	globs := make([]glob.Glob, 0, len(patterns))
	for _, pattern := range patterns {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, fmt.Errorf("compile exclude %q: %w", pattern, err)
		}
		globs = append(globs, g)
	}

	return func(path string) bool {
		if next != nil && next(path) {
			return true
		}
		path = filepath.ToSlash(path)
		for _, g := range globs {
			if g.Match(path) {
				return true
			}
			for _, part := range strings.Split(path, "/") {
				if part != "" && g.Match(part) {
					return true
				}
			}
		}
		return false
	}, nil
}

package lipo

import (
	"os"
	"path/filepath"
	"strings"
)

// Correlate returns the copies of src found in every variant root.
//
// variants are the variant roots relative to top, in variant order. src
// must live below top and below one of those roots; otherwise there is
// nothing to correlate and nil is returned. Only existing regular files are
// returned.
func Correlate(src, top string, variants []string) []string {
	if _, ok := relBelow(top, src); !ok {
		return nil
	}
	roots := make([]string, len(variants))
	for i, v := range variants {
		roots[i] = filepath.Join(top, v)
	}
	return CorrelateRoots(src, roots)
}

// CorrelateRoots is Correlate for variant roots given as paths of their own,
// wherever they live. src must live below one of roots.
func CorrelateRoots(src string, roots []string) []string {
	var suffix string
	found := false
	for _, root := range roots {
		if rest, ok := relBelow(filepath.Clean(root), src); ok {
			suffix = rest
			found = true
			break
		}
	}
	if !found {
		return nil
	}

	var paths []string
	for _, root := range roots {
		p := filepath.Join(root, suffix)
		if info, err := os.Stat(p); err == nil && info.Mode().IsRegular() {
			paths = append(paths, p)
		}
	}
	return paths
}

// relBelow returns path relative to base when path is strictly inside base.
func relBelow(base, path string) (string, bool) {
	rel, err := filepath.Rel(base, path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return rel, true
}

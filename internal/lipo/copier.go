package lipo

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	"go.uber.org/zap"

	"github.com/aweris/unipkg/internal/binfmt"
	"github.com/aweris/unipkg/internal/graft"
)

// Copier is a graft.CopyFunc factory that fuses binaries found in more than
// one variant and copies everything else.
type Copier struct {
	// Top is the package root the variants are staged under.
	Top string
	// Variants are the staged variant roots, relative to Top.
	Variants []string
	// Roots are further variant roots, which need not live below Top.
	Roots []string
	Fuser *Fuser
	Log   *zap.Logger
}

// CopyFunc binds ctx for the fusion command.
func (c *Copier) CopyFunc(ctx context.Context) graft.CopyFunc {
	return func(src, dst string) error {
		return c.Copy(ctx, src, dst)
	}
}

// Copy places src at dst. A failed fusion aborts the graft.
func (c *Copier) Copy(ctx context.Context, src, dst string) error {
	log := c.Log
	if log == nil {
		log = zap.NewNop()
	}

	info, err := os.Stat(src)
	if err != nil {
		return err
	}

	roots := c.roots()
	if info.Mode().IsRegular() && len(roots) > 0 {
		binary, err := binfmt.IsBinary(src)
		if err != nil {
			return err
		}
		if binary {
			if paths := CorrelateRoots(src, roots); len(paths) > 1 {
				log.Debug("fuse", zap.String("dst", dst), zap.Strings("srcs", paths))
				if err := c.Fuser.Fuse(ctx, dst, paths); err != nil {
					return graft.Abort(err)
				}
				return nil
			}
		}
	}

	if _, err := os.Lstat(dst); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return graft.CopyFile(src, dst)
}

// roots returns every variant root as a path, staged roots first.
func (c *Copier) roots() []string {
	var roots []string
	if c.Top != "" {
		for _, v := range c.Variants {
			roots = append(roots, filepath.Join(c.Top, v))
		}
	}
	for _, root := range c.Roots {
		if !slices.Contains(roots, root) {
			roots = append(roots, root)
		}
	}
	return roots
}

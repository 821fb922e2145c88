// Package graft merges one directory tree into another without ever
// overwriting what is already there.
//
// Unlike a plain recursive copy, an existing destination entry (file,
// directory or link) is skipped entirely: it is not compared, not
// descended into and not replaced. Running the same graft twice is a no-op
// the second time.
package graft

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"go.uber.org/zap"
)

// CopyFunc copies a single non-directory entry. dst does not exist when it
// is called.
type CopyFunc func(src, dst string) error

type options struct {
	copy        CopyFunc
	skip        func(rel string) bool
	symlinks    bool
	dirsExistOK bool
	log         *zap.Logger
}

// Option configures Graft.
type Option func(*options)

// WithCopyFunc replaces the default CopyFile strategy.
func WithCopyFunc(fn CopyFunc) Option {
	return func(o *options) {
		if fn != nil {
			o.copy = fn
		}
	}
}

// WithSkip leaves out every entry, and everything below it, for which fn
// returns true. fn receives the slash-separated path relative to src.
func WithSkip(fn func(rel string) bool) Option {
	return func(o *options) { o.skip = fn }
}

// WithSymlinks recreates symbolic links instead of copying what they point to.
func WithSymlinks(preserve bool) Option {
	return func(o *options) { o.symlinks = preserve }
}

// WithDirsExistOK allows the destination root to exist already.
func WithDirsExistOK(ok bool) Option {
	return func(o *options) { o.dirsExistOK = ok }
}

// WithLogger sets the logger used for per-entry debug output.
func WithLogger(log *zap.Logger) Option {
	return func(o *options) {
		if log != nil {
			o.log = log
		}
	}
}

type frame struct {
	src, dst string
	rel      string
	post     bool
}

type grafter struct {
	opts   options
	errs   []EntryError
	stack  []frame
	copies int
}

// Graft mirrors src into dst. Entries already present in dst win.
//
// Per-entry failures are collected and returned together as *Error once the
// whole tree has been walked. A CopyFunc error wrapped with Abort stops the
// walk and is returned as is.
func Graft(src, dst string, opts ...Option) error {
	o := options{copy: CopyFile, log: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	entries, err := os.ReadDir(src)
	if err != nil {
		return fmt.Errorf("read dir: %w", err)
	}

	if _, err := os.Lstat(dst); err == nil && !o.dirsExistOK {
		return fmt.Errorf("create %s: %w", dst, fs.ErrExist)
	}
	if err := os.MkdirAll(dst, 0755); err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}

	g := &grafter{opts: o}
	if err := g.walk(frame{src: src, dst: dst}, entries); err != nil {
		return err
	}

	g.opts.log.Debug("graft done",
		zap.String("src", src),
		zap.String("dst", dst),
		zap.Int("copied", g.copies),
		zap.Int("errors", len(g.errs)))

	if len(g.errs) > 0 {
		return &Error{Entries: g.errs}
	}
	return nil
}

func (g *grafter) walk(root frame, entries []fs.DirEntry) error {
	if err := g.visit(root, entries); err != nil {
		return err
	}

	for len(g.stack) > 0 {
		f := g.stack[len(g.stack)-1]
		g.stack = g.stack[:len(g.stack)-1]

		if f.post {
			g.copyDirMeta(f.src, f.dst)
			continue
		}

		entries, err := os.ReadDir(f.src)
		if err != nil {
			g.fail(f.src, f.dst, err)
			continue
		}
		if err := os.MkdirAll(f.dst, 0755); err != nil {
			g.fail(f.src, f.dst, err)
			continue
		}
		if err := g.visit(f, entries); err != nil {
			return err
		}
	}
	return nil
}

// visit handles the entries of one directory. Files and links are handled
// right away; subdirectories are pushed on top of the directory's own
// metadata frame so they finish first.
func (g *grafter) visit(dir frame, entries []fs.DirEntry) error {
	g.stack = append(g.stack, frame{src: dir.src, dst: dir.dst, post: true})

	for _, entry := range entries {
		srcName := filepath.Join(dir.src, entry.Name())
		dstName := filepath.Join(dir.dst, entry.Name())
		rel := path.Join(dir.rel, entry.Name())

		if g.opts.skip != nil && g.opts.skip(rel) {
			g.opts.log.Debug("skip excluded", zap.String("src", srcName))
			continue
		}

		if _, err := os.Lstat(dstName); err == nil {
			g.opts.log.Debug("skip existing", zap.String("dst", dstName))
			continue
		} else if !errors.Is(err, fs.ErrNotExist) {
			g.fail(srcName, dstName, err)
			continue
		}

		isLink := entry.Type()&fs.ModeSymlink != 0
		switch {
		case g.opts.symlinks && isLink:
			target, err := os.Readlink(srcName)
			if err != nil {
				g.fail(srcName, dstName, err)
				continue
			}
			if err := os.Symlink(target, dstName); err != nil {
				g.fail(srcName, dstName, err)
			}
		case entry.IsDir() || (isLink && isDir(srcName)):
			g.stack = append(g.stack, frame{src: srcName, dst: dstName, rel: rel})
		default:
			if err := g.opts.copy(srcName, dstName); err != nil {
				var abort *abortError
				if errors.As(err, &abort) {
					return abort.err
				}
				g.fail(srcName, dstName, err)
				continue
			}
			g.copies++
		}
	}
	return nil
}

func (g *grafter) copyDirMeta(src, dst string) {
	info, err := os.Stat(src)
	if err != nil {
		g.fail(src, dst, err)
		return
	}
	if err := chtimes(dst, info); err != nil {
		g.fail(src, dst, err)
	}
	if err := os.Chmod(dst, info.Mode().Perm()); err != nil {
		g.fail(src, dst, err)
	}
}

func (g *grafter) fail(src, dst string, err error) {
	g.opts.log.Debug("graft entry failed",
		zap.String("src", src),
		zap.String("dst", dst),
		zap.Error(err))
	g.errs = append(g.errs, EntryError{Src: src, Dst: dst, Err: err})
}

// CopyFile copies the content, permission bits and modification time of src
// to dst. Links are followed.
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}

	if err := chtimes(dst, info); err != nil {
		return err
	}
	return os.Chmod(dst, info.Mode().Perm())
}

// chtimes copies the modification time. Platforms that cannot set file
// times are not an error.
func chtimes(dst string, info fs.FileInfo) error {
	mtime := info.ModTime()
	if err := os.Chtimes(dst, mtime, mtime); err != nil && !errors.Is(err, errors.ErrUnsupported) {
		return err
	}
	return nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

package unipkg

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/aweris/unipkg/internal/graft"
	"github.com/aweris/unipkg/internal/lipo"
)

// Mode tells how a package was produced.
type Mode string

const (
	ModeSingle Mode = "single"
	ModeNative Mode = "native"
	ModeMerged Mode = "merged"
)

// Result describes a packaging run.
type Result struct {
	Mode     Mode
	Variants []Variant
}

// Stage is the packaging step of a host build pipeline. It decides whether
// a package has to be built per variant and merges the variant outputs into
// one universal package.
type Stage struct {
	host  Host
	gate  *Gate
	opts  *Options
	fuser *lipo.Fuser
}

func New(host Host, opts ...Option) *Stage {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}
	if options.Runner == nil {
		options.Runner = &lipo.ExecRunner{Log: options.Log}
	}

	return &Stage{
		host:  host,
		gate:  NewGate(host),
		opts:  options,
		fuser: &lipo.Fuser{Tool: options.FuseTool, Runner: options.Runner},
	}
}

func (s *Stage) Gate() *Gate { return s.gate }

// IsMergeable reports whether pkg is built once per variant and merged.
func (s *Stage) IsMergeable(pkg *Package) bool {
	return len(s.gate.Variants(pkg)) > 0
}

// AdjustedIdentity returns the identity of pkg. Packages handled per variant
// or by a native multi-arch toolchain get the host's variant-aware identity;
// everything else keeps def.
func (s *Stage) AdjustedIdentity(ctx context.Context, pkg *Package, def Identity) (Identity, error) {
	if !s.gate.IsBinary(pkg) {
		return def, nil
	}

	native := s.gate.NativeMultiArch(pkg)
	candidates := s.gate.Variants(pkg)
	if native {
		// One build covers every configured variant.
		candidates = pkg.Variants
	}
	variants, err := s.ordered(candidates)
	if err != nil {
		return "", err
	}
	if len(variants) == 0 && !native {
		return def, nil
	}

	id, err := s.host.VariantIdentity(ctx, pkg, variants)
	if err != nil {
		return "", fmt.Errorf("variant identity: %w", err)
	}
	return id, nil
}

// VariantRoot is where v is staged below packageRoot.
func (s *Stage) VariantRoot(packageRoot string, v Variant) string {
	return filepath.Join(packageRoot, s.opts.StagingDir, v.Name())
}

// Package builds pkg into packageRoot.
func (s *Stage) Package(ctx context.Context, pkg *Package, packageRoot string) (*Result, error) {
	log := s.opts.Log.With(zap.String("package", pkg.Ref()))

	if s.gate.IsBinary(pkg) && s.gate.NativeMultiArch(pkg) {
		filter, err := ExcludeFilter(nil, s.opts.NativeExcludes...)
		if err != nil {
			return nil, err
		}
		log.Info("native multi-arch toolchain, building once")
		if err := s.host.Package(ctx, pkg, packageRoot, filter); err != nil {
			return nil, fmt.Errorf("package %s: %w", pkg.Ref(), err)
		}
		return &Result{Mode: ModeNative}, nil
	}

	if !s.IsMergeable(pkg) {
		log.Info("single variant, building once")
		if err := s.host.Package(ctx, pkg, packageRoot, nil); err != nil {
			return nil, fmt.Errorf("package %s: %w", pkg.Ref(), err)
		}
		return &Result{Mode: ModeSingle}, nil
	}

	variants, err := s.ordered(s.gate.Variants(pkg))
	if err != nil {
		return nil, err
	}

	p := pool.New().WithMaxGoroutines(s.opts.Concurrency).WithContext(ctx).WithCancelOnError()
	for _, v := range variants {
		p.Go(func(ctx context.Context) error {
			log.Info("building variant", zap.String("variant", v.Name()))
			if err := s.host.BuildVariant(ctx, pkg, v, s.VariantRoot(packageRoot, v)); err != nil {
				return fmt.Errorf("build variant %s: %w", v.Name(), err)
			}
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}

	if err := s.Merge(ctx, packageRoot, variants); err != nil {
		return nil, err
	}
	return &Result{Mode: ModeMerged, Variants: variants}, nil
}

// Merge grafts the staged roots of variants into packageRoot in graft order
// and removes the staging folder.
func (s *Stage) Merge(ctx context.Context, packageRoot string, variants []Variant) error {
	ordered, err := s.ordered(variants)
	if err != nil {
		return err
	}
	roots := make([]string, len(ordered))
	for i, v := range ordered {
		roots[i] = s.VariantRoot(packageRoot, v)
	}
	return s.MergeRoots(ctx, packageRoot, roots)
}

// MergeRoots grafts every variant root into packageRoot, first root first.
// Binaries present in more than one root are fused.
//
// Per-entry failures of every root are collected and returned together; a
// fusion failure stops the merge right away. After a successful merge the
// roots that live inside packageRoot are removed, along with their staging
// parents once empty. A root whose own top level holds an entry named like
// such a staging parent is rejected with ErrStagingConflict before anything
// is merged, as that entry could never reach the package.
func (s *Stage) MergeRoots(ctx context.Context, packageRoot string, roots []string) error {
	top, err := filepath.Abs(packageRoot)
	if err != nil {
		return err
	}

	var staged, absRoots []string
	for _, root := range roots {
		abs, err := filepath.Abs(root)
		if err != nil {
			return err
		}
		absRoots = append(absRoots, abs)
		if rel, ok := below(top, abs); ok {
			staged = append(staged, rel)
		}
	}

	if err := checkStaging(absRoots, staged); err != nil {
		return err
	}

	copier := &lipo.Copier{Roots: absRoots, Fuser: s.fuser, Log: s.opts.Log}

	var errs []error
	for _, root := range absRoots {
		s.opts.Log.Debug("graft", zap.String("root", root), zap.String("dst", top))
		err := graft.Graft(root, top,
			graft.WithCopyFunc(copier.CopyFunc(ctx)),
			graft.WithSymlinks(s.opts.Symlinks),
			graft.WithDirsExistOK(true),
			graft.WithLogger(s.opts.Log))
		if err == nil {
			continue
		}
		var graftErr *graft.Error
		if !errors.As(err, &graftErr) {
			return fmt.Errorf("merge %s: %w", root, err)
		}
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return s.cleanup(top, staged)
}

// checkStaging rejects roots that carry an entry with the name of the
// top-level staging folder: the folder already exists in the package root,
// so the graft would skip the entry and cleanup would then delete it.
func checkStaging(roots, staged []string) error {
	var parents []string
	for _, rel := range staged {
		parent := strings.SplitN(rel, string(filepath.Separator), 2)[0]
		if !slices.Contains(parents, parent) {
			parents = append(parents, parent)
		}
	}
	for _, root := range roots {
		for _, parent := range parents {
			if _, err := os.Lstat(filepath.Join(root, parent)); err == nil {
				return fmt.Errorf("merge %s: %q: %w", root, parent, ErrStagingConflict)
			}
		}
	}
	return nil
}

func (s *Stage) cleanup(top string, staged []string) error {
	for _, rel := range staged {
		if err := os.RemoveAll(filepath.Join(top, rel)); err != nil {
			return fmt.Errorf("remove staging: %w", err)
		}
		for dir := filepath.Dir(rel); dir != "." && dir != string(filepath.Separator); dir = filepath.Dir(dir) {
			// Only succeeds once the directory is empty.
			if err := os.Remove(filepath.Join(top, dir)); err != nil {
				break
			}
		}
	}
	return nil
}

// ordered applies the configured graft order to variants.
func (s *Stage) ordered(variants []Variant) ([]Variant, error) {
	if len(s.opts.GraftOrder) == 0 || len(variants) == 0 {
		return variants, nil
	}

	out := make([]Variant, 0, len(variants))
	for _, name := range s.opts.GraftOrder {
		i := slices.IndexFunc(variants, func(v Variant) bool { return v.Name() == name })
		if i < 0 {
			return nil, fmt.Errorf("graft order %q: %w", name, ErrUnknownVariant)
		}
		if !slices.ContainsFunc(out, func(v Variant) bool { return v.Name() == name }) {
			out = append(out, variants[i])
		}
	}
	for _, v := range variants {
		if !slices.ContainsFunc(out, func(o Variant) bool { return o.Name() == v.Name() }) {
			out = append(out, v)
		}
	}
	return out, nil
}

func below(base, path string) (string, bool) {
	rel, err := filepath.Rel(base, path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return rel, true
}

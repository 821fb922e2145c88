package unipkg

import (
	"go.uber.org/zap"

	"github.com/aweris/unipkg/internal/lipo"
)

// DefaultStagingDir is the folder below the package root that holds one
// subfolder per variant while they are being merged.
const DefaultStagingDir = "variants"

// Options configures a Stage.
type Options struct {
	Log            *zap.Logger
	FuseTool       string
	Runner         lipo.Runner
	StagingDir     string
	GraftOrder     []string
	Concurrency    int
	Symlinks       bool
	NativeExcludes []string
}

// Option is a functional option for configuring New.
type Option func(*Options)

func defaultOptions() *Options {
	return &Options{
		Log:            zap.NewNop(),
		FuseTool:       lipo.DefaultTool,
		StagingDir:     DefaultStagingDir,
		Concurrency:    1,
		Symlinks:       true,
		NativeExcludes: DefaultNativeExcludes,
	}
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(o *Options) {
		if log != nil {
			o.Log = log
		}
	}
}

// WithFuseTool sets the fusion command (default "lipo").
func WithFuseTool(tool string) Option {
	return func(o *Options) {
		if tool != "" {
			o.FuseTool = tool
		}
	}
}

// WithRunner replaces the subprocess runner used for fusion.
func WithRunner(r lipo.Runner) Option {
	return func(o *Options) { o.Runner = r }
}

// WithStagingDir sets the per-variant staging folder name. Variant outputs
// must not have a top-level entry of that name; merging them fails with
// ErrStagingConflict.
func WithStagingDir(dir string) Option {
	return func(o *Options) {
		if dir != "" {
			o.StagingDir = dir
		}
	}
}

// WithGraftOrder moves the named variants to the front of the merge, in the
// given order. The first grafted variant wins every non-binary conflict.
func WithGraftOrder(names ...string) Option {
	return func(o *Options) { o.GraftOrder = names }
}

// WithConcurrency sets how many variants are built in parallel.
func WithConcurrency(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.Concurrency = n
		}
	}
}

// WithSymlinks controls whether symbolic links are recreated as links.
func WithSymlinks(preserve bool) Option {
	return func(o *Options) { o.Symlinks = preserve }
}

// WithNativeExcludes sets the patterns left out when a native multi-arch
// toolchain packages its output.
func WithNativeExcludes(patterns ...string) Option {
	return func(o *Options) { o.NativeExcludes = patterns }
}

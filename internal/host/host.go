// Package host is a minimal build host: it runs a shell command per
// variant and packages whatever the command writes to $UNIPKG_OUTPUT.
package host

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/aweris/unipkg"
	"github.com/aweris/unipkg/internal/graft"
	"github.com/aweris/unipkg/internal/identity"
)

// ErrNoCommand is returned when a build is requested without a command.
var ErrNoCommand = errors.New("host: no build command configured")

// Environment passed to the build command.
const (
	EnvName      = "UNIPKG_NAME"
	EnvVersion   = "UNIPKG_VERSION"
	EnvVariant   = "UNIPKG_VARIANT"
	EnvArch      = "UNIPKG_ARCH"
	EnvOS        = "UNIPKG_OS"
	EnvOSVersion = "UNIPKG_OS_VERSION"
	EnvOutput    = "UNIPKG_OUTPUT"
	EnvBuildDir  = "UNIPKG_BUILD_DIR"

	envSetting = "UNIPKG_SETTING_"
	envOption  = "UNIPKG_OPTION_"
)

// Options configures a CommandHost.
type Options struct {
	Log       *zap.Logger
	Shell     []string
	Dir       string
	BuildDir  string
	Generator string
	Env       []string
	Output    io.Writer
}

type Option func(*Options)

func defaultOptions() *Options {
	return &Options{
		Log:   zap.NewNop(),
		Shell: []string{"sh", "-c"},
	}
}

func WithLogger(log *zap.Logger) Option {
	return func(o *Options) {
		if log != nil {
			o.Log = log
		}
	}
}

// WithShell sets the interpreter the command is passed to.
func WithShell(argv ...string) Option {
	return func(o *Options) {
		if len(argv) > 0 {
			o.Shell = argv
		}
	}
}

// WithDir sets the working directory of the command.
func WithDir(dir string) Option {
	return func(o *Options) { o.Dir = dir }
}

// WithBuildDir sets the scratch directory holding per-variant build
// folders. It defaults to a temporary directory per build.
func WithBuildDir(dir string) Option {
	return func(o *Options) { o.BuildDir = dir }
}

// WithGenerator sets the generator reported to the stage (e.g. "Xcode").
func WithGenerator(gen string) Option {
	return func(o *Options) { o.Generator = gen }
}

// WithEnv appends KEY=VALUE pairs to the command environment.
func WithEnv(env ...string) Option {
	return func(o *Options) { o.Env = append(o.Env, env...) }
}

// WithOutput receives the combined output of build commands. Without it
// the output is only logged when the command fails.
func WithOutput(w io.Writer) Option {
	return func(o *Options) { o.Output = w }
}

// CommandHost implements unipkg.Host with a shell command.
type CommandHost struct {
	command string
	opts    *Options
}

var _ unipkg.Host = (*CommandHost)(nil)

func New(command string, opts ...Option) *CommandHost {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}
	return &CommandHost{command: command, opts: options}
}

// BuildVariant runs the command with the variant's constraints applied to
// the settings and grafts its output into root.
func (h *CommandHost) BuildVariant(ctx context.Context, pkg *unipkg.Package, v unipkg.Variant, root string) error {
	settings := pkg.Settings.Values()
	if settings == nil {
		settings = map[string]string{}
	}
	for k, c := range v.Constraints() {
		if k != unipkg.ConstraintDisplayName {
			settings[k] = c
		}
	}

	if err := os.RemoveAll(root); err != nil {
		return fmt.Errorf("clean %s: %w", root, err)
	}
	return h.build(ctx, pkg, v.Name(), settings, root, nil)
}

// Package runs the command once and grafts its output into dst, leaving
// out every path filter matches.
func (h *CommandHost) Package(ctx context.Context, pkg *unipkg.Package, dst string, filter unipkg.CopyFilter) error {
	return h.build(ctx, pkg, "", pkg.Settings.Values(), dst, filter)
}

func (h *CommandHost) Generator(*unipkg.Package) unipkg.Optional[string] {
	if h.opts.Generator == "" {
		return unipkg.None[string]()
	}
	return unipkg.Some(h.opts.Generator)
}

func (h *CommandHost) VariantIdentity(_ context.Context, pkg *unipkg.Package, variants []unipkg.Variant) (unipkg.Identity, error) {
	vs := make([]identity.Variant, 0, len(variants))
	for _, v := range variants {
		vs = append(vs, identity.Variant{Name: v.Name(), Constraints: v.Constraints()})
	}
	return unipkg.Identity(identity.Universal(Input(pkg), vs)), nil
}

// Identity is the identity of pkg when it is built once.
func (h *CommandHost) Identity(pkg *unipkg.Package) unipkg.Identity {
	return unipkg.Identity(identity.Package(Input(pkg)))
}

// Input is the identity input of pkg.
func Input(pkg *unipkg.Package) identity.Input {
	return identity.Input{
		Name:     pkg.Name,
		Version:  pkg.Version,
		Settings: pkg.Settings.Values(),
		Options:  pkg.Options.Values(),
	}
}

func (h *CommandHost) build(ctx context.Context, pkg *unipkg.Package, variant string, settings map[string]string, dst string, filter unipkg.CopyFilter) (err error) {
	if h.command == "" {
		return ErrNoCommand
	}

	log := h.opts.Log.With(zap.String("package", pkg.Ref()))
	if variant != "" {
		log = log.With(zap.String("variant", variant))
	}

	buildDir, cleanup, err := h.buildDir(pkg, variant)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := cleanup(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	out := filepath.Join(buildDir, "out")
	if err := os.RemoveAll(out); err != nil {
		return fmt.Errorf("clean output: %w", err)
	}
	if err := os.MkdirAll(out, 0755); err != nil {
		return fmt.Errorf("create output: %w", err)
	}

	env := append(os.Environ(), h.opts.Env...)
	env = append(env,
		EnvName+"="+pkg.Name,
		EnvVersion+"="+pkg.Version,
		EnvVariant+"="+variant,
		EnvArch+"="+settings[unipkg.FieldArch],
		EnvOS+"="+settings[unipkg.FieldOS],
		EnvOSVersion+"="+settings[unipkg.FieldOSVersion],
		EnvOutput+"="+out,
		EnvBuildDir+"="+buildDir,
	)
	env = append(env, prefixed(envSetting, settings)...)
	env = append(env, prefixed(envOption, pkg.Options.Values())...)

	argv := append(slices.Clone(h.opts.Shell), h.command)
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = h.opts.Dir
	cmd.Env = env

	var buf bytes.Buffer
	if h.opts.Output != nil {
		cmd.Stdout = io.MultiWriter(&buf, h.opts.Output)
	} else {
		cmd.Stdout = &buf
	}
	cmd.Stderr = cmd.Stdout

	log.Info("running build command", zap.String("output", out))
	if err := cmd.Run(); err != nil {
		log.Error("build command failed", zap.Error(err), zap.String("output", buf.String()))
		return fmt.Errorf("run build command: %w", err)
	}

	opts := []graft.Option{graft.WithDirsExistOK(true), graft.WithLogger(h.opts.Log)}
	if filter != nil {
		opts = append(opts, graft.WithSkip(filter))
	}
	if err := graft.Graft(out, dst, opts...); err != nil {
		return fmt.Errorf("package output: %w", err)
	}
	return nil
}

// buildDir returns the build folder for one run and a cleanup for it.
// Folders below a configured build dir are kept for inspection.
func (h *CommandHost) buildDir(pkg *unipkg.Package, variant string) (string, func() error, error) {
	if h.opts.BuildDir == "" {
		dir, err := os.MkdirTemp("", "unipkg-build-")
		if err != nil {
			return "", nil, fmt.Errorf("create build dir: %w", err)
		}
		return dir, func() error { return os.RemoveAll(dir) }, nil
	}

	name := variant
	if name == "" {
		name = "default"
	}
	dir := filepath.Join(h.opts.BuildDir, filepath.FromSlash(pkg.Ref()), name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", nil, fmt.Errorf("create build dir: %w", err)
	}
	return dir, func() error { return nil }, nil
}

// prefixed turns settings into PREFIX_KEY=value pairs; dots become
// underscores ("os.version" => UNIPKG_SETTING_OS_VERSION).
func prefixed(prefix string, values map[string]string) []string {
	env := make([]string, 0, len(values))
	for _, k := range slices.Sorted(maps.Keys(values)) {
		key := strings.ToUpper(strings.NewReplacer(".", "_", "-", "_").Replace(k))
		env = append(env, prefix+key+"="+values[k])
	}
	return env
}

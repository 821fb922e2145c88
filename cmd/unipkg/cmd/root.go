package cmd

import (
	"context"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aweris/unipkg"
	"github.com/aweris/unipkg/internal/compression"
	"github.com/aweris/unipkg/internal/config"
	"github.com/aweris/unipkg/internal/host"
	"github.com/aweris/unipkg/internal/logger"
	"github.com/aweris/unipkg/internal/store"
)

var v = config.New()

var rootCmd = &cobra.Command{
	Use:   "unipkg",
	Short: "Universal package assembly",
	Long: "Build a package once per architecture variant and merge the results into one " +
		"universal package, fusing binaries that exist in several variants.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return config.ReadFile(v, cmd.Flags().Lookup("config").Value.String())
	},
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file (default: ~/.config/unipkg/config.yaml)")
	flags.String("cache-dir", "", "package cache directory (default: ~/.cache/unipkg)")
	flags.String("log-format", "console", "log format: console or json")
	flags.BoolP("verbose", "v", false, "debug logging")

	v.BindPFlag(config.KeyCacheDir, flags.Lookup("cache-dir"))
	v.BindPFlag(config.KeyLogFormat, flags.Lookup("log-format"))
	v.BindPFlag(config.KeyLogVerbose, flags.Lookup("verbose"))
}

// env bundles what most commands need.
type env struct {
	cfg *config.Config
	log *zap.Logger
}

func setup() (*env, error) {
	cfg, err := config.Load(v)
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.Log.Format, cfg.Log.Verbose)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, log: log}, nil
}

func (e *env) host() *host.CommandHost {
	return host.New(e.cfg.Build.Command,
		host.WithLogger(e.log),
		host.WithBuildDir(e.cfg.Build.Dir),
		host.WithGenerator(e.cfg.Package.Generator),
		host.WithOutput(os.Stderr))
}

func (e *env) stage(h unipkg.Host) *unipkg.Stage {
	opts := append(e.cfg.StageOptions(), unipkg.WithLogger(e.log))
	return unipkg.New(h, opts...)
}

func (e *env) store() (*store.LocalStore, error) {
	return store.NewLocalStore(e.cfg.CacheDir, compression.LevelDefault)
}

// closeWith folds the result of c.Close into *err.
func closeWith(c interface{ Close() error }, err *error) {
	if cerr := c.Close(); cerr != nil && *err == nil {
		*err = cerr
	}
}

// Package config loads unipkg settings through viper.
//
// Settings keys such as "os.version" contain dots, so the viper instance
// uses "::" as its key delimiter; nested keys are addressed as
// "merge::staging_dir" and read from UNIPKG_MERGE_STAGING_DIR.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	EnvPrefix    = "UNIPKG"
	KeyDelimiter = "::"

	PresetUniversal = "universal"
)

// Viper keys.
const (
	KeyConfigFile   = "config"
	KeyCacheDir     = "cache_dir"
	KeyRemote       = "remote"
	KeyPreset       = "preset"
	KeyLogFormat    = "log::format"
	KeyLogVerbose   = "log::verbose"
	KeyBuildCommand = "build::command"
	KeyBuildDir     = "build::dir"
	KeyConcurrency  = "build::concurrency"
	KeyStagingDir   = "merge::staging_dir"
	KeyGraftOrder   = "merge::graft_order"
	KeySymlinks     = "merge::symlinks"
	KeyFuseTool     = "merge::fuse_tool"
)

var (
	ErrDuplicateVariant = errors.New("config: duplicate variant")
	ErrUnknownPreset    = errors.New("config: unknown preset")
	ErrMissingName      = errors.New("config: package name is required")
)

type Config struct {
	Package  PackageConfig       `mapstructure:"package"`
	Variants []map[string]string `mapstructure:"variants"`
	Preset   string              `mapstructure:"preset"`
	Build    BuildConfig         `mapstructure:"build"`
	Merge    MergeConfig         `mapstructure:"merge"`
	Log      LogConfig           `mapstructure:"log"`
	CacheDir string              `mapstructure:"cache_dir"`
	Remote   string              `mapstructure:"remote"`
}

type PackageConfig struct {
	Name       string            `mapstructure:"name"`
	Version    string            `mapstructure:"version"`
	Settings   map[string]string `mapstructure:"settings"`
	Options    map[string]string `mapstructure:"options"`
	Generators []string          `mapstructure:"generators"`
	Generator  string            `mapstructure:"generator"`
}

type BuildConfig struct {
	// Command is run with "sh -c" once per variant.
	Command     string `mapstructure:"command"`
	Dir         string `mapstructure:"dir"`
	Concurrency int    `mapstructure:"concurrency"`
}

type MergeConfig struct {
	StagingDir string   `mapstructure:"staging_dir"`
	GraftOrder []string `mapstructure:"graft_order"`
	Symlinks   bool     `mapstructure:"symlinks"`
	FuseTool   string   `mapstructure:"fuse_tool"`
}

type LogConfig struct {
	Format  string `mapstructure:"format"`
	Verbose bool   `mapstructure:"verbose"`
}

// New returns a viper instance with unipkg defaults and environment
// binding.
func New() *viper.Viper {
	v := viper.NewWithOptions(viper.KeyDelimiter(KeyDelimiter))

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(KeyDelimiter, "_"))
	v.AutomaticEnv()

	v.SetDefault(KeyCacheDir, DefaultCacheDir())
	v.SetDefault(KeyRemote, "")
	v.SetDefault(KeyPreset, "")
	v.SetDefault(KeyLogFormat, "console")
	v.SetDefault(KeyLogVerbose, false)
	v.SetDefault(KeyBuildCommand, "")
	v.SetDefault(KeyBuildDir, "")
	v.SetDefault(KeyConcurrency, 1)
	v.SetDefault(KeyStagingDir, "variants")
	v.SetDefault(KeyGraftOrder, []string{})
	v.SetDefault(KeySymlinks, true)
	v.SetDefault(KeyFuseTool, "lipo")
	return v
}

// ReadFile reads path, or config.yaml from the XDG config directory when
// path is empty. A missing default file is not an error.
func ReadFile(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(Dir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	err := v.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	if path == "" && errors.As(err, &notFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// Load decodes v and checks the variant list.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	switch cfg.Preset {
	case "":
	case PresetUniversal:
		if len(cfg.Variants) > 0 {
			return nil, fmt.Errorf("preset %q: variants are set as well", cfg.Preset)
		}
	default:
		return nil, fmt.Errorf("preset %q: %w", cfg.Preset, ErrUnknownPreset)
	}

	seen := map[string]bool{}
	for _, variant := range cfg.Variants {
		name := variantName(variant)
		if name == "" {
			return nil, fmt.Errorf("variant %v: no name, display_name or arch", variant)
		}
		if seen[name] {
			return nil, fmt.Errorf("variant %q: %w", name, ErrDuplicateVariant)
		}
		seen[name] = true
	}
	return &cfg, nil
}

// Dir is the XDG config directory of unipkg.
func Dir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "unipkg")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "unipkg")
	}
	return ".unipkg"
}

func DefaultCacheDir() string {
	if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
		return filepath.Join(xdg, "unipkg")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".cache", "unipkg")
	}
	return ".unipkg"
}

func variantName(variant map[string]string) string {
	for _, key := range []string{"name", "display_name", "arch"} {
		if variant[key] != "" {
			return variant[key]
		}
	}
	return ""
}

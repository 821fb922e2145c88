package config

import (
	"maps"

	"github.com/aweris/unipkg"
)

// VariantList returns the configured variants, or the preset's.
func (c *Config) VariantList() []unipkg.Variant {
	if c.Preset == PresetUniversal {
		return unipkg.UniversalVariants()
	}

	variants := make([]unipkg.Variant, 0, len(c.Variants))
	for _, raw := range c.Variants {
		constraints := maps.Clone(raw)
		delete(constraints, "name")
		variants = append(variants, unipkg.NewVariant(raw["name"], constraints))
	}
	return variants
}

// ToPackage builds the package description.
func (c *Config) ToPackage() *unipkg.Package {
	return &unipkg.Package{
		Name:       c.Package.Name,
		Version:    c.Package.Version,
		Settings:   unipkg.NewSettings(c.Package.Settings),
		Options:    unipkg.NewPackageOptions(c.Package.Options),
		Generators: c.Package.Generators,
		Variants:   c.VariantList(),
	}
}

// NamedPackage is ToPackage for commands that build or cache, which need
// the package name.
func (c *Config) NamedPackage() (*unipkg.Package, error) {
	if c.Package.Name == "" {
		return nil, ErrMissingName
	}
	return c.ToPackage(), nil
}

// StageOptions maps the merge and build sections onto stage options.
func (c *Config) StageOptions() []unipkg.Option {
	return []unipkg.Option{
		unipkg.WithFuseTool(c.Merge.FuseTool),
		unipkg.WithStagingDir(c.Merge.StagingDir),
		unipkg.WithGraftOrder(c.Merge.GraftOrder...),
		unipkg.WithSymlinks(c.Merge.Symlinks),
		unipkg.WithConcurrency(c.Build.Concurrency),
	}
}

package unipkg

import (
	"maps"
)

// Well-known variant constraints.
const (
	ConstraintDisplayName = "display_name"
	ConstraintArch        = "arch"
	ConstraintOSVersion   = "os.version"
)

// Variant is one architecture/OS-constrained configuration of a package.
type Variant struct {
	name        string
	constraints map[string]string
}

// NewVariant returns a variant. An empty name falls back to the display
// name, then to the architecture.
func NewVariant(name string, constraints map[string]string) Variant {
	if name == "" {
		name = constraints[ConstraintDisplayName]
	}
	if name == "" {
		name = constraints[ConstraintArch]
	}
	return Variant{name: name, constraints: maps.Clone(constraints)}
}

// Name identifies the variant; it is also its staging folder name.
func (v Variant) Name() string { return v.name }

func (v Variant) Constraint(key string) Optional[string] {
	if c, ok := v.constraints[key]; ok && c != "" {
		return Some(c)
	}
	return None[string]()
}

func (v Variant) Constraints() map[string]string {
	return maps.Clone(v.constraints)
}

func (v Variant) Arch() Optional[string] { return v.Constraint(ConstraintArch) }

func (v Variant) DisplayName() string {
	return v.Constraint(ConstraintDisplayName).Or(v.name)
}

func (v Variant) String() string { return v.DisplayName() }

// UniversalVariants is the Intel + Apple silicon pair.
func UniversalVariants() []Variant {
	return []Variant{
		NewVariant("x86_64", map[string]string{
			ConstraintDisplayName: "x86_64",
			ConstraintArch:        "x86_64",
			ConstraintOSVersion:   "10.13",
		}),
		NewVariant("armv8", map[string]string{
			ConstraintDisplayName: "armv8",
			ConstraintArch:        "armv8",
			ConstraintOSVersion:   "11.0",
		}),
	}
}

// Package describes what is being packaged.
type Package struct {
	Name       string
	Version    string
	Settings   Settings
	Options    PackageOptions
	Generators []string
	Variants   []Variant
}

// Ref returns name/version.
func (p *Package) Ref() string {
	if p.Version == "" {
		return p.Name
	}
	return p.Name + "/" + p.Version
}

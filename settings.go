package unipkg

import (
	"maps"
	"strconv"
)

// Well-known settings fields.
const (
	FieldArch      = "arch"
	FieldOS        = "os"
	FieldOSVersion = "os.version"
	FieldMultiarch = "multiarch"
)

// Settings are the build settings of a package. A field that is missing or
// empty does not apply to the package.
type Settings struct {
	values map[string]string
}

func NewSettings(values map[string]string) Settings {
	return Settings{values: maps.Clone(values)}
}

func (s Settings) Lookup(field string) Optional[string] {
	if v, ok := s.values[field]; ok && v != "" {
		return Some(v)
	}
	return None[string]()
}

func (s Settings) Arch() Optional[string]      { return s.Lookup(FieldArch) }
func (s Settings) OS() Optional[string]        { return s.Lookup(FieldOS) }
func (s Settings) OSVersion() Optional[string] { return s.Lookup(FieldOSVersion) }
func (s Settings) Multiarch() Optional[string] { return s.Lookup(FieldMultiarch) }

// Values returns a copy of all fields.
func (s Settings) Values() map[string]string {
	return maps.Clone(s.values)
}

// PackageOptions are the recipe options of a package (e.g. header_only).
type PackageOptions struct {
	values map[string]string
}

func NewPackageOptions(values map[string]string) PackageOptions {
	return PackageOptions{values: maps.Clone(values)}
}

func (o PackageOptions) Lookup(name string) Optional[string] {
	if v, ok := o.values[name]; ok && v != "" {
		return Some(v)
	}
	return None[string]()
}

// Bool parses a boolean option. Values that do not parse do not apply.
func (o PackageOptions) Bool(name string) Optional[bool] {
	raw, ok := o.Lookup(name).Get()
	if !ok {
		return None[bool]()
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return None[bool]()
	}
	return Some(b)
}

func (o PackageOptions) HeaderOnly() Optional[bool] { return o.Bool("header_only") }

func (o PackageOptions) Values() map[string]string {
	return maps.Clone(o.values)
}

package unipkg

import (
	"slices"
)

// appleOSes are the operating systems the fusion tool understands.
var appleOSes = []string{"Macos", "iOS", "watchOS", "tvOS", "visionOS"}

// Gate decides whether a package needs multi-variant handling.
type Gate struct {
	toolchain Toolchain
}

func NewGate(toolchain Toolchain) *Gate {
	return &Gate{toolchain: toolchain}
}

// NativeMultiArch reports whether the package already builds every
// architecture in a single invocation: either the recipe takes a multiarch
// setting itself, or CMake generates an Xcode project.
func (g *Gate) NativeMultiArch(pkg *Package) bool {
	if pkg.Settings.Multiarch().Applicable() {
		return true
	}
	if !slices.Contains(pkg.Generators, "cmake") || g.toolchain == nil {
		return false
	}
	generator, ok := g.toolchain.Generator(pkg).Get()
	return ok && generator == "Xcode"
}

// IsBinary reports whether the package produces native binaries for an
// Apple operating system. Header-only packages and packages without arch or
// os settings are not binary.
func (g *Gate) IsBinary(pkg *Package) bool {
	if pkg.Options.HeaderOnly().Or(false) {
		return false
	}
	if !pkg.Settings.Arch().Applicable() {
		return false
	}
	family, ok := pkg.Settings.OS().Get()
	return ok && slices.Contains(appleOSes, family)
}

// Applicable reports whether multi-variant handling is active for pkg.
func (g *Gate) Applicable(pkg *Package) bool {
	if !g.IsBinary(pkg) {
		return false
	}
	if g.NativeMultiArch(pkg) {
		return true
	}
	return len(pkg.Variants) > 1
}

// Variants returns the variants to build and merge, or nil when pkg is built
// once (not binary, native multi-arch, or fewer than two variants).
func (g *Gate) Variants(pkg *Package) []Variant {
	if !g.Applicable(pkg) || g.NativeMultiArch(pkg) {
		return nil
	}
	return slices.Clone(pkg.Variants)
}

package unipkg

import (
	"context"
)

// Identity is the fingerprint a package is cached and retrieved by.
type Identity string

// CopyFilter reports whether a build output path must be left out of the
// package. A nil CopyFilter keeps everything.
type CopyFilter func(path string) bool

// Builder builds packages. It is implemented by the host build system.
type Builder interface {
	// BuildVariant builds pkg for one variant and packages the result into root.
	BuildVariant(ctx context.Context, pkg *Package, v Variant, root string) error

	// Package builds pkg once and packages the result into dst, leaving out
	// every path filter matches.
	Package(ctx context.Context, pkg *Package, dst string, filter CopyFilter) error
}

// Identifier computes package identities spanning several variants.
type Identifier interface {
	VariantIdentity(ctx context.Context, pkg *Package, variants []Variant) (Identity, error)
}

// Toolchain reports the build generator selected for a package.
type Toolchain interface {
	Generator(pkg *Package) Optional[string]
}

// Host is everything the stage needs from the build system.
type Host interface {
	Builder
	Identifier
	Toolchain
}

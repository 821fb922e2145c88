// Package store keeps built packages on local disk.
//
// A package tree is stored as one zstd-compressed tar object, addressed by
// the SHA-256 of the compressed bytes. Refs map a package identity to its
// object, so restoring a package is a ref lookup plus one unpack.
package store

import (
	"context"
	"errors"
)

var (
	ErrNotFound     = errors.New("store: not found")
	ErrInvalidRef   = errors.New("store: invalid reference")
	ErrDigestDiffer = errors.New("store: digest mismatch")
)

// Store handles local package storage. Packages are namespaced by their
// reference (name/version) and keyed by identity.
type Store interface {
	// Has reports whether a package with identity id is stored.
	Has(ctx context.Context, pkg, id string) (bool, error)

	// Put archives the tree below root and returns the object digest.
	Put(ctx context.Context, pkg, id, root string) (digest string, err error)

	// Get extracts the package with identity id into dst.
	Get(ctx context.Context, pkg, id, dst string) error

	// List returns the stored identities of pkg, sorted.
	List(ctx context.Context, pkg string) ([]string, error)

	// ReadObject returns the compressed archive of a package.
	ReadObject(ctx context.Context, pkg, id string) ([]byte, error)

	// WriteObject stores a compressed archive received from elsewhere.
	WriteObject(ctx context.Context, pkg, id string, data []byte) (digest string, err error)
}

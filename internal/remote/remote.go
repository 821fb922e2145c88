// Package remote shares cached packages through an OCI registry.
//
// All cached builds of one package live in a single image: every build is
// one zstd layer holding its archive, and the image config labels map each
// package identity to its layer digest. Pushing keeps layers of identities
// the pusher does not have locally, so several machines can fill one image.
package remote

import "context"

// Image config labels.
const (
	LabelPackage  = "dev.unipkg.package"
	LabelPackages = "dev.unipkg.packages"
)

// Remote handles OCI registry operations.
type Remote interface {
	// Push uploads compressed package archives keyed by identity.
	Push(ctx context.Context, pkg string, objects map[string][]byte) error

	// Pull downloads the archives of every identity have reports missing.
	Pull(ctx context.Context, pkg string, have func(id string) bool) (map[string][]byte, error)

	// List returns the identities in the remote image mapped to their layer
	// digests.
	List(ctx context.Context) (map[string]string, error)
}

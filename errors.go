package unipkg

import (
	"errors"

	"github.com/aweris/unipkg/internal/lipo"
)

var (
	ErrNoRemote       = errors.New("unipkg: no remote configured")
	ErrNotMergeable   = errors.New("unipkg: package does not need merging")
	ErrUnknownVariant = errors.New("unipkg: unknown variant")

	// ErrStagingConflict is returned when a variant tree holds an entry
	// named like the staging folder it is merged from.
	ErrStagingConflict = errors.New("unipkg: variant output collides with staging folder")

	// ErrFusion matches every failure of the external fusion tool.
	ErrFusion = lipo.ErrFusion
)

// Package unipkg assembles universal ("fat") packages from per-architecture
// builds.
//
// A host build system hands a package to a Stage. The stage decides, from
// the package settings and the host toolchain, whether the package has to
// be built once per variant. When it does, every variant is built into its
// own staging folder below the package root and the folders are grafted
// into the root one after another: files missing from the root are copied,
// existing ones are left alone, and binaries found in more than one variant
// are fused into a single multi-architecture binary with lipo.
//
// Basic usage:
//
//	stage := unipkg.New(host, unipkg.WithLogger(log))
//
//	res, err := stage.Package(ctx, pkg, "/path/to/package")
//	if err != nil {
//	    return err
//	}
//	fmt.Println(res.Mode, res.Variants)
//
//	// Cache under an identity that accounts for the variants
//	id, err := stage.AdjustedIdentity(ctx, pkg, defaultID)
//
// Merging already built trees:
//
//	err := stage.MergeRoots(ctx, "pkg", []string{"build/x86_64", "build/armv8"})
//
// Packages are left alone (built once) when they are header-only, have no
// architecture, target a non-Apple OS, configure fewer than two variants,
// or use a toolchain that already builds every architecture at once (Xcode
// via CMake, or the multiarch setting).
package unipkg

// Package lipo fuses per-architecture binaries staged by several variant
// builds into one multi-architecture file.
//
// A package built for N variants is staged as
//
//	<top>/<staging>/<variant-1>/...
//	<top>/<staging>/<variant-N>/...
//
// While one staged tree is grafted into <top>, Copier looks up the same
// relative path in every other staged tree (Correlate) and, when more than
// one binary exists, runs the fusion tool on all of them (Fuser) instead of
// copying a single architecture. Trees built elsewhere can be merged the same
// way by naming their roots directly (CorrelateRoots).
package lipo

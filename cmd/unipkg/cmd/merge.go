package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aweris/unipkg"
)

var mergeCmd = &cobra.Command{
	Use:   "merge <package-root> [variant-root...]",
	Short: "Merge variant trees into a package root",
	Long: "Graft variant trees into the package root, fusing binaries found in more than one variant.\n\n" +
		"Without variant roots the configured variants are merged from their staging folders " +
		"(<package-root>/<staging_dir>/<variant>).",
	Args: cobra.MinimumNArgs(1),
	RunE: runMerge,
}

func init() {
	rootCmd.AddCommand(mergeCmd)
}

func runMerge(cmd *cobra.Command, args []string) error {
	e, err := setup()
	if err != nil {
		return err
	}

	root, roots := args[0], args[1:]
	stage := e.stage(e.host())

	if len(roots) > 0 {
		fmt.Fprintf(os.Stderr, "Merging %d trees into %s...\n", len(roots), root)
		return stage.MergeRoots(cmd.Context(), root, roots)
	}

	pkg := e.cfg.ToPackage()
	if !stage.IsMergeable(pkg) {
		return fmt.Errorf("merge %s: %w", root, unipkg.ErrNotMergeable)
	}
	variants := stage.Gate().Variants(pkg)
	fmt.Fprintf(os.Stderr, "Merging %d variants into %s...\n", len(variants), root)
	return stage.Merge(cmd.Context(), root, variants)
}

package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aweris/unipkg"
)

var buildCmd = &cobra.Command{
	Use:   "build <package-root>",
	Short: "Build and package, once per variant when needed",
	Long: "Run the configured build command and package its output into the package root. " +
		"Universal packages are built once per variant and merged. Results are cached by identity.",
	Args: cobra.ExactArgs(1),
	RunE: runBuild,
}

func init() {
	buildCmd.Flags().Bool("no-cache", false, "always build, never restore from or write to the cache")
	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) (err error) {
	ctx := cmd.Context()
	root := args[0]
	noCache, _ := cmd.Flags().GetBool("no-cache")

	e, err := setup()
	if err != nil {
		return err
	}
	pkg, err := e.cfg.NamedPackage()
	if err != nil {
		return err
	}

	h := e.host()
	stage := e.stage(h)
	id, err := stage.AdjustedIdentity(ctx, pkg, h.Identity(pkg))
	if err != nil {
		return err
	}
	log := e.log.With(zap.String("package", pkg.Ref()), zap.String("identity", string(id)))

	cache, err := e.store()
	if err != nil {
		return err
	}
	defer closeWith(cache, &err)

	if !noCache {
		ok, err := cache.Has(ctx, pkg.Ref(), string(id))
		if err != nil {
			return err
		}
		if ok {
			log.Info("restoring from cache")
			if err := cache.Get(ctx, pkg.Ref(), string(id), root); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		}
	}

	fmt.Fprintf(os.Stderr, "Building %s...\n", pkg.Ref())
	res, err := stage.Package(ctx, pkg, root)
	if err != nil {
		return fmt.Errorf("build failed: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Done. Mode: %s%s\n", res.Mode, variantSuffix(res.Variants))

	if noCache {
		return nil
	}
	digest, err := cache.Put(ctx, pkg.Ref(), string(id), root)
	if err != nil {
		return fmt.Errorf("cache package: %w", err)
	}
	log.Info("cached", zap.String("digest", digest))
	fmt.Fprintln(cmd.OutOrStdout(), id)
	return nil
}

func variantSuffix(variants []unipkg.Variant) string {
	if len(variants) == 0 {
		return ""
	}
	names := make([]string, len(variants))
	for i, v := range variants {
		names[i] = v.Name()
	}
	return " (" + strings.Join(names, ", ") + ")"
}

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var pullCmd = &cobra.Command{
	Use:   "pull [image-ref]",
	Short: "Pull cached packages from a registry",
	Long:  "Download the builds of the configured package that are missing from the local cache.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runPull,
}

func init() {
	pullCmd.Flags().String("package", "", "package reference (name/version); defaults to the configured package")
	rootCmd.AddCommand(pullCmd)
}

func runPull(cmd *cobra.Command, args []string) (err error) {
	ctx := cmd.Context()

	e, err := setup()
	if err != nil {
		return err
	}
	ref, err := e.packageFlag(cmd)
	if err != nil {
		return err
	}
	cache, err := e.store()
	if err != nil {
		return err
	}
	defer closeWith(cache, &err)

	r, err := e.remote(firstArg(args), cache.Compressor())
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Pulling %s from %s...\n", ref, r)

	objects, err := r.Pull(ctx, ref, func(id string) bool {
		ok, err := cache.Has(ctx, ref, id)
		return err == nil && ok
	})
	if err != nil {
		return fmt.Errorf("pull failed: %w", err)
	}

	for id, data := range objects {
		if _, err := cache.WriteObject(ctx, ref, id, data); err != nil {
			return err
		}
	}

	fmt.Fprintf(os.Stderr, "Done. %d builds received\n", len(objects))
	return nil
}

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var pushCmd = &cobra.Command{
	Use:   "push [image-ref]",
	Short: "Push cached packages to a registry",
	Long:  "Push every locally cached build of the configured package to an OCI image. Builds already in the image are kept.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runPush,
}

func init() {
	pushCmd.Flags().String("package", "", "package reference (name/version); defaults to the configured package")
	rootCmd.AddCommand(pushCmd)
}

func runPush(cmd *cobra.Command, args []string) (err error) {
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

	ids, err := cache.List(ctx, ref)
	if err != nil {
		return err
	}
	objects := make(map[string][]byte, len(ids))
	for _, id := range ids {
		data, err := cache.ReadObject(ctx, ref, id)
		if err != nil {
			return err
		}
		objects[id] = data
	}

	fmt.Fprintf(os.Stderr, "Pushing %d builds of %s to %s...\n", len(objects), ref, r)

	if err := r.Push(ctx, ref, objects); err != nil {
		return fmt.Errorf("push failed: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Done.\n")
	return nil
}

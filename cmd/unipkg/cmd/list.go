package cmd

import (
	"fmt"
	"maps"
	"slices"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list [package-ref]",
	Short: "List cached identities of a package",
	Long:  "List the identities cached locally for a package (name/version), or with --remote the identities in the remote image.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runList,
}

func init() {
	listCmd.Flags().Bool("remote", false, "list the remote image instead of the local cache")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) (err error) {
	e, err := setup()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	cache, err := e.store()
	if err != nil {
		return err
	}
	defer closeWith(cache, &err)

	if remoteOnly, _ := cmd.Flags().GetBool("remote"); remoteOnly {
		r, err := e.remote("", cache.Compressor())
		if err != nil {
			return err
		}
		digests, err := r.List(cmd.Context())
		if err != nil {
			return err
		}
		for _, id := range slices.Sorted(maps.Keys(digests)) {
			fmt.Fprintf(out, "%s\t%s\n", id, digests[id])
		}
		if len(digests) == 0 {
			fmt.Fprintln(out, "(no entries)")
		}
		return nil
	}

	ref, err := e.packageRef(args)
	if err != nil {
		return err
	}

	ids, err := cache.List(cmd.Context(), ref)
	if err != nil {
		return err
	}
	for _, id := range ids {
		fmt.Fprintln(out, id)
	}
	if len(ids) == 0 {
		fmt.Fprintln(out, "(no entries)")
	}
	return nil
}

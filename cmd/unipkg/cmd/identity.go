package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var identityCmd = &cobra.Command{
	Use:   "identity",
	Short: "Print the package identity",
	Long:  "Print the identity the configured package is cached under. Packages merged from variants get a variant-aware identity.",
	Args:  cobra.NoArgs,
	RunE:  runIdentity,
}

func init() {
	rootCmd.AddCommand(identityCmd)
}

func runIdentity(cmd *cobra.Command, args []string) error {
	e, err := setup()
	if err != nil {
		return err
	}
	pkg, err := e.cfg.NamedPackage()
	if err != nil {
		return err
	}

	h := e.host()
	id, err := e.stage(h).AdjustedIdentity(cmd.Context(), pkg, h.Identity(pkg))
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), id)
	return nil
}

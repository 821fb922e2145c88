package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Show how the configured package would be built",
	Long:  "Evaluate the variant gate for the configured package: binary, native multi-arch, mergeable and the variants to merge.",
	Args:  cobra.NoArgs,
	RunE:  runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	e, err := setup()
	if err != nil {
		return err
	}

	pkg := e.cfg.ToPackage()
	stage := e.stage(e.host())
	gate := stage.Gate()

	var names []string
	for _, v := range gate.Variants(pkg) {
		names = append(names, v.Name())
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "binary\t%t\n", gate.IsBinary(pkg))
	fmt.Fprintf(out, "native\t%t\n", gate.NativeMultiArch(pkg))
	fmt.Fprintf(out, "applicable\t%t\n", gate.Applicable(pkg))
	fmt.Fprintf(out, "mergeable\t%t\n", stage.IsMergeable(pkg))
	fmt.Fprintf(out, "variants\t%s\n", strings.Join(names, ","))
	return nil
}

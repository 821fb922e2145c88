package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aweris/unipkg/internal/binfmt"
)

var classifyCmd = &cobra.Command{
	Use:   "classify <path>...",
	Short: "Tell binaries from other files",
	Long:  "Classify files as binary (fusable object code or archives) or non-binary, by extension or magic number.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runClassify,
}

func init() {
	rootCmd.AddCommand(classifyCmd)
}

func runClassify(cmd *cobra.Command, args []string) error {
	for _, path := range args {
		class, err := binfmt.Classify(path)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", class, path)
	}
	return nil
}

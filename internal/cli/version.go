package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "clarity %s (commit %s, built by %s)\n",
			deps.Version, deps.Commit, deps.BuiltBy)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

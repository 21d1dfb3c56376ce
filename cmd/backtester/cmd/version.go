package cmd

import (
	"fmt"

	"github.com/rustyeddy/backtester/strategy"
	"github.com/spf13/cobra"
)

const version = "0.3.0"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  `Display the current version of the backtester CLI and the strategies it knows.`,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "backtester version %s\n", version)
		fmt.Fprintf(out, "strategies: %v\n", strategy.Names())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

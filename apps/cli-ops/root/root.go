package root

import (
	"github.com/spf13/cobra"
)

// rootCmd is the base command for the Loop operations CLI. Subcommands (roles,
// claims, provisioning, auth) are attached here.
var rootCmd = &cobra.Command{
	Use:           "loopops",
	Short:         "Loop platform operations CLI",
	Long:          "Operational utilities for the Loop platform (role migration, claim repair, provisioning recovery, dev tokens).",
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

// Root returns the mutable root command for wiring from subpackages.
func Root() *cobra.Command {
	return rootCmd
}

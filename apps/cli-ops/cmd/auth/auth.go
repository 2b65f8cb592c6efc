package auth

import "github.com/spf13/cobra"

// Command groups authentication helpers (dev tokens for local API calls).
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authentication utilities",
		Long:  "Authentication utilities (unsigned dev tokens for local and CI environments).",
	}

	cmd.AddCommand(devTokenCommand())

	return cmd
}

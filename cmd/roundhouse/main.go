package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version info set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "roundhouse",
		Short: "Roundhouse — multi-account session fleet manager",
		Long:  "Roundhouse drives a fleet of authenticated chat sessions: voice presence, rate-limited cleanup jobs, and a status dashboard.",
	}

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newAccountCmd())
	cmd.AddCommand(newProtectCmd())
	cmd.AddCommand(newCleanCmd())
	cmd.AddCommand(newVoiceCmd())
	cmd.AddCommand(newPresenceCmd())
	cmd.AddCommand(newCloneCmd())
	cmd.AddCommand(newServeCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "roundhouse %s (commit: %s, built: %s)\n", Version, Commit, Date)
		},
	}
}

func execute(cmd *cobra.Command) int {
	if err := cmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func main() {
	os.Exit(execute(newRootCmd()))
}

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newPresenceCmd() *cobra.Command {
	var (
		configPath string
		account    string
		activity   string
	)

	cmd := &cobra.Command{
		Use:   "presence <status>",
		Short: "Set the fleet's presence",
		Long:  "Logs the accounts in, publishes the given status (online, idle, dnd, invisible) with an optional activity, and logs out.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPresence(cmd, configPath, account, args[0], activity)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "roundhouse.yaml", "path to config file")
	cmd.Flags().StringVarP(&account, "account", "a", "", "set on a single account label instead of the whole fleet")
	cmd.Flags().StringVar(&activity, "activity", "", "activity name to display")
	return cmd
}

func runPresence(cmd *cobra.Command, configPath, account, status, activity string) error {
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}

	m, err := newManagerFromConfig(cmd, cfg)
	if err != nil {
		return err
	}
	if _, err := loadSessions(m, gormDB, account); err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	fmt.Fprintln(cmd.OutOrStdout(), "Logging in...")
	printReports(cmd, m.LoginAll(ctx))

	printReports(cmd, m.SetPresenceAll(ctx, status, activity))

	printReports(cmd, m.LogoutAll(context.Background()))
	return nil
}

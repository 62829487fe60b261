package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zulandar/roundhouse/internal/fleet"
)

func newCleanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Run rate-limited cleanup jobs across the fleet",
		Long:  "Logs the stored accounts in, runs the selected cleanup job on each one sequentially, and logs them out. Whitelisted ids are never touched.",
	}

	cmd.AddCommand(newCleanJobCmd("dms", "Purge own messages from all direct-message conversations",
		func(m *fleet.Manager, ctx context.Context, w fleet.Whitelist) []fleet.SessionReport {
			return m.CleanDMsAll(ctx, w)
		}))
	cmd.AddCommand(newCleanJobCmd("friends", "Remove all friends",
		func(m *fleet.Manager, ctx context.Context, w fleet.Whitelist) []fleet.SessionReport {
			return m.RemoveFriendsAll(ctx, w)
		}))
	cmd.AddCommand(newCleanJobCmd("guilds", "Leave all joined guilds",
		func(m *fleet.Manager, ctx context.Context, w fleet.Whitelist) []fleet.SessionReport {
			return m.LeaveGuildsAll(ctx, w)
		}))
	return cmd
}

func newCleanJobCmd(name, short string, job func(*fleet.Manager, context.Context, fleet.Whitelist) []fleet.SessionReport) *cobra.Command {
	var (
		configPath string
		account    string
	)

	cmd := &cobra.Command{
		Use:   name,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCleanJob(cmd, configPath, account, kindFor[name], job)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "roundhouse.yaml", "path to config file")
	cmd.Flags().StringVarP(&account, "account", "a", "", "run on a single account label instead of the whole fleet")
	return cmd
}

func runCleanJob(cmd *cobra.Command, configPath, account, kind string, job func(*fleet.Manager, context.Context, fleet.Whitelist) []fleet.SessionReport) error {
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
	whitelist, err := whitelistFor(gormDB, kind)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	fmt.Fprintln(cmd.OutOrStdout(), "Logging in...")
	printReports(cmd, m.LoginAll(ctx))

	printReports(cmd, job(m, ctx, whitelist))

	printReports(cmd, m.LogoutAll(context.Background()))
	return nil
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zulandar/roundhouse/internal/outcome"
)

func newCloneCmd() *cobra.Command {
	var (
		configPath string
		account    string
	)

	cmd := &cobra.Command{
		Use:   "clone <source-guild-id> <target-guild-id>",
		Short: "Copy a guild's roles and channel layout into another guild",
		Long:  "Recreates the source guild's roles, categories, and channels in the target guild, pacing each create call. Existing structure in the target is left untouched.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClone(cmd, configPath, account, args[0], args[1])
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "roundhouse.yaml", "path to config file")
	cmd.Flags().StringVarP(&account, "account", "a", "", "account label (required)")
	cmd.MarkFlagRequired("account")
	return cmd
}

func runClone(cmd *cobra.Command, configPath, account, sourceID, targetID string) error {
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}

	m, err := newManagerFromConfig(cmd, cfg)
	if err != nil {
		return err
	}
	ids, err := loadSessions(m, gormDB, account)
	if err != nil {
		return err
	}
	id := ids[account]

	ctx, cancel := signalContext(cmd)
	defer cancel()

	if rep := m.Login(ctx, id); rep.Outcome != outcome.Success {
		printReport(cmd, rep)
		return fmt.Errorf("login failed")
	}
	defer func() { printReport(cmd, m.Logout(id)) }()

	rep := m.CloneGuild(ctx, id, sourceID, targetID)
	printReport(cmd, rep)
	if rep.Outcome != outcome.Success {
		return fmt.Errorf("clone failed")
	}
	return nil
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zulandar/roundhouse/internal/db"
	"github.com/zulandar/roundhouse/internal/models"
)

var protectKinds = map[string]string{
	"channel": models.ProtectChannel,
	"friend":  models.ProtectFriend,
	"guild":   models.ProtectGuild,
}

func protectKind(arg string) (string, error) {
	kind, ok := protectKinds[arg]
	if !ok {
		return "", fmt.Errorf("unknown kind %q (want channel, friend, or guild)", arg)
	}
	return kind, nil
}

func newProtectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "protect",
		Short: "Manage the whitelist of ids cleanup jobs must never touch",
	}

	cmd.AddCommand(newProtectAddCmd())
	cmd.AddCommand(newProtectListCmd())
	cmd.AddCommand(newProtectRemoveCmd())
	return cmd
}

func newProtectAddCmd() *cobra.Command {
	var (
		configPath string
		note       string
	)

	cmd := &cobra.Command{
		Use:   "add <kind> <id>",
		Short: "Add an id to the whitelist",
		Long:  "Marks a channel, friend, or guild id as protected. Cleanup jobs skip protected ids.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := protectKind(args[0])
			if err != nil {
				return err
			}
			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			if err := db.AddProtectedID(gormDB, kind, args[1], note); err != nil {
				return fmt.Errorf("add protected id: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Protected %s %s\n", kind, args[1])
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "roundhouse.yaml", "path to config file")
	cmd.Flags().StringVarP(&note, "note", "n", "", "why this id is protected")
	return cmd
}

func newProtectListCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "list <kind>",
		Short: "List whitelisted ids of one kind",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := protectKind(args[0])
			if err != nil {
				return err
			}
			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			entries, err := db.ListProtectedIDs(gormDB, kind)
			if err != nil {
				return fmt.Errorf("list protected ids: %w", err)
			}
			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintf(out, "No protected %ss.\n", kind)
				return nil
			}
			for _, e := range entries {
				if e.Note != "" {
					fmt.Fprintf(out, "%-24s %s\n", e.TargetID, e.Note)
				} else {
					fmt.Fprintln(out, e.TargetID)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "roundhouse.yaml", "path to config file")
	return cmd
}

func newProtectRemoveCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "remove <kind> <id>",
		Short: "Remove an id from the whitelist",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := protectKind(args[0])
			if err != nil {
				return err
			}
			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			ok, err := db.RemoveProtectedID(gormDB, kind, args[1])
			if err != nil {
				return fmt.Errorf("remove protected id: %w", err)
			}
			if !ok {
				return fmt.Errorf("%s %s is not protected", kind, args[1])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Unprotected %s %s\n", kind, args[1])
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "roundhouse.yaml", "path to config file")
	return cmd
}

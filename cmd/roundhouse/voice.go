package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zulandar/roundhouse/internal/outcome"
	"github.com/zulandar/roundhouse/internal/voice"
)

func newVoiceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "voice",
		Short: "Hold voice-channel presence",
	}

	cmd.AddCommand(newVoiceJoinCmd())
	return cmd
}

func newVoiceJoinCmd() *cobra.Command {
	var (
		configPath string
		account    string
		mute       bool
		deaf       bool
	)

	cmd := &cobra.Command{
		Use:   "join <guild-id> <channel-id>",
		Short: "Join a voice channel and hold it until interrupted",
		Long:  "Logs the account in, joins the voice channel, and keeps the link alive through drops and moves until the process receives an interrupt. The channel is left voluntarily on shutdown.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVoiceJoin(cmd, configPath, account, args[0], args[1], voice.JoinOptions{Mute: mute, Deaf: deaf})
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "roundhouse.yaml", "path to config file")
	cmd.Flags().StringVarP(&account, "account", "a", "", "account label (required)")
	cmd.Flags().BoolVar(&mute, "mute", false, "join self-muted")
	cmd.Flags().BoolVar(&deaf, "deaf", false, "join self-deafened")
	cmd.MarkFlagRequired("account")
	return cmd
}

func runVoiceJoin(cmd *cobra.Command, configPath, account, guildID, channelID string, opts voice.JoinOptions) error {
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

	rep := m.JoinVoice(ctx, id, guildID, channelID, opts)
	printReport(cmd, rep)
	if rep.Outcome != outcome.Success {
		m.Logout(id)
		return fmt.Errorf("join failed")
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Holding voice presence. Press Ctrl-C to leave.")
	<-ctx.Done()

	printReport(cmd, m.LeaveVoice(context.Background(), id))
	printReport(cmd, m.Logout(id))
	return nil
}

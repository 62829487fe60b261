package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/roundhouse/internal/config"
	"github.com/zulandar/roundhouse/internal/db"
	"github.com/zulandar/roundhouse/internal/fleet"
	"github.com/zulandar/roundhouse/internal/models"
	"github.com/zulandar/roundhouse/internal/platform/discord"
	"github.com/zulandar/roundhouse/internal/voice"
	"gorm.io/gorm"
)

func connectFromConfig(configPath string) (*config.Config, *gorm.DB, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	gormDB, err := db.Open(cfg.DB.Path, cfg.DB.MySQLDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}

	return cfg, gormDB, nil
}

func voiceConfigFrom(cfg *config.Config) voice.Config {
	return voice.Config{
		Settle:         time.Duration(cfg.Voice.SettleSec) * time.Second,
		RetryBackoff:   time.Duration(cfg.Voice.BackoffSec) * time.Second,
		Attempts:       cfg.Voice.Attempts,
		ReconnectDelay: time.Duration(cfg.Voice.ReconnectSec) * time.Second,
		MoveDelay:      time.Duration(cfg.Voice.MoveSec) * time.Second,
		LeaveGrace:     time.Duration(cfg.Voice.LeaveGraceSec) * time.Second,
	}
}

func newManagerFromConfig(cmd *cobra.Command, cfg *config.Config) (*fleet.Manager, error) {
	return fleet.NewManager(fleet.ManagerOpts{
		Dialer:       discord.Dial,
		LoginTimeout: cfg.LoginTimeout(),
		AccountDelay: cfg.AccountDelay(),
		ItemDelay:    cfg.ItemDelay(),
		MessageDelay: cfg.MessageDelay(),
		Voice:        voiceConfigFrom(cfg),
		Out:          cmd.OutOrStdout(),
	})
}

// loadSessions registers every stored account on the manager. When label is
// non-empty only that account is loaded. Returns the session ids keyed by
// label.
func loadSessions(m *fleet.Manager, gormDB *gorm.DB, label string) (map[string]string, error) {
	accounts, err := db.ListAccounts(gormDB)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	ids := make(map[string]string)
	for _, a := range accounts {
		if label != "" && a.Label != label {
			continue
		}
		ids[a.Label] = m.AddSession(a.Token, a.Label)
	}
	if len(ids) == 0 {
		if label != "" {
			return nil, fmt.Errorf("no account with label %q", label)
		}
		return nil, fmt.Errorf("no accounts stored; add one with 'roundhouse account add'")
	}
	return ids, nil
}

// whitelistFor builds the protected-id snapshot for one whitelist kind.
func whitelistFor(gormDB *gorm.DB, kind string) (fleet.Whitelist, error) {
	targets, err := db.ProtectedTargets(gormDB, kind)
	if err != nil {
		return nil, fmt.Errorf("load %s whitelist: %w", kind, err)
	}
	return fleet.NewWhitelist(targets), nil
}

func printReport(cmd *cobra.Command, rep fleet.SessionReport) {
	label := rep.Label
	if label == "" {
		label = rep.SessionID
	}
	fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s: %s\n", rep.Outcome, label, rep.Message)
}

func printReports(cmd *cobra.Command, reports []fleet.SessionReport) {
	for _, rep := range reports {
		printReport(cmd, rep)
	}
}

// signalContext returns a context cancelled on SIGINT/SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Fprintf(cmd.OutOrStdout(), "\nReceived %s, shutting down...\n", sig)
		cancel()
	}()
	return ctx, cancel
}

// kindFor maps a batch subcommand to its whitelist kind.
var kindFor = map[string]string{
	"dms":     models.ProtectChannel,
	"friends": models.ProtectFriend,
	"guilds":  models.ProtectGuild,
}

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zulandar/roundhouse/internal/dashboard"
	"github.com/zulandar/roundhouse/internal/rolesync"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		port       int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Log the fleet in and serve the status dashboard",
		Long:  "Logs every stored account in, keeps the sessions online, serves the read-only JSON dashboard, and runs the scheduled role-sync job if configured.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath, port)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "roundhouse.yaml", "path to config file")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "dashboard port (overrides config)")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string, port int) error {
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	if port <= 0 {
		port = cfg.Dashboard.Port
	}

	m, err := newManagerFromConfig(cmd, cfg)
	if err != nil {
		return err
	}
	if _, err := loadSessions(m, gormDB, ""); err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	fmt.Fprintln(cmd.OutOrStdout(), "Logging in...")
	printReports(cmd, m.LoginAll(ctx))

	if cfg.RoleSync.Enabled {
		job, err := rolesync.New(rolesync.Opts{
			DB:      gormDB,
			Fleet:   m,
			Cron:    cfg.RoleSync.Cron,
			GuildID: cfg.RoleSync.GuildID,
			RoleID:  cfg.RoleSync.RoleID,
			Top:     cfg.RoleSync.Top,
		})
		if err != nil {
			return err
		}
		go job.Run(ctx)
		fmt.Fprintf(cmd.OutOrStdout(), "Role sync scheduled (%s)\n", cfg.RoleSync.Cron)
	}

	err = dashboard.Start(ctx, dashboard.StartOpts{
		Fleet: m,
		DB:    gormDB,
		Port:  port,
		Out:   cmd.OutOrStdout(),
	})

	printReports(cmd, m.LogoutAll(context.Background()))
	return err
}

package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/zulandar/roundhouse/internal/db"
	"golang.org/x/term"
)

func newAccountCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage stored accounts",
	}

	cmd.AddCommand(newAccountAddCmd())
	cmd.AddCommand(newAccountListCmd())
	cmd.AddCommand(newAccountRemoveCmd())
	return cmd
}

func newAccountAddCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "add <label>",
		Short: "Store an account credential under a label",
		Long:  "Prompts for the account token without echo and stores it in the local database. The token is never printed or logged.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAccountAdd(cmd, configPath, args[0])
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "roundhouse.yaml", "path to config file")
	return cmd
}

func runAccountAdd(cmd *cobra.Command, configPath, label string) error {
	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}

	token, err := readToken(cmd)
	if err != nil {
		return err
	}
	if token == "" {
		return fmt.Errorf("empty token")
	}

	if _, err := db.AddAccount(gormDB, label, token); err != nil {
		return fmt.Errorf("store account: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Stored account %q\n", label)
	return nil
}

// readToken reads the credential without echo when attached to a terminal,
// and from stdin otherwise so it can be piped in.
func readToken(cmd *cobra.Command) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(os.Stderr, "Token: ")
		raw, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("read token: %w", err)
		}
		return strings.TrimSpace(string(raw)), nil
	}

	reader := bufio.NewReader(cmd.InOrStdin())
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read token: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func newAccountListCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAccountList(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "roundhouse.yaml", "path to config file")
	return cmd
}

func runAccountList(cmd *cobra.Command, configPath string) error {
	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}

	accounts, err := db.ListAccounts(gormDB)
	if err != nil {
		return fmt.Errorf("list accounts: %w", err)
	}
	out := cmd.OutOrStdout()
	if len(accounts) == 0 {
		fmt.Fprintln(out, "No accounts stored.")
		return nil
	}
	for _, a := range accounts {
		fmt.Fprintf(out, "%-20s added %s\n", a.Label, a.CreatedAt.Format("2006-01-02"))
	}
	return nil
}

func newAccountRemoveCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "remove <label>",
		Short: "Remove a stored account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAccountRemove(cmd, configPath, args[0])
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "roundhouse.yaml", "path to config file")
	return cmd
}

func runAccountRemove(cmd *cobra.Command, configPath, label string) error {
	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}

	ok, err := db.RemoveAccount(gormDB, label)
	if err != nil {
		return fmt.Errorf("remove account: %w", err)
	}
	if !ok {
		return fmt.Errorf("no account with label %q", label)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed account %q\n", label)
	return nil
}

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/rohankatakam/elemgraph/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage egraph configuration",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration, including delegate graphs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		result := cfg.Validate()
		out := cmd.OutOrStdout()
		for _, w := range result.Warnings {
			fmt.Fprintf(out, "  warning: %s\n", w)
		}
		if result.HasErrors() {
			return fmt.Errorf("%s", result.Error())
		}
		fmt.Fprintf(out, "Configuration valid (graph %s, store %s)\n", cfg.Graph.ID, cfg.Store.Type)
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a default configuration file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := ".elemgraph/config.yaml"
		if len(args) == 1 {
			path = args[0]
		}
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		}
		if err := config.Default().Save(path); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
		return nil
	},
}

var configSetPasswordCmd = &cobra.Command{
	Use:   "set-neo4j-password",
	Short: "Store the Neo4j password in the OS keychain",
	Long: `Store the Neo4j password in the OS keychain. The password is read from
the terminal without echo, or from stdin when it is not a terminal.
NEO4J_PASSWORD still takes precedence when set.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		km := config.NewKeyringManager(baseLogger())
		if !km.IsAvailable() {
			return fmt.Errorf("OS keychain is not available; set NEO4J_PASSWORD instead")
		}
		password, err := readPassword(cmd)
		if err != nil {
			return err
		}
		if err := km.SaveNeo4jPassword(password); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Neo4j password saved to keychain (%s)\n", config.MaskSecret(password))
		return nil
	},
}

func init() {
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configSetPasswordCmd)
}

func readPassword(cmd *cobra.Command) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		var line string
		if _, err := fmt.Fscanln(cmd.InOrStdin(), &line); err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return strings.TrimSpace(line), nil
	}
	fmt.Fprint(cmd.ErrOrStderr(), "Neo4j password: ")
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

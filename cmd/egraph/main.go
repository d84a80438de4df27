package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/rohankatakam/elemgraph/internal/config"
	"github.com/rohankatakam/elemgraph/internal/engine"
	"github.com/rohankatakam/elemgraph/internal/logging"
)

var (
	// Version information (set by build flags)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	cfgFile   string
	verbose   bool
	userID    string
	dataAuths string

	cfg    *config.Config
	logger *logging.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "egraph",
	Short: "Run operation chains against an element graph",
	Long: `egraph executes JSON operation chains against a schema-driven element
graph backed by memory, bbolt, Neo4j or a federation of graphs.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return err
		}
		if verbose {
			cfg.Logging.Level = "debug"
		}
		logger, err = logging.New(cfg.Logging)
		if err != nil {
			return err
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if logger != nil {
			return logger.Close()
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: .elemgraph/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&userID, "user", os.Getenv("USER"), "user id the chain runs as")
	rootCmd.PersistentFlags().StringVar(&dataAuths, "auths", "", "comma-separated visibility labels the user holds")

	rootCmd.AddCommand(executeCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(jobsCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

func currentUser() engine.User {
	u := engine.User{ID: userID}
	for _, a := range strings.Split(dataAuths, ",") {
		if a = strings.TrimSpace(a); a != "" {
			u.DataAuths = append(u.DataAuths, a)
		}
	}
	return u
}

func baseLogger() *logrus.Logger {
	if logger == nil {
		return logging.Discard()
	}
	return logger.Logger
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "egraph %s\nBuild time: %s\nGit commit: %s\n", Version, BuildTime, GitCommit)
	},
}

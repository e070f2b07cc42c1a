// Package main provides the fundd binary: the pooled fund governance service
// and its operator commands.
package main

import (
	"fmt"
	"os"

	"github.com/mborders/logmatic"
	"github.com/spf13/cobra"

	"solana-fund-dao/internal/config"
	"solana-fund-dao/internal/logging"
)

const (
	Version = "0.1.0"
	appName = "fundd"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	envFile    string
	logLevel   string
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	g := &globalFlags{}

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Pooled fund governance and proposal execution",
		Long: `fundd runs a pooled fund: members deposit capital for voting shares,
submit investment proposals, vote with snapshot-weighted shares, and approved
proposals are executed against a trade venue.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&g.configPath, "config", "c", "fundd.yaml", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&g.envFile, "env-file", ".env", "Env file loaded before config")
	cmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "Log level override (trace, debug, info, warn, error)")

	cmd.AddCommand(
		serveCmd(g),
		migrateCmd(g),
		inspectCmd(g),
		fundCmd(g),
		proposalCmd(g),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", appName, Version)
			},
		},
	)
	return cmd
}

// load reads configuration and builds the logger.
func (g *globalFlags) load() (*config.Config, *logmatic.Logger, error) {
	config.LoadEnvFile(g.envFile)

	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, nil, err
	}
	if g.logLevel != "" {
		cfg.LogLevel = g.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}

	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

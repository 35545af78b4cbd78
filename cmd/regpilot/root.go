package main

import (
	"fmt"
	"os"

	"github.com/entrhq/regpilot/pkg/config"
	"github.com/spf13/cobra"
)

var (
	configPath string
	version    string = "dev"
	commit     string = "unknown"
	date       string = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "regpilot",
	Short: "Automate government registration portals on behalf of business owners",
	Long: `regpilot runs browser automation sessions that walk GST and MSME (Udyam)
registration portals using a business profile, pausing whenever the portal
sends the owner a one-time password and resuming once the owner submits it.

Quick Start:
  regpilot seed --file businesses.yaml   # Load business profiles
  regpilot token --user <owner-id>       # Mint a bearer token for local testing
  regpilot serve                         # Start the HTTP API`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML config file")

	// Set version template to ensure --version flag works
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	rootCmd.AddCommand(serveCmd, tokenCmd, seedCmd)
}

// loadConfig reads the config file named by --config plus environment
// overrides and validates the result.
func loadConfig(overrides config.Overrides) (*config.Config, error) {
	cfg, err := config.Load(configPath, overrides)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/entrhq/regpilot/pkg/config"
	"github.com/entrhq/regpilot/pkg/license"
	"github.com/spf13/cobra"
)

var seedFile string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load business profiles from a YAML file into the store",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if seedFile == "" {
			return errors.New("--file is required")
		}
		cfg, err := config.Load(configPath, config.Overrides{})
		if err != nil {
			return err
		}
		if cfg.Store.Driver == config.StoreMemory {
			return errors.New("seeding the memory store has no lasting effect; use store.seed_file with serve instead")
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		store, err := openStore(ctx, cfg.Store)
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		defer store.Close(context.Background())

		n, err := license.Seed(ctx, store, seedFile)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d business profiles into %s store\n", n, cfg.Store.Driver)
		return nil
	},
}

func init() {
	seedCmd.Flags().StringVarP(&seedFile, "file", "f", "", "YAML file with a top-level businesses list")
}

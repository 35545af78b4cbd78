package main

import (
	"errors"
	"fmt"

	"github.com/entrhq/regpilot/pkg/auth"
	"github.com/entrhq/regpilot/pkg/config"
	"github.com/spf13/cobra"
)

var tokenUser string

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a bearer token for an owner (development use)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if tokenUser == "" {
			return errors.New("--user is required")
		}
		cfg, err := config.Load(configPath, config.Overrides{})
		if err != nil {
			return err
		}

		jwtManager, err := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL.Std())
		if err != nil {
			return fmt.Errorf("%w (set auth.jwt_secret or REGPILOT_JWT_SECRET)", err)
		}
		token, err := jwtManager.CreateToken(tokenUser)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVarP(&tokenUser, "user", "u", "", "Owner id to put in the token subject")
}

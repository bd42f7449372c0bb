package main

import (
	"fmt"

	"github.com/jonathan/newsroom/internal/config"
	"github.com/jonathan/newsroom/internal/server"
	"github.com/spf13/cobra"
)

var tokenActor string

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a bearer token for an actor",
	Long:  "Issue a signed bearer token using JWT_SECRET. Useful for local testing of authenticated routes.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		actor, err := parseActor(tokenActor)
		if err != nil {
			return err
		}
		jwtConfig, err := config.NewJWTConfig()
		if err != nil {
			return fmt.Errorf("failed to create JWT config: %w", err)
		}
		token, err := server.NewJWTService(jwtConfig).GenerateToken(actor)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenActor, "actor", "", "Actor UUID to embed in the token (required)")
	rootCmd.AddCommand(tokenCmd)
}

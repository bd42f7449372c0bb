package main

import (
	"fmt"

	"github.com/jonathan/newsroom/internal/db"
	"github.com/spf13/cobra"
)

var sourcesActor string

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Manage stored news sources",
}

var sourcesSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Store every configured news source for an actor",
	Long:  "Upsert each source listed in the config file into the actor's stored sources, so sessions can ingest them by ID.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		actor, err := parseActor(sourcesActor)
		if err != nil {
			return err
		}
		cfg, err := loadConfig(configPath)
		if err != nil {
			return err
		}
		if len(cfg.Sources) == 0 {
			return fmt.Errorf("no sources configured")
		}
		database, err := connectDB(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer database.Close()

		for _, source := range cfg.Sources {
			stored, err := database.UpsertNewsSource(cmd.Context(), actor, db.NewsSourceInput{
				ID:        source.ID,
				Name:      source.Name,
				URL:       source.URL,
				Category:  source.Category,
				Frequency: source.Frequency,
			})
			if err != nil {
				return fmt.Errorf("failed to store source %s: %w", source.ID, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stored %s (%s)\n", stored.ID, stored.URL)
		}
		return nil
	},
}

var sourcesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List an actor's stored news sources",
	RunE: func(cmd *cobra.Command, _ []string) error {
		actor, err := parseActor(sourcesActor)
		if err != nil {
			return err
		}
		cfg, err := loadConfig(configPath)
		if err != nil {
			return err
		}
		database, err := connectDB(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer database.Close()

		sources, err := database.ListNewsSources(cmd.Context(), actor)
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), sources)
	},
}

func init() {
	sourcesCmd.PersistentFlags().StringVar(&sourcesActor, "actor", "", "Actor UUID owning the sources (required)")
	sourcesCmd.AddCommand(sourcesSyncCmd, sourcesListCmd)
	rootCmd.AddCommand(sourcesCmd)
}

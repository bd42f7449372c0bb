package main

import (
	"github.com/jonathan/newsroom/internal/db"
	"github.com/spf13/cobra"
)

var (
	articlesActor  string
	articlesSource string
	articlesState  string
	articlesLimit  int
)

var articlesCmd = &cobra.Command{
	Use:   "articles",
	Short: "List ingested news articles",
	RunE: func(cmd *cobra.Command, _ []string) error {
		actor, err := parseActor(articlesActor)
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

		articles, err := database.ListNewsArticles(cmd.Context(), actor, db.NewsArticleFilters{
			SourceID: articlesSource,
			State:    articlesState,
			Limit:    articlesLimit,
		})
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), articles)
	},
}

var draftsActor string

var draftsCmd = &cobra.Command{
	Use:   "drafts",
	Short: "List an actor's saved drafts",
	RunE: func(cmd *cobra.Command, _ []string) error {
		actor, err := parseActor(draftsActor)
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

		drafts, err := database.ListDrafts(cmd.Context(), actor)
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), drafts)
	},
}

func init() {
	articlesCmd.Flags().StringVar(&articlesActor, "actor", "", "Actor UUID owning the articles (required)")
	articlesCmd.Flags().StringVar(&articlesSource, "source", "", "Only list articles from this source ID")
	articlesCmd.Flags().StringVar(&articlesState, "state", "", "Only list articles in this state")
	articlesCmd.Flags().IntVar(&articlesLimit, "limit", 50, "Maximum number of articles")
	draftsCmd.Flags().StringVar(&draftsActor, "actor", "", "Actor UUID owning the drafts (required)")
	rootCmd.AddCommand(articlesCmd, draftsCmd)
}

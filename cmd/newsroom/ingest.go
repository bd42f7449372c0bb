package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonathan/newsroom/internal/ingestion"
	"github.com/jonathan/newsroom/internal/processing"
	"github.com/spf13/cobra"
)

var (
	ingestActor   string
	ingestSources []string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Fetch the latest news for configured sources",
	Long: `Call the ingestion webhook for each selected source and store the returned articles for an actor.

Without --source every configured source is ingested.`,
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestActor, "actor", "", "Actor UUID the articles are stored for (required)")
	ingestCmd.Flags().StringSliceVar(&ingestSources, "source", nil, "Configured source ID to ingest (repeatable)")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, _ []string) error {
	actor, err := parseActor(ingestActor)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if cfg.Ingestion.WebhookURL == "" {
		return fmt.Errorf("INGESTION_WEBHOOK_URL or ingestion.webhook_url is required")
	}
	sources, err := selectSources(cfg.Sources, ingestSources)
	if err != nil {
		return err
	}

	logger, closer := newLogger(cfg)
	defer closer.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := connectDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	service, err := newIngestionService(cfg, database, logger)
	if err != nil {
		return err
	}

	tracker := processing.NewTracker(logger)
	unsubscribe := tracker.Subscribe(func(status processing.Status) {
		fmt.Fprintf(cmd.ErrOrStderr(), "[%3d%%] %s %s\n", status.Progress, status.Stage, status.Message)
	})
	defer unsubscribe()

	result, err := service.Run(ctx, ingestion.Job{
		Actor:    actor,
		Sources:  sources,
		Progress: tracker,
		Notifier: ingestion.NewLogNotifier(logger),
	})
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), result)
}

// selectSources picks the configured sources named by ids, or all of them when ids is empty.
func selectSources(configured []ingestion.NewsSource, ids []string) ([]ingestion.NewsSource, error) {
	if len(configured) == 0 {
		return nil, fmt.Errorf("no sources configured")
	}
	if len(ids) == 0 {
		return configured, nil
	}
	byID := make(map[string]ingestion.NewsSource, len(configured))
	for _, source := range configured {
		byID[source.ID] = source
	}
	selected := make([]ingestion.NewsSource, 0, len(ids))
	for _, id := range ids {
		source, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("unknown source %q", id)
		}
		selected = append(selected, source)
	}
	return selected, nil
}


package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonathan/newsroom/internal/config"
	"github.com/jonathan/newsroom/internal/db"
	"github.com/jonathan/newsroom/internal/ingestion"
	"github.com/jonathan/newsroom/internal/server"
	"github.com/jonathan/newsroom/internal/server/ratelimit"
	"github.com/jonathan/newsroom/internal/session"
	"github.com/spf13/cobra"
)

var (
	servePort    int
	serveMigrate bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long: `Start an HTTP server that exposes authoring sessions over REST, Server-Sent Events and websockets.

Without a database, drafts are kept in memory and news ingestion is disabled.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", config.DefaultPort, "Port to listen on (overrides config and PORT)")
	serveCmd.Flags().BoolVar(&serveMigrate, "migrate", false, "Apply database migrations before serving")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("port") {
		cfg.Port = servePort
	}

	logger, closer := newLogger(cfg)
	defer closer.Close()

	jwtConfig, err := config.NewJWTConfig()
	if err != nil {
		return fmt.Errorf("failed to create JWT config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sessionCfg := session.Config{
		ProcessingTimeout: cfg.Sessions.ProcessingTimeout.Std(),
		Logger:            logger,
	}
	serverCfg := server.Config{
		Port:      cfg.Port,
		JWT:       server.NewJWTService(jwtConfig),
		Sources:   cfg.Sources,
		RateLimit: ratelimit.LoadConfig(),
		Logger:    logger,
	}

	var database *db.DB
	if cfg.DatabaseURL != "" {
		database, err = connectDB(ctx, cfg)
		if err != nil {
			return err
		}
		defer database.Close()

		if serveMigrate {
			applied, err := database.Migrate(ctx)
			if err != nil {
				return err
			}
			logger.Info("migrations applied", "count", len(applied))
		}

		sessionCfg.Drafts = database
		serverCfg.Drafts = database
		serverCfg.SourceStore = database
		serverCfg.Health = database
	} else {
		drafts := session.NewMemoryDrafts()
		sessionCfg.Drafts = drafts
		serverCfg.Drafts = drafts
		logger.Warn("no database configured; drafts are kept in memory")
	}

	switch {
	case cfg.Ingestion.WebhookURL == "":
		logger.Warn("news ingestion disabled: no webhook URL configured")
	case database == nil:
		logger.Warn("news ingestion disabled: articles need a database")
	default:
		service, err := newIngestionService(cfg, database, logger)
		if err != nil {
			return err
		}
		sessionCfg.Ingester = service
	}

	serverCfg.Sessions = session.NewManager(sessionCfg, cfg.Sessions.IdleTTL.Std())

	srv, err := server.New(serverCfg)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	return srv.Start(ctx)
}

// newIngestionService wires the webhook client to article persistence.
func newIngestionService(cfg *config.Config, database *db.DB, logger *slog.Logger) (*ingestion.Service, error) {
	client, err := ingestion.NewWebhookClient(cfg.Ingestion.WebhookURL, ingestion.WebhookOptions{
		Secret:  cfg.Ingestion.WebhookSecret,
		Timeout: cfg.Ingestion.Timeout.Std(),
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create webhook client: %w", err)
	}
	service := ingestion.NewService(client, db.NewNewsStore(database), logger)
	service.SetConcurrency(cfg.Ingestion.Concurrency)
	return service, nil
}

package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/jonathan/newsroom/internal/processing"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency bounds simultaneous webhook calls in Run.
const DefaultConcurrency = 4

// Progress checkpoints reported while ingesting
const (
	progressRequested  = 10
	progressFetched    = 50
	progressPersisting = 80
	progressDone       = 100
)

// Job describes one ingestion run on behalf of an authoring session.
type Job struct {
	Actor    uuid.UUID
	Sources  []NewsSource
	Progress ProgressReporter
	Notifier Notifier
}

// Service fetches articles and persists them. It never retries.
type Service struct {
	fetcher     Fetcher
	persister   Persister
	concurrency int
	logger      *slog.Logger
}

// NewService creates an ingestion service.
func NewService(fetcher Fetcher, persister Persister, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		fetcher:     fetcher,
		persister:   persister,
		concurrency: DefaultConcurrency,
		logger:      logger,
	}
}

// SetConcurrency changes how many sources are fetched at once.
func (s *Service) SetConcurrency(n int) {
	if n > 0 {
		s.concurrency = n
	}
}

// Ingest runs a job for a single source.
func (s *Service) Ingest(ctx context.Context, actor uuid.UUID, source NewsSource, progress ProgressReporter, notifier Notifier) (*Result, error) {
	return s.Run(ctx, Job{
		Actor:    actor,
		Sources:  []NewsSource{source},
		Progress: progress,
		Notifier: notifier,
	})
}

// Run fetches every source of the job concurrently, then persists each batch.
// Progress goes uploading -> extracting -> organizing -> completed, or error.
// Failures are reported to the notifier with their message untouched.
func (s *Service) Run(ctx context.Context, job Job) (*Result, error) {
	if len(job.Sources) == 0 {
		return nil, fmt.Errorf("ingestion job has no sources")
	}
	report := newSerialReporter(job.Progress)
	notifier := job.Notifier
	if notifier == nil {
		notifier = NewLogNotifier(s.logger)
	}

	report.update(processing.StageUploading, progressRequested, "Solicitando notícias...")

	batches := make([][]NewsArticle, len(job.Sources))
	var done int
	var doneMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, source := range job.Sources {
		g.Go(func() error {
			articles, err := s.fetcher.FetchLatest(gctx, source)
			if err != nil {
				return fmt.Errorf("source %s: %w", source.ID, err)
			}
			batches[i] = articles

			doneMu.Lock()
			done++
			pct := progressRequested + (progressFetched-progressRequested)*done/len(job.Sources)
			doneMu.Unlock()
			report.update(processing.StageUploading, pct, fmt.Sprintf("Fonte %s respondeu", source.ID))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, s.fail(ctx, report, notifier, "Falha ao buscar notícias", err)
	}

	result := &Result{Sources: len(job.Sources)}
	for _, batch := range batches {
		result.Fetched += len(batch)
	}
	report.update(processing.StageExtracting, progressFetched, fmt.Sprintf("%d notícias recebidas", result.Fetched))

	if result.Fetched == 0 {
		report.update(processing.StageCompleted, progressDone, "Nenhuma notícia nova")
		notifier.NotifySuccess("Nenhuma notícia nova encontrada.")
		return result, nil
	}

	report.update(processing.StageOrganizing, progressPersisting, "Salvando notícias...")
	for i, batch := range batches {
		if len(batch) == 0 {
			continue
		}
		n, err := s.persister.PersistArticles(ctx, job.Actor, job.Sources[i].ID, batch)
		if err != nil {
			return result, s.fail(ctx, report, notifier, "Falha ao salvar notícias", err)
		}
		result.Persisted += n
	}

	report.update(processing.StageCompleted, progressDone, "Notícias importadas")
	notifier.NotifySuccess(fmt.Sprintf("%d notícias importadas com sucesso.", result.Persisted))
	s.logger.Info("ingestion completed",
		"actor", job.Actor, "sources", result.Sources, "fetched", result.Fetched, "persisted", result.Persisted)
	return result, nil
}

// fail reports a failed run. Cancellation resets the tracker to idle instead of error.
func (s *Service) fail(ctx context.Context, report *serialReporter, notifier Notifier, message string, err error) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		s.logger.Info("ingestion cancelled", "error", err)
		report.update(processing.StageIdle, 0, "Importação cancelada")
		notifier.NotifyCancelled()
		return err
	}

	s.logger.Error("ingestion failed", "message", message, "error", err)
	report.update(processing.StageError, report.last(), message, err.Error())
	notifier.NotifyError(err.Error())
	return err
}

// serialReporter forwards updates one at a time so observers see them in order.
type serialReporter struct {
	mu      sync.Mutex
	target  ProgressReporter
	current int
}

func newSerialReporter(target ProgressReporter) *serialReporter {
	return &serialReporter{target: target}
}

func (r *serialReporter) update(stage processing.Stage, progress int, message string, errDetail ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if stage != processing.StageIdle && progress < r.current {
		progress = r.current
	}
	r.current = progress
	if r.target != nil {
		r.target.UpdateProgress(stage, progress, message, errDetail...)
	}
}

func (r *serialReporter) last() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

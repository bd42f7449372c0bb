package ingestion

import (
	"context"

	"github.com/google/uuid"
	"github.com/jonathan/newsroom/internal/processing"
)

// Fetcher retrieves the latest articles of a source.
type Fetcher interface {
	FetchLatest(ctx context.Context, source NewsSource) ([]NewsArticle, error)
}

// Persister stores fetched articles attributed to an actor and returns how many were saved.
// Implementations fail with ErrUnauthenticated when actor is uuid.Nil.
type Persister interface {
	PersistArticles(ctx context.Context, actor uuid.UUID, sourceID string, articles []NewsArticle) (int, error)
}

// Notifier surfaces outcomes to the user. Calls must not block.
type Notifier interface {
	NotifySuccess(message string)
	NotifyError(message string)
	NotifyCancelled()
}

// ProgressReporter receives processing status updates. *processing.Tracker satisfies it.
type ProgressReporter interface {
	UpdateProgress(stage processing.Stage, progress int, message string, errDetail ...string) processing.Status
}

package db

import (
	"context"

	"github.com/google/uuid"
	"github.com/jonathan/newsroom/internal/ingestion"
)

// ArticleWriter is the subset of DB used by NewsStore
type ArticleWriter interface {
	InsertNewsArticles(ctx context.Context, userID uuid.UUID, sourceID string, articles []NewsArticleInput) (int, error)
}

// NewsStore persists ingested articles. It satisfies ingestion.Persister.
type NewsStore struct {
	writer ArticleWriter
}

// NewNewsStore creates a store writing through w
func NewNewsStore(w ArticleWriter) *NewsStore {
	return &NewsStore{writer: w}
}

// PersistArticles attributes the articles to actor and stores them as new rows.
func (s *NewsStore) PersistArticles(ctx context.Context, actor uuid.UUID, sourceID string, articles []ingestion.NewsArticle) (int, error) {
	if actor == uuid.Nil {
		return 0, ingestion.ErrUnauthenticated
	}
	if len(articles) == 0 {
		return 0, nil
	}

	rows := make([]NewsArticleInput, len(articles))
	for i, a := range articles {
		rows[i] = NewsArticleInput{
			Title:       a.Title,
			Content:     a.Content,
			Link:        a.Link,
			PublishedAt: a.PublishedAt,
		}
	}

	n, err := s.writer.InsertNewsArticles(ctx, actor, sourceID, rows)
	if err != nil {
		return 0, &ingestion.PersistenceError{Reason: "insert news_articles", Cause: err}
	}
	return n, nil
}

package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// DefaultArticleListLimit caps ListNewsArticles when no limit is given
const DefaultArticleListLimit = 100

// -----------------------------------------------------------------------------
// News Article Methods
// -----------------------------------------------------------------------------

// InsertNewsArticles stores a batch of ingested articles for a user in one transaction.
// Every row starts in ArticleStateNew. Either all rows are stored or none.
func (db *DB) InsertNewsArticles(ctx context.Context, userID uuid.UUID, sourceID string, articles []NewsArticleInput) (int, error) {
	if len(articles) == 0 {
		return 0, nil
	}

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	for _, a := range articles {
		batch.Queue(
			`INSERT INTO news_articles (user_id, source_id, title, content, link, published_at, state)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			userID, sourceID, a.Title, nullIfEmpty(a.Content), nullIfEmpty(a.Link),
			nullIfEmpty(a.PublishedAt), ArticleStateNew,
		)
	}

	results := tx.SendBatch(ctx, batch)
	for i := range articles {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return 0, fmt.Errorf("failed to insert news article %d: %w", i, err)
		}
	}
	if err := results.Close(); err != nil {
		return 0, fmt.Errorf("failed to close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return len(articles), nil
}

// ListNewsArticles lists a user's articles, newest first
func (db *DB) ListNewsArticles(ctx context.Context, userID uuid.UUID, filters NewsArticleFilters) ([]NewsArticle, error) {
	limit := filters.Limit
	if limit <= 0 {
		limit = DefaultArticleListLimit
	}

	rows, err := db.pool.Query(ctx,
		`SELECT id, user_id, source_id, title, content, link, published_at, state, created_at
		 FROM news_articles
		 WHERE user_id = $1
		   AND ($2::text IS NULL OR source_id = $2)
		   AND ($3::text IS NULL OR state = $3)
		 ORDER BY created_at DESC
		 LIMIT $4`,
		userID, nullIfEmpty(filters.SourceID), nullIfEmpty(filters.State), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list news articles: %w", err)
	}
	defer rows.Close()

	var articles []NewsArticle
	for rows.Next() {
		var a NewsArticle
		var content, link, publishedAt *string
		if err := rows.Scan(&a.ID, &a.UserID, &a.SourceID, &a.Title, &content, &link,
			&publishedAt, &a.State, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan news article: %w", err)
		}
		a.Content = derefString(content)
		a.Link = derefString(link)
		a.PublishedAt = derefString(publishedAt)
		articles = append(articles, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate news articles: %w", err)
	}
	return articles, nil
}

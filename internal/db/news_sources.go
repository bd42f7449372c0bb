package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// -----------------------------------------------------------------------------
// News Source Methods
// -----------------------------------------------------------------------------

// UpsertNewsSource creates a source or updates the user's source with the same ID
func (db *DB) UpsertNewsSource(ctx context.Context, userID uuid.UUID, input NewsSourceInput) (*NewsSource, error) {
	var s NewsSource
	var name *string
	err := db.pool.QueryRow(ctx,
		`INSERT INTO news_sources (id, user_id, name, url, category, frequency)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (user_id, id) DO UPDATE SET
		     name = EXCLUDED.name,
		     url = EXCLUDED.url,
		     category = EXCLUDED.category,
		     frequency = EXCLUDED.frequency,
		     updated_at = NOW()
		 RETURNING id, user_id, name, url, category, frequency, created_at, updated_at`,
		input.ID, userID, nullIfEmpty(input.Name), input.URL, input.Category, input.Frequency,
	).Scan(&s.ID, &s.UserID, &name, &s.URL, &s.Category, &s.Frequency, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert news source: %w", err)
	}
	s.Name = derefString(name)
	return &s, nil
}

// GetNewsSource retrieves a source by ID for a user
func (db *DB) GetNewsSource(ctx context.Context, userID uuid.UUID, id string) (*NewsSource, error) {
	var s NewsSource
	var name *string
	err := db.pool.QueryRow(ctx,
		`SELECT id, user_id, name, url, category, frequency, created_at, updated_at
		 FROM news_sources WHERE id = $1 AND user_id = $2`,
		id, userID,
	).Scan(&s.ID, &s.UserID, &name, &s.URL, &s.Category, &s.Frequency, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get news source: %w", err)
	}
	s.Name = derefString(name)
	return &s, nil
}

// ListNewsSources lists a user's sources ordered by ID
func (db *DB) ListNewsSources(ctx context.Context, userID uuid.UUID) ([]NewsSource, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, user_id, name, url, category, frequency, created_at, updated_at
		 FROM news_sources WHERE user_id = $1 ORDER BY id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list news sources: %w", err)
	}
	defer rows.Close()

	var sources []NewsSource
	for rows.Next() {
		var s NewsSource
		var name *string
		if err := rows.Scan(&s.ID, &s.UserID, &name, &s.URL, &s.Category, &s.Frequency, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan news source: %w", err)
		}
		s.Name = derefString(name)
		sources = append(sources, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate news sources: %w", err)
	}
	return sources, nil
}

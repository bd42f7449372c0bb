package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// -----------------------------------------------------------------------------
// Draft Methods
// -----------------------------------------------------------------------------

// SaveDraft inserts a new draft or updates an existing one owned by the user.
// The state is stored as JSONB.
func (db *DB) SaveDraft(ctx context.Context, userID uuid.UUID, input DraftInput) (*Draft, error) {
	stateJSON, err := json.Marshal(input.State)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal draft state: %w", err)
	}

	status := input.Status
	if status == "" {
		status = DraftStatusDraft
	}

	var d Draft
	if input.ID == nil {
		err = db.pool.QueryRow(ctx,
			`INSERT INTO article_drafts (user_id, title, step, status, state)
			 VALUES ($1, $2, $3, $4, $5)
			 RETURNING id, user_id, title, step, status, state, created_at, updated_at`,
			userID, input.Title, input.Step, status, stateJSON,
		).Scan(&d.ID, &d.UserID, &d.Title, &d.Step, &d.Status, &d.State, &d.CreatedAt, &d.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to insert draft: %w", err)
		}
		return &d, nil
	}

	err = db.pool.QueryRow(ctx,
		`INSERT INTO article_drafts (id, user_id, title, step, status, state)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE SET
		     title = EXCLUDED.title,
		     step = EXCLUDED.step,
		     status = EXCLUDED.status,
		     state = EXCLUDED.state,
		     updated_at = NOW()
		 WHERE article_drafts.user_id = EXCLUDED.user_id
		 RETURNING id, user_id, title, step, status, state, created_at, updated_at`,
		*input.ID, userID, input.Title, input.Step, status, stateJSON,
	).Scan(&d.ID, &d.UserID, &d.Title, &d.Step, &d.Status, &d.State, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("draft %s belongs to another user", *input.ID)
		}
		return nil, fmt.Errorf("failed to save draft: %w", err)
	}
	return &d, nil
}

// GetDraft retrieves a draft owned by the user
func (db *DB) GetDraft(ctx context.Context, userID, id uuid.UUID) (*Draft, error) {
	var d Draft
	err := db.pool.QueryRow(ctx,
		`SELECT id, user_id, title, step, status, state, created_at, updated_at
		 FROM article_drafts WHERE id = $1 AND user_id = $2`,
		id, userID,
	).Scan(&d.ID, &d.UserID, &d.Title, &d.Step, &d.Status, &d.State, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get draft: %w", err)
	}
	return &d, nil
}

// ListDrafts lists a user's drafts, most recently updated first
func (db *DB) ListDrafts(ctx context.Context, userID uuid.UUID) ([]Draft, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, user_id, title, step, status, state, created_at, updated_at
		 FROM article_drafts WHERE user_id = $1 ORDER BY updated_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list drafts: %w", err)
	}
	defer rows.Close()

	var drafts []Draft
	for rows.Next() {
		var d Draft
		if err := rows.Scan(&d.ID, &d.UserID, &d.Title, &d.Step, &d.Status, &d.State, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan draft: %w", err)
		}
		drafts = append(drafts, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate drafts: %w", err)
	}
	return drafts, nil
}

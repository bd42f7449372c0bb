package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/newsroom/internal/db"
)

// DraftStore persists article drafts. *db.DB satisfies it.
type DraftStore interface {
	SaveDraft(ctx context.Context, userID uuid.UUID, input db.DraftInput) (*db.Draft, error)
	GetDraft(ctx context.Context, userID, id uuid.UUID) (*db.Draft, error)
}

var _ DraftStore = (*db.DB)(nil)

// MemoryDrafts is an in-process DraftStore used when no database is configured.
type MemoryDrafts struct {
	mu     sync.Mutex
	drafts map[uuid.UUID]db.Draft
}

// NewMemoryDrafts creates an empty store.
func NewMemoryDrafts() *MemoryDrafts {
	return &MemoryDrafts{drafts: make(map[uuid.UUID]db.Draft)}
}

// SaveDraft implements DraftStore.
func (m *MemoryDrafts) SaveDraft(_ context.Context, userID uuid.UUID, input db.DraftInput) (*db.Draft, error) {
	stateJSON, err := json.Marshal(input.State)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal draft state: %w", err)
	}
	status := input.Status
	if status == "" {
		status = db.DraftStatusDraft
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	d := db.Draft{ID: uuid.New(), CreatedAt: now}
	if input.ID != nil {
		if existing, ok := m.drafts[*input.ID]; ok {
			if existing.UserID != userID {
				return nil, fmt.Errorf("draft %s belongs to another user", *input.ID)
			}
			d = existing
		} else {
			d.ID = *input.ID
		}
	}
	d.UserID = userID
	d.Title = input.Title
	d.Step = input.Step
	d.Status = status
	d.State = stateJSON
	d.UpdatedAt = now
	m.drafts[d.ID] = d

	out := d
	return &out, nil
}

// GetDraft implements DraftStore. A draft of another user is reported as missing.
func (m *MemoryDrafts) GetDraft(_ context.Context, userID, id uuid.UUID) (*db.Draft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drafts[id]
	if !ok || d.UserID != userID {
		return nil, nil
	}
	return &d, nil
}

package db

import (
	"time"

	"github.com/google/uuid"
)

// ArticleState constants for ingested news rows
const (
	ArticleStateNew      = "nova"
	ArticleStateUsed     = "usada"
	ArticleStateArchived = "arquivada"
)

// DraftStatus constants
const (
	DraftStatusDraft     = "draft"
	DraftStatusPublished = "published"
)

// NewsSource is a configured external news source
type NewsSource struct {
	ID        string    `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Name      string    `json:"name,omitempty"`
	URL       string    `json:"url"`
	Category  string    `json:"category"`
	Frequency string    `json:"frequency"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewsSourceInput is the input for creating or updating a news source
type NewsSourceInput struct {
	ID        string
	Name      string
	URL       string
	Category  string
	Frequency string
}

// NewsArticle is one ingested article row
type NewsArticle struct {
	ID          uuid.UUID `json:"id"`
	UserID      uuid.UUID `json:"user_id"`
	SourceID    string    `json:"source_id"`
	Title       string    `json:"title"`
	Content     string    `json:"content,omitempty"`
	Link        string    `json:"link,omitempty"`
	PublishedAt string    `json:"published_at,omitempty"`
	State       string    `json:"state"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewsArticleInput is the input for inserting an ingested article
type NewsArticleInput struct {
	Title       string
	Content     string
	Link        string
	PublishedAt string
}

// NewsArticleFilters holds optional filters for listing articles
type NewsArticleFilters struct {
	SourceID string
	State    string
	Limit    int
}

// Draft is a persisted article-under-construction
type Draft struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Title     string    `json:"title"`
	Step      string    `json:"step"`
	Status    string    `json:"status"`
	State     []byte    `json:"state"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DraftInput is the input for saving a draft. A nil ID creates a new draft.
type DraftInput struct {
	ID     *uuid.UUID
	Title  string
	Step   string
	Status string
	State  any
}

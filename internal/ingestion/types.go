// Package ingestion fetches news from external sources through a webhook and
// hands the articles to persistence, reporting progress and outcomes as it goes.
package ingestion

// ActionFetchLatest is the only webhook action the service sends.
const ActionFetchLatest = "fetch_latest"

// NewsSource identifies where articles are fetched from.
type NewsSource struct {
	ID        string `json:"id" yaml:"id"`
	Name      string `json:"name,omitempty" yaml:"name"`
	URL       string `json:"url" yaml:"url"`
	Category  string `json:"category" yaml:"category"`
	Frequency string `json:"frequency" yaml:"frequency"`
}

// NewsArticle is one article returned by the webhook. Fields are passed through untouched.
type NewsArticle struct {
	Title       string `json:"title"`
	Content     string `json:"content,omitempty"`
	Link        string `json:"link,omitempty"`
	PublishedAt string `json:"published_at,omitempty"`
}

// FetchRequest is the webhook request body.
type FetchRequest struct {
	Action    string `json:"action"`
	SourceID  string `json:"sourceId"`
	URL       string `json:"url"`
	Category  string `json:"category"`
	Frequency string `json:"frequency"`
}

// FetchResponse is the webhook response body.
type FetchResponse struct {
	Articles []NewsArticle `json:"articles"`
}

// NewFetchRequest builds the fetch_latest payload for a source.
func NewFetchRequest(source NewsSource) FetchRequest {
	return FetchRequest{
		Action:    ActionFetchLatest,
		SourceID:  source.ID,
		URL:       source.URL,
		Category:  source.Category,
		Frequency: source.Frequency,
	}
}

// Result summarizes one ingestion run.
type Result struct {
	Sources   int `json:"sources"`
	Fetched   int `json:"fetched"`
	Persisted int `json:"persisted"`
}

package ingestion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// DefaultWebhookTimeout is the default timeout of one webhook call.
const DefaultWebhookTimeout = 60 * time.Second

// maxResponseBytes caps how much of a webhook response is read.
const maxResponseBytes = 10 << 20

// WebhookOptions configures a WebhookClient.
type WebhookOptions struct {
	Secret     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// WebhookClient fetches articles by posting fetch_latest requests to an ingestion webhook.
type WebhookClient struct {
	endpoint string
	secret   string
	client   *http.Client
	logger   *slog.Logger
}

var _ Fetcher = (*WebhookClient)(nil)

// NewWebhookClient creates a client for the webhook at endpoint.
func NewWebhookClient(endpoint string, opts WebhookOptions) (*WebhookClient, error) {
	parsed, err := url.Parse(endpoint)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil, &FetchError{URL: endpoint, Message: "invalid webhook URL", Cause: err}
	}

	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultWebhookTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &WebhookClient{
		endpoint: endpoint,
		secret:   opts.Secret,
		client:   client,
		logger:   logger,
	}, nil
}

// FetchLatest asks the webhook for the latest articles of source.
func (c *WebhookClient) FetchLatest(ctx context.Context, source NewsSource) ([]NewsArticle, error) {
	payload, err := json.Marshal(NewFetchRequest(source))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal fetch request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, &FetchError{URL: c.endpoint, Message: "failed to build request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.secret != "" {
		req.Header.Set("Authorization", "Bearer "+c.secret)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &FetchError{URL: c.endpoint, Message: "request failed", Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &FetchError{URL: c.endpoint, StatusCode: resp.StatusCode, Message: "failed to read response", Cause: err}
	}

	c.logger.Debug("webhook responded",
		"source_id", source.ID, "status", resp.StatusCode, "bytes", len(body), "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &FetchError{URL: c.endpoint, StatusCode: resp.StatusCode, Message: string(bytes.TrimSpace(body))}
	}

	if err := ValidateWebhookResponse(body); err != nil {
		return nil, err
	}

	var out FetchResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, &FetchError{URL: c.endpoint, StatusCode: resp.StatusCode, Message: "invalid JSON", Cause: err}
	}
	return out.Articles, nil
}

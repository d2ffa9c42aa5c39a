package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"clipcast/internal/config"
	"clipcast/internal/domain"
	"clipcast/internal/models"

	"github.com/rs/zerolog"
)

// Client talks to the platform dispatcher sidecar, the service that owns
// the actual platform credentials and API bindings. The engine only sees
// this surface: publish a content ref, fetch a metrics snapshot, read
// best-time hints. Implements domain.Publisher, domain.MetricsFetcher
// and domain.BestTimeProvider.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  zerolog.Logger
}

func NewClient(cfg config.DispatchConfig, logger *zerolog.Logger) *Client {
	log := zerolog.Nop()
	if logger != nil {
		log = logger.With().Str("component", "dispatch").Logger()
	}
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		// Per-call deadlines come from the worker contexts.
		http:   &http.Client{},
		logger: log,
	}
}

// Publish asks the dispatcher to post the content ref on the platform.
func (c *Client) Publish(ctx context.Context, platform, account, contentRef string) (*domain.PublishResult, error) {
	body := map[string]string{
		"platform":    platform,
		"account":     account,
		"content_ref": contentRef,
	}

	var out struct {
		ExternalPostID  string `json:"external_post_id"`
		ExternalPostURL string `json:"external_post_url"`
	}
	if err := c.post(ctx, "/v1/publish", body, &out); err != nil {
		return nil, fmt.Errorf("dispatch publish: %w", err)
	}
	if out.ExternalPostID == "" {
		return nil, fmt.Errorf("dispatch publish: empty external post id")
	}
	return &domain.PublishResult{
		ExternalPostID:  out.ExternalPostID,
		ExternalPostURL: out.ExternalPostURL,
	}, nil
}

// FetchMetrics reads the current metrics snapshot for a published post.
func (c *Client) FetchMetrics(ctx context.Context, platform, externalPostID string) (*models.MetricsSnapshot, error) {
	q := url.Values{"platform": {platform}, "post_id": {externalPostID}}
	var snap models.MetricsSnapshot
	if err := c.get(ctx, "/v1/metrics?"+q.Encode(), &snap); err != nil {
		return nil, fmt.Errorf("dispatch metrics: %w", err)
	}
	return &snap, nil
}

// BestTimeHints returns preferred posting windows for a platform/account.
// A dispatcher without hint data returns an empty list; the planner then
// schedules at the earliest constraint-satisfying time.
func (c *Client) BestTimeHints(ctx context.Context, platform, account string) ([]models.TimeWindow, error) {
	q := url.Values{"platform": {platform}, "account": {account}}
	var out struct {
		Windows []models.TimeWindow `json:"windows"`
	}
	err := c.get(ctx, "/v1/best-times?"+q.Encode(), &out)
	if err != nil {
		return nil, fmt.Errorf("dispatch best times: %w", err)
	}
	return out.Windows, nil
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(raw))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

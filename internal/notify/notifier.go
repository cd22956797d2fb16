package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/SteelMorgan/telemetry-ingest/internal/domain"
)

// DefaultTimeout bounds a single notification request
const DefaultTimeout = 2 * time.Second

// Notifier announces that a collection received new records
type Notifier interface {
	Notify(ctx context.Context, collection string, records []domain.TelemetryRecord) error
}

// updatePayload is the body the dashboard expects
type updatePayload struct {
	Collection string                   `json:"collection"`
	Data       []domain.TelemetryRecord `json:"data"`
}

// HTTPNotifier posts update payloads to a dashboard endpoint
type HTTPNotifier struct {
	url    string
	client *http.Client
}

// Option configures the HTTP notifier
type Option func(*HTTPNotifier)

// WithHTTPClient overrides the HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(n *HTTPNotifier) {
		if client != nil {
			n.client = client
		}
	}
}

// WithTimeout sets the per-request timeout
func WithTimeout(timeout time.Duration) Option {
	return func(n *HTTPNotifier) {
		if timeout > 0 {
			n.client.Timeout = timeout
		}
	}
}

// NewHTTPNotifier constructs a notifier for url
func NewHTTPNotifier(url string, opts ...Option) (*HTTPNotifier, error) {
	if url == "" {
		return nil, errors.New("notifier: empty url")
	}
	n := &HTTPNotifier{
		url:    url,
		client: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// URL returns the endpoint notifications are posted to
func (n *HTTPNotifier) URL() string {
	return n.url
}

// Notify posts {"collection": ..., "data": [...]}; any non-2xx status is an error
func (n *HTTPNotifier) Notify(ctx context.Context, collection string, records []domain.TelemetryRecord) error {
	if records == nil {
		records = []domain.TelemetryRecord{}
	}
	body, err := json.Marshal(updatePayload{Collection: collection, Data: records})
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notifier: non-2xx response %d", resp.StatusCode)
	}
	return nil
}

package edge

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"
)

// HTTPTransport implements Transport against the ingest HTTP surface
// described in spec.md §6: POST /api/telemetry/batch and GET /health/live.
type HTTPTransport struct {
	client    *http.Client
	ingestURL string
	healthURL string
}

func NewHTTPTransport(ingestURL, healthURL string, timeout time.Duration) *HTTPTransport {
	return &HTTPTransport{
		client:    &http.Client{Timeout: timeout},
		ingestURL: ingestURL,
		healthURL: healthURL,
	}
}

func (t *HTTPTransport) SendBatch(ctx context.Context, payload []byte, contentEncoding string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.ingestURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("edge: build ingest request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if contentEncoding != "" {
		req.Header.Set("Content-Encoding", contentEncoding)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("edge: ingest request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("edge: ingest returned status %d", resp.StatusCode)
	}
	return nil
}

func (t *HTTPTransport) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.healthURL, nil)
	if err != nil {
		return fmt.Errorf("edge: build health request: %w", err)
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("edge: health check failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("edge: health check returned status %d", resp.StatusCode)
	}
	return nil
}

package offline

import (
	"context"
	"net/http"
	"time"
)

// HTTPProbe decides connectivity by calling the server health endpoint once.
type HTTPProbe struct {
	url     string
	client  *http.Client
	timeout time.Duration
}

// NewHTTPProbe builds a probe for baseURL + "/health".
func NewHTTPProbe(baseURL string, timeout time.Duration, client *http.Client) *HTTPProbe {
	if client == nil {
		client = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &HTTPProbe{url: baseURL + "/health", client: client, timeout: timeout}
}

// IsOnline reports whether the health endpoint answered 2xx within the timeout.
// There is no retry or caching; every failure counts as offline.
func (p *HTTPProbe) IsOnline(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

package status

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/dreamware/skvs/internal/server"
)

// ErrUnhealthy is returned when /health answers with a non-200 status
var ErrUnhealthy = errors.New("server unhealthy")

// Client talks to one status endpoint
type Client struct {
	base       string
	httpClient *http.Client
}

// NewClient creates a client for addr, either host:port or an http(s) URL
func NewClient(addr string) *Client {
	base := addr
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return &Client{
		base:       strings.TrimRight(base, "/"),
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

// URL returns the absolute URL of path on the endpoint
func (c *Client) URL(path string) string {
	return c.base + path
}

// Health checks /health once
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL("/health"), nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "health check request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.Wrapf(ErrUnhealthy, "health check returned status %d", resp.StatusCode)
	}
	return nil
}

// WaitHealthy polls /health every interval until it succeeds or ctx is done,
// in which case the last check error is returned.
func (c *Client) WaitHealthy(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		err := c.Health(ctx)
		if err == nil {
			return nil
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return errors.Wrapf(err, "waiting for %s", c.base)
		}
	}
}

// Info fetches /info
func (c *Client) Info(ctx context.Context) (*server.Info, error) {
	var info server.Info
	if err := c.getJSON(ctx, "/info", &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	url := c.URL(path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "get %s", url)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return errors.Errorf("http %s: %d", url, resp.StatusCode)
	}
	return errors.Wrapf(json.NewDecoder(resp.Body).Decode(out), "decode %s", url)
}

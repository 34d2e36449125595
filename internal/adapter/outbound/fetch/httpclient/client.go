// Package httpclient implements fetch.Fetcher against a configured
// upstream archive mirror over plain HTTP(S).
package httpclient

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Apt-Gate/Aptgate/internal/domain/fetch"
)

const (
	defaultTimeout   = 30 * time.Second
	defaultUserAgent = "aptgate/1.0 (+reverse-proxy)"
)

// Client fetches archive paths from a single configured upstream base
// URL (e.g. https://deb.debian.org). Safe for concurrent use.
type Client struct {
	upstreamBase string
	userAgent    string
	httpClient   *http.Client
	logger       *slog.Logger
}

// Option configures a Client at construction time.
type Option func(*Client)

// WithTimeout overrides the default 30s total request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithUserAgent overrides the default identifying user-agent string.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// WithLogger overrides the logger used for fetch diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a Client against upstreamBase (e.g. "https://deb.debian.org").
func New(upstreamBase string, opts ...Option) *Client {
	c := &Client{
		upstreamBase: strings.TrimRight(upstreamBase, "/"),
		userAgent:    defaultUserAgent,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch implements fetch.Fetcher. Both transport failures and non-2xx
// upstream responses are reported as errors; the caller decides how to
// turn that into an audit event and client-facing response.
func (c *Client) Fetch(ctx context.Context, path string) (fetch.Result, error) {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	url := c.upstreamBase + path

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fetch.Result{}, fmt.Errorf("build upstream request for %s: %w", url, err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("upstream fetch transport error", "url", url, "error", err)
		return fetch.Result{}, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fetch.Result{}, fmt.Errorf("read upstream response body for %s: %w", url, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("upstream fetch non-2xx response", "url", url, "status", resp.StatusCode)
		return fetch.Result{}, fmt.Errorf("upstream %s returned status %d", url, resp.StatusCode)
	}

	return fetch.Result{
		Status: resp.StatusCode,
		Header: resp.Header.Clone(),
		Body:   body,
	}, nil
}

var _ fetch.Fetcher = (*Client)(nil)

package http

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// MethodGet is re-exported so callers building requests from descriptors do
// not need a second net/http import.
const MethodGet = http.MethodGet

// RequestOptions describes one outbound request. Upstream feeds are plain
// JSON-over-GET APIs, so there is no body support.
type RequestOptions struct {
	Method      string
	URL         string
	Headers     map[string]string
	QueryParams map[string][]string
}

// Client is a thin outbound HTTP client. The timeout is a backstop only;
// per-call deadlines come from the caller's context.
type Client struct {
	timeout time.Duration
	client  *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithTimeout sets the backstop timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// NewClient creates an outbound client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{timeout: 30 * time.Second}
	for _, opt := range opts {
		opt(c)
	}
	c.client = &http.Client{Timeout: c.timeout}
	return c
}

// SendRequest performs the request. The caller owns the response body.
func (c *Client) SendRequest(ctx context.Context, opts *RequestOptions) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, opts.Method, opts.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}

	if len(opts.QueryParams) > 0 {
		q := req.URL.Query()
		for key, values := range opts.QueryParams {
			for _, value := range values {
				q.Add(key, value)
			}
		}
		req.URL.RawQuery = q.Encode()
	}
	for key, value := range opts.Headers {
		req.Header.Set(key, value)
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}

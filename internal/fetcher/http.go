package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"FeedGate/internal/domain/models"
	drepo "FeedGate/internal/domain/repository"
	xhttp "FeedGate/pkg/http"
)

// HTTPFetcher is the built-in Fetcher for http_json descriptors. It is
// retry-free: all retry and backoff policy belongs to the router.
type HTTPFetcher struct {
	client *xhttp.Client
}

// New creates an HTTP fetcher. The client timeout is a backstop; the
// effective per-call deadline comes from ctx.
func New(timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPFetcher{client: xhttp.NewClient(xhttp.WithTimeout(timeout))}
}

// Fetch performs one descriptor-driven request and classifies any failure.
func (f *HTTPFetcher) Fetch(ctx context.Context, desc models.FetchDescriptor, params map[string]string) (json.RawMessage, error) {
	if desc.Kind != "" && desc.Kind != "http_json" {
		return nil, &drepo.FetchError{Kind: models.ErrKindBadPayload,
			Err: fmt.Errorf("unsupported descriptor kind %q", desc.Kind)}
	}
	if desc.URL == "" {
		return nil, &drepo.FetchError{Kind: models.ErrKindBadPayload,
			Err: errors.New("descriptor missing url")}
	}

	opts := f.buildRequest(desc, params)
	resp, err := f.client.SendRequest(ctx, opts)
	if err != nil {
		return nil, classifyTransport(err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode); err != nil {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransport(err)
	}
	if !json.Valid(body) {
		return nil, &drepo.FetchError{Kind: models.ErrKindBadPayload,
			Err: errors.New("response is not valid json")}
	}
	if desc.RequiredField != "" && !hasField(body, desc.RequiredField) {
		return nil, &drepo.FetchError{Kind: models.ErrKindBadPayload,
			Err: fmt.Errorf("response missing required field %q", desc.RequiredField)}
	}
	return json.RawMessage(body), nil
}

func (f *HTTPFetcher) buildRequest(desc models.FetchDescriptor, params map[string]string) *xhttp.RequestOptions {
	method := desc.Method
	if method == "" {
		method = xhttp.MethodGet
	}
	headers := make(map[string]string, len(desc.Headers)+1)
	for k, v := range desc.Headers {
		headers[k] = v
	}
	query := make(map[string][]string, len(desc.Query)+len(params)+1)
	for k, v := range desc.Query {
		query[k] = []string{v}
	}
	for k, v := range params {
		query[k] = []string{v}
	}

	switch {
	case desc.APIKeyHeader != "":
		headers[desc.APIKeyHeader] = desc.APIKey
	case desc.APIKeyParam != "":
		query[desc.APIKeyParam] = []string{desc.APIKey}
	}

	return &xhttp.RequestOptions{
		Method:      method,
		URL:         desc.URL,
		Headers:     headers,
		QueryParams: query,
	}
}

func classifyStatus(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusTooManyRequests:
		return &drepo.FetchError{Kind: models.ErrKindRateLimited,
			Err: fmt.Errorf("status %d", code)}
	case code >= 500:
		return &drepo.FetchError{Kind: models.ErrKindServerError,
			Err: fmt.Errorf("status %d", code)}
	default:
		return &drepo.FetchError{Kind: models.ErrKindBadPayload,
			Err: fmt.Errorf("unexpected status %d", code)}
	}
}

func classifyTransport(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &drepo.FetchError{Kind: models.ErrKindTimeout, Err: err}
	case errors.Is(err, context.Canceled):
		return &drepo.FetchError{Kind: models.ErrKindTimeout, Err: err}
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return &drepo.FetchError{Kind: models.ErrKindTimeout, Err: err}
	}
	var oerr *net.OpError
	if errors.As(err, &oerr) {
		return &drepo.FetchError{Kind: models.ErrKindConnect, Err: err}
	}
	return &drepo.FetchError{Kind: models.ErrKindConnect, Err: err}
}

// hasField walks a dotted path through a JSON object, rejecting payloads the
// downstream cannot use even though they parsed.
func hasField(body []byte, path string) bool {
	var doc interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return false
	}
	cur := doc
	start := 0
	for i := 0; i <= len(path); i++ {
		if i < len(path) && path[i] != '.' {
			continue
		}
		key := path[start:i]
		start = i + 1
		obj, ok := cur.(map[string]interface{})
		if !ok {
			return false
		}
		cur, ok = obj[key]
		if !ok {
			return false
		}
	}
	return true
}

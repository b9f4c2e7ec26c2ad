package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/mschirtzinger/stockroom/internal/types"
)

// HTTPConfig configures an HTTPGateway.
type HTTPConfig struct {
	// BaseURL is the server root, e.g. http://localhost:8787
	BaseURL string

	// Token is sent as a bearer token when non-empty
	Token string

	// Timeout bounds each request (default: 10s)
	Timeout time.Duration

	// Rate limits outbound requests per second (0 = unlimited)
	Rate float64

	// Burst is the limiter bucket size (default: 1)
	Burst int

	// Client overrides the HTTP client (tests)
	Client *http.Client
}

// HTTPGateway talks to the remote store over its JSON/REST API:
//
//	POST   /items        -> 201 Record
//	GET    /items        -> 200 []Record
//	PUT    /items/{id}   -> 204, 404 when unknown
//	DELETE /items/{id}   -> 204, 404 treated as success
//	GET    /health       -> 200
type HTTPGateway struct {
	base    *url.URL
	token   string
	client  *http.Client
	limiter *rate.Limiter
}

// NewHTTPGateway validates the configuration and returns a gateway.
func NewHTTPGateway(config HTTPConfig) (*HTTPGateway, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("%w: remote base URL is required", types.ErrInvalidArgument)
	}
	base, err := url.Parse(strings.TrimRight(config.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid remote URL %q: %v", types.ErrInvalidArgument, config.BaseURL, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("%w: remote URL must be http or https (got %q)", types.ErrInvalidArgument, base.Scheme)
	}

	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.Burst <= 0 {
		config.Burst = 1
	}

	client := config.Client
	if client == nil {
		client = &http.Client{Timeout: config.Timeout}
	}

	limit := rate.Inf
	if config.Rate > 0 {
		limit = rate.Limit(config.Rate)
	}

	return &HTTPGateway{
		base:    base,
		token:   config.Token,
		client:  client,
		limiter: rate.NewLimiter(limit, config.Burst),
	}, nil
}

// Create implements Gateway.
func (g *HTTPGateway) Create(ctx context.Context, f types.Fields) (Record, error) {
	var rec Record
	resp, err := g.do(ctx, http.MethodPost, "/items", f)
	if err != nil {
		return rec, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return rec, statusError("create", resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		return rec, fmt.Errorf("%w: decode create response: %v", types.ErrRemoteUnavailable, err)
	}
	if rec.ID == "" {
		return rec, fmt.Errorf("%w: create response carries no id", types.ErrRemoteUnavailable)
	}
	return rec, nil
}

// List implements Gateway.
func (g *HTTPGateway) List(ctx context.Context) ([]Record, error) {
	resp, err := g.do(ctx, http.MethodGet, "/items", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError("list", resp)
	}
	var recs []Record
	if err := json.NewDecoder(resp.Body).Decode(&recs); err != nil {
		return nil, fmt.Errorf("%w: decode list response: %v", types.ErrRemoteUnavailable, err)
	}
	return recs, nil
}

// Update implements Gateway.
func (g *HTTPGateway) Update(ctx context.Context, id string, f types.Fields) error {
	if id == "" {
		return fmt.Errorf("%w: id is required", types.ErrInvalidArgument)
	}
	resp, err := g.do(ctx, http.MethodPut, "/items/"+url.PathEscape(id), f)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		return nil
	case http.StatusNotFound:
		return fmt.Errorf("update %s: %w", id, types.ErrNotFound)
	default:
		return statusError("update", resp)
	}
}

// Delete implements Gateway.
func (g *HTTPGateway) Delete(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: id is required", types.ErrInvalidArgument)
	}
	resp, err := g.do(ctx, http.MethodDelete, "/items/"+url.PathEscape(id), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent, http.StatusNotFound:
		return nil
	default:
		return statusError("delete", resp)
	}
}

// Health implements Prober.
func (g *HTTPGateway) Health(ctx context.Context) error {
	resp, err := g.do(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError("health", resp)
	}
	return nil
}

// do throttles, builds and sends one request. Transport failures come back
// wrapped in ErrRemoteUnavailable.
func (g *HTTPGateway) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limiter: %v", types.ErrRemoteUnavailable, err)
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.base.String()+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", types.ErrRemoteUnavailable, method, path, err)
	}
	return resp, nil
}

// statusError maps an unexpected status to a sentinel, keeping a short
// excerpt of the body for the log. Client errors the server will repeat
// for the same payload are ErrRejected; everything else is retryable.
func statusError(op string, resp *http.Response) error {
	excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
	msg := strings.TrimSpace(string(excerpt))
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	kind := types.ErrRemoteUnavailable
	if permanent(resp.StatusCode) {
		kind = types.ErrRejected
	}
	return fmt.Errorf("%w: %s: status %d: %s", kind, op, resp.StatusCode, msg)
}

// permanent reports whether a status will not change on retry.
func permanent(code int) bool {
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusRequestTimeout, http.StatusTooManyRequests:
		return false
	}
	return code >= 400 && code < 500
}

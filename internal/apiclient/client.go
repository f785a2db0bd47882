// Package apiclient wraps the business REST API consumed by the console.
// Every call carries the caller's bearer token, expects JSON back and fails on
// non-2xx or non-JSON responses. Failed calls are not retried.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Config configures the upstream client.
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
	// Observer, when set, is told about every finished call.
	Observer Observer
}

// Observer receives the outcome of one upstream call. status is 0 when the
// request never got a response.
type Observer func(method string, status int, elapsed time.Duration)

// Request describes one upstream call.
type Request struct {
	Method string
	Path   string
	Token  string
	Query  url.Values
	Body   any
}

// Client issues JSON requests against the business API.
type Client struct {
	http     *resty.Client
	logger   *slog.Logger
	observer Observer
}

// New constructs a Client.
func New(cfg Config, logger *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = "odyssey-console"
	}
	if logger == nil {
		logger = slog.Default()
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", userAgent)
	return &Client{http: client, logger: logger, observer: cfg.Observer}
}

// Do executes req and decodes the JSON response into out when out is non-nil.
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	r := c.http.R().SetContext(ctx)
	if req.Token != "" {
		r.SetAuthToken(req.Token)
	}
	if len(req.Query) > 0 {
		r.SetQueryParamsFromValues(req.Query)
	}
	if req.Body != nil {
		r.SetHeader("Content-Type", "application/json").SetBody(req.Body)
	}

	start := time.Now()
	resp, err := r.Execute(req.Method, req.Path)
	if c.observer != nil {
		status := 0
		if resp != nil && err == nil {
			status = resp.StatusCode()
		}
		c.observer(req.Method, status, time.Since(start))
	}
	if err != nil {
		c.logger.Error("upstream request failed",
			slog.String("method", req.Method),
			slog.String("path", req.Path),
			slog.Any("error", err))
		return fmt.Errorf("apiclient: %s %s: %w", req.Method, req.Path, err)
	}

	status := resp.StatusCode()
	body := resp.Body()
	if status < 200 || status > 299 {
		apiErr := newAPIError(status, body)
		c.logger.Warn("upstream returned error",
			slog.String("method", req.Method),
			slog.String("path", req.Path),
			slog.Int("status", status),
			slog.String("message", apiErr.Message))
		return apiErr
	}
	if status == http.StatusNoContent || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if !isJSON(resp.Header().Get("Content-Type")) {
		return fmt.Errorf("%w: %s %s: content type %q", ErrNotJSON, req.Method, req.Path, resp.Header().Get("Content-Type"))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("apiclient: decode %s %s: %w", req.Method, req.Path, err)
	}
	return nil
}

// Get issues a GET request.
func (c *Client) Get(ctx context.Context, token, path string, query url.Values, out any) error {
	return c.Do(ctx, Request{Method: http.MethodGet, Path: path, Token: token, Query: query}, out)
}

// Post issues a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, token, path string, body, out any) error {
	return c.Do(ctx, Request{Method: http.MethodPost, Path: path, Token: token, Body: body}, out)
}

// Put issues a PUT request with a JSON body.
func (c *Client) Put(ctx context.Context, token, path string, body, out any) error {
	return c.Do(ctx, Request{Method: http.MethodPut, Path: path, Token: token, Body: body}, out)
}

// Patch issues a PATCH request with a JSON body.
func (c *Client) Patch(ctx context.Context, token, path string, body, out any) error {
	return c.Do(ctx, Request{Method: http.MethodPatch, Path: path, Token: token, Body: body}, out)
}

// Delete issues a DELETE request.
func (c *Client) Delete(ctx context.Context, token, path string) error {
	return c.Do(ctx, Request{Method: http.MethodDelete, Path: path, Token: token}, nil)
}

func isJSON(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

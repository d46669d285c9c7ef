// Package pyrus is a client for the Pyrus task-management REST API.
// It owns the access-token lifecycle and applies a bounded retry policy to every call.
package pyrus

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pyrusbridge/tgbridge/internal/resilience"
)

// DefaultRequestTimeout is the ceiling for a single HTTP exchange, independent of retries.
const DefaultRequestTimeout = 30 * time.Second

// FileUpload is a multipart file body. It cannot be combined with a JSON body.
type FileUpload struct {
	FieldName string
	Filename  string
	Content   []byte
}

// Request describes a single API call. Endpoint is resolved against the client base URL
// unless URL is set, which is used verbatim (e.g. the files host).
type Request struct {
	Method   string
	Endpoint string
	URL      string
	JSON     any
	Query    url.Values
	File     *FileUpload
	// Download asks for the raw response body instead of a JSON document.
	Download bool
}

// Client issues authenticated requests to Pyrus.
type Client struct {
	baseURL    string
	filesURL   string
	httpClient *http.Client
	tokens     *TokenManager
	retry      RetryPolicy
	breaker    *resilience.CircuitBreaker
	logger     *slog.Logger
}

// Options configures a Client.
type Options struct {
	BaseURL     string
	FilesURL    string
	Credentials Credentials
	Timeout     time.Duration
	Retry       RetryPolicy
	// Breaker, when set, guards every attempt. Open-circuit rejections are not retried.
	Breaker     *resilience.CircuitBreaker
	HTTPClient  *http.Client
	Logger      *slog.Logger
}

// NewClient creates a Client together with its TokenManager.
func NewClient(opts Options) *Client {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultRequestTimeout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	filesURL := strings.TrimRight(opts.FilesURL, "/")
	if filesURL == "" {
		filesURL = baseURL
	}
	return &Client{
		baseURL:    baseURL,
		filesURL:   filesURL,
		httpClient: opts.HTTPClient,
		tokens:     NewTokenManager(opts.HTTPClient, baseURL, opts.Credentials, opts.Retry, opts.Logger),
		retry:      opts.Retry,
		breaker:    opts.Breaker,
		logger:     opts.Logger.With("component", "pyrus_client"),
	}
}

// Tokens exposes the token manager shared by all calls of this client.
func (c *Client) Tokens() *TokenManager {
	return c.tokens
}

// Do performs the request and returns the raw response body. The whole exchange,
// token acquisition included, is retried according to the client policy.
func (c *Client) Do(ctx context.Context, r Request) ([]byte, error) {
	if r.JSON != nil && r.File != nil {
		return nil, errors.New("pyrus: request cannot carry both a JSON and a file body")
	}

	target, err := c.resolveURL(r)
	if err != nil {
		return nil, err
	}

	var body []byte
	err = c.retry.do(ctx, c.logger, r.Method+" "+target, func() error {
		if c.breaker == nil {
			var attemptErr error
			body, attemptErr = c.attempt(ctx, r, target)
			return attemptErr
		}
		return c.breaker.Execute(func() error {
			var attemptErr error
			body, attemptErr = c.attempt(ctx, r, target)
			return attemptErr
		})
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

// DoJSON performs the request and decodes the JSON response into out (if non-nil).
func (c *Client) DoJSON(ctx context.Context, r Request, out any) error {
	r.Download = false
	data, err := c.Do(ctx, r)
	if err != nil {
		return err
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("pyrus: failed to decode %s response: %w", r.Method, err)
	}
	return nil
}

func (c *Client) resolveURL(r Request) (string, error) {
	raw := r.URL
	if raw == "" {
		raw = c.baseURL + r.Endpoint
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("pyrus: invalid request url %q: %w", raw, err)
	}
	q := u.Query()
	for k, vs := range r.Query {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	if r.Download {
		q.Set("download", "true")
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Client) attempt(ctx context.Context, r Request, target string) ([]byte, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	payload, contentType, err := encodeBody(r)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, target, payload)
	if err != nil {
		return nil, fmt.Errorf("pyrus: failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}

	if resp.StatusCode == http.StatusUnauthorized {
		c.logger.WarnContext(ctx, "Pyrus rejected access token", "url", req.URL.Path)
		c.tokens.Invalidate()
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: data}
	}
	return data, nil
}

// encodeBody builds a fresh body for every attempt since readers are consumed.
func encodeBody(r Request) (io.Reader, string, error) {
	switch {
	case r.File != nil:
		buf := &bytes.Buffer{}
		w := multipart.NewWriter(buf)
		field := r.File.FieldName
		if field == "" {
			field = "file"
		}
		part, err := w.CreateFormFile(field, r.File.Filename)
		if err != nil {
			return nil, "", fmt.Errorf("pyrus: failed to create multipart part: %w", err)
		}
		if _, err := part.Write(r.File.Content); err != nil {
			return nil, "", fmt.Errorf("pyrus: failed to write multipart part: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, "", fmt.Errorf("pyrus: failed to close multipart body: %w", err)
		}
		return buf, w.FormDataContentType(), nil
	case r.JSON != nil:
		data, err := json.Marshal(r.JSON)
		if err != nil {
			return nil, "", fmt.Errorf("pyrus: failed to encode request body: %w", err)
		}
		return bytes.NewReader(data), "application/json", nil
	default:
		return nil, "", nil
	}
}

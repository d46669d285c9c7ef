package pyrus

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
)

// Credentials are the bot login and security key posted to /auth.
type Credentials struct {
	Login       string `json:"login"`
	SecurityKey string `json:"security_key"`
}

// TokenManager owns the Pyrus access token for the lifetime of the process.
// The token has no client-side expiry; it is dropped only when the API answers 401.
type TokenManager struct {
	httpClient *http.Client
	authURL    string
	creds      Credentials
	retry      RetryPolicy
	logger     *slog.Logger

	token atomic.Pointer[string]
	mu    sync.Mutex
}

// NewTokenManager creates a TokenManager that authenticates against baseURL + "/auth".
func NewTokenManager(httpClient *http.Client, baseURL string, creds Credentials, policy RetryPolicy, logger *slog.Logger) *TokenManager {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultRequestTimeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenManager{
		httpClient: httpClient,
		authURL:    baseURL + "/auth",
		creds:      creds,
		retry:      policy,
		logger:     logger.With("component", "pyrus_token"),
	}
}

// Token returns the cached token, fetching a new one if the cache is empty.
// Concurrent callers that find the cache empty share a single refresh.
func (m *TokenManager) Token(ctx context.Context) (string, error) {
	if t := m.token.Load(); t != nil {
		return *t, nil
	}

	var token string
	err := m.retry.do(ctx, m.logger, "get_token", func() error {
		if t := m.token.Load(); t != nil {
			token = *t
			return nil
		}

		m.mu.Lock()
		defer m.mu.Unlock()

		// Another caller may have refreshed while we waited for the lock.
		if t := m.token.Load(); t != nil {
			token = *t
			return nil
		}

		if err := m.refresh(ctx); err != nil {
			return err
		}

		t := m.token.Load()
		if t == nil {
			return errors.New("refresh did not store a token")
		}
		token = *t
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrAuth, err)
	}
	return token, nil
}

// Invalidate drops the cached token. The next Token call performs a refresh.
func (m *TokenManager) Invalidate() {
	if m.token.Swap(nil) != nil {
		m.logger.Info("Access token invalidated")
	}
}

// refresh must be called with m.mu held.
func (m *TokenManager) refresh(ctx context.Context) error {
	return m.retry.do(ctx, m.logger, "refresh_token", func() error {
		m.logger.InfoContext(ctx, "Refreshing access token")

		body, err := json.Marshal(m.creds)
		if err != nil {
			return fmt.Errorf("failed to encode credentials: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.authURL, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to build auth request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := m.httpClient.Do(req)
		if err != nil {
			return &NetworkError{Err: err}
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return &NetworkError{Err: err}
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return &HTTPError{StatusCode: resp.StatusCode, Body: data}
		}

		var auth struct {
			AccessToken string `json:"access_token"`
		}
		if err := json.Unmarshal(data, &auth); err != nil {
			return fmt.Errorf("failed to decode auth response: %w", err)
		}
		if auth.AccessToken == "" {
			return errors.New("auth response has no access_token")
		}

		m.token.Store(&auth.AccessToken)
		m.logger.InfoContext(ctx, "Access token refreshed")
		return nil
	})
}

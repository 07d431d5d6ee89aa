package mpesa

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// tokenLifetime is 55 minutes: a 5 minute safety margin under the provider's
// 60 minute token lifetime.
const tokenLifetime = 55 * time.Minute

const tokenFetchTimeout = 10 * time.Second

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
}

// TokenCache lazily fetches and caches a Daraja OAuth access token. It is
// process-wide shared state: the fetch happens under the mutex so concurrent
// expiry does not fan out into redundant provider round trips.
type TokenCache struct {
	cfg        Config
	httpClient *http.Client

	mu      sync.Mutex
	token   string
	expiry  time.Time
	nowFunc func() time.Time
}

// NewTokenCache returns an empty cache for the given credentials.
func NewTokenCache(cfg Config) *TokenCache {
	return &TokenCache{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: tokenFetchTimeout},
		nowFunc:    time.Now,
	}
}

// Token returns the cached access token, fetching a fresh one when absent or
// expired. Failures surface as *AuthError and are not retried here.
func (t *TokenCache) Token(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.token != "" && t.nowFunc().Before(t.expiry) {
		return t.token, nil
	}

	token, err := t.fetch(ctx)
	if err != nil {
		return "", err
	}
	t.token = token
	t.expiry = t.nowFunc().Add(tokenLifetime)
	return t.token, nil
}

func (t *TokenCache) fetch(ctx context.Context) (string, error) {
	url := t.cfg.baseURL() + "/oauth/v1/generate?grant_type=client_credentials"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", &AuthError{Reason: "build token request", Err: err}
	}
	basic := base64.StdEncoding.EncodeToString([]byte(t.cfg.ConsumerKey + ":" + t.cfg.ConsumerSecret))
	req.Header.Set("Authorization", "Basic "+basic)
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", &AuthError{Reason: "token request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &AuthError{Reason: fmt.Sprintf("token endpoint returned %d", resp.StatusCode)}
	}

	var out tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &AuthError{Reason: "malformed token response", Err: err}
	}
	if out.AccessToken == "" {
		return "", &AuthError{Reason: "token response missing access_token"}
	}
	return out.AccessToken, nil
}

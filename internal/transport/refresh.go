package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"runsync-agent/internal/credential"

	"golang.org/x/sync/singleflight"
)

// ErrReauthenticate signals that the refresh token itself was rejected:
// the credential store has been cleared and the user must sign in again.
var ErrReauthenticate = errors.New("re-authentication required")

type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type,omitempty"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
}

type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Refresher serializes refresh-token exchanges. However many requests hit
// a 401 at once, a single exchange runs and every waiter receives its
// outcome.
type Refresher struct {
	url   string
	creds credential.Store
	http  Doer
	group singleflight.Group
}

func NewRefresher(url string, creds credential.Store, client Doer) *Refresher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Refresher{url: url, creds: creds, http: client}
}

// Refresh returns a fresh access token. If an exchange is already in
// flight the caller waits for it instead of starting another.
func (r *Refresher) Refresh(ctx context.Context) (string, error) {
	token, err, _ := r.group.Do("refresh", func() (interface{}, error) {
		return r.exchange(ctx)
	})
	if err != nil {
		return "", err
	}
	return token.(string), nil
}

func (r *Refresher) exchange(ctx context.Context) (string, error) {
	pair, err := r.creds.Get(ctx)
	if err != nil {
		return "", err
	}
	if pair.RefreshToken == "" {
		return "", ErrReauthenticate
	}

	body, _ := json.Marshal(map[string]string{"refresh_token": pair.RefreshToken})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusForbidden,
		resp.StatusCode == http.StatusBadRequest:
		// The refresh token itself is invalid; the pair is useless now.
		_ = r.creds.Clear(ctx)
		return "", ErrReauthenticate
	case resp.StatusCode >= 300:
		return "", fmt.Errorf("refresh endpoint status %d", resp.StatusCode)
	}

	var tokens TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokens); err != nil {
		return "", fmt.Errorf("decode refresh response: %w", err)
	}
	if tokens.AccessToken == "" || tokens.RefreshToken == "" {
		return "", errors.New("refresh response missing tokens")
	}

	if err := r.creds.Set(ctx, credential.Pair{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
	}); err != nil {
		return "", err
	}
	return tokens.AccessToken, nil
}

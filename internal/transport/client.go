package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"runsync-agent/internal/credential"

	"github.com/google/uuid"
)

const expiryWindow = 30 * time.Second

// Client executes authenticated JSON requests against the remote service.
// A 401 response triggers exactly one pass through the refresher and at
// most one retry of the original request.
type Client struct {
	base      string
	http      Doer
	creds     credential.Store
	refresher *Refresher
}

func NewClient(base string, creds credential.Store, refresher *Refresher, client Doer) *Client {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		base:      strings.TrimRight(base, "/"),
		http:      client,
		creds:     creds,
		refresher: refresher,
	}
}

// APIError carries a non-2xx response from the remote service.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api status %d: %s", e.Status, e.Body)
}

// Do sends body as JSON and decodes the response into out when out is
// non-nil.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	token, err := c.token(ctx)
	if err != nil {
		return err
	}

	resp, err := c.send(ctx, method, path, payload, token)
	if err != nil {
		return err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		drain(resp)
		token, err = c.refresher.Refresh(ctx)
		if err != nil {
			return fmt.Errorf("%s %s: %w", method, path, err)
		}
		resp, err = c.send(ctx, method, path, payload, token)
		if err != nil {
			return err
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		// Already retried once with a fresh token; never loop.
		return fmt.Errorf("%s %s: %w", method, path, ErrReauthenticate)
	}
	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, payload []byte, token string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return c.http.Do(req)
}

// token returns the current access token, refreshing first when the token
// is missing or about to expire.
func (c *Client) token(ctx context.Context) (string, error) {
	pair, err := c.creds.Get(ctx)
	if err != nil {
		return "", err
	}
	if pair.Empty() {
		return "", ErrReauthenticate
	}
	if pair.AccessToken == "" || expiresWithin(pair.AccessToken, expiryWindow, time.Now()) {
		return c.refresher.Refresh(ctx)
	}
	return pair.AccessToken, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()
}

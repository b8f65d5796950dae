package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"runsync-agent/internal/credential"

	"github.com/golang-jwt/jwt/v5"
)

func signedToken(t *testing.T, expiresAt time.Time) string {
	t.Helper()
	claims := jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(expiresAt)}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func newTestStack(t *testing.T, api http.HandlerFunc, refresh http.HandlerFunc, pair credential.Pair) (*Client, *credential.MemoryStore, func()) {
	t.Helper()
	apiSrv := httptest.NewServer(api)
	refreshSrv := httptest.NewServer(refresh)

	creds := credential.NewMemoryStore(pair)
	refresher := NewRefresher(refreshSrv.URL, creds, nil)
	client := NewClient(apiSrv.URL, creds, refresher, nil)

	return client, creds, func() {
		apiSrv.Close()
		refreshSrv.Close()
	}
}

func TestClientRetriesOnceAfterRefresh(t *testing.T) {
	valid := signedToken(t, time.Now().Add(time.Hour))
	var refreshes int32

	api := func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+valid {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.Header.Get("X-Request-ID") == "" {
			t.Errorf("missing request id")
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "sess-1"})
	}
	refresh := func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&refreshes, 1)
		_ = json.NewEncoder(w).Encode(TokenResponse{AccessToken: valid, RefreshToken: "r2"})
	}

	stale := signedToken(t, time.Now().Add(30*time.Minute))
	client, creds, cleanup := newTestStack(t, api, refresh, credential.Pair{AccessToken: stale, RefreshToken: "r1"})
	defer cleanup()

	var out struct {
		ID string `json:"id"`
	}
	if err := client.Do(context.Background(), http.MethodPost, "/activities", map[string]string{"user_id": "u1"}, &out); err != nil {
		t.Fatalf("do: %v", err)
	}
	if out.ID != "sess-1" {
		t.Fatalf("unexpected response: %+v", out)
	}
	if atomic.LoadInt32(&refreshes) != 1 {
		t.Fatalf("expected one refresh, got %d", refreshes)
	}

	pair, _ := creds.Get(context.Background())
	if pair.AccessToken != valid || pair.RefreshToken != "r2" {
		t.Fatalf("store not updated: %+v", pair)
	}
}

func TestClientNeverRetriesTwice(t *testing.T) {
	var apiCalls int32
	api := func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&apiCalls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}
	refresh := func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(TokenResponse{AccessToken: signedToken(t, time.Now().Add(time.Hour)), RefreshToken: "r2"})
	}

	client, _, cleanup := newTestStack(t, api, refresh,
		credential.Pair{AccessToken: signedToken(t, time.Now().Add(time.Hour)), RefreshToken: "r1"})
	defer cleanup()

	err := client.Do(context.Background(), http.MethodGet, "/activities/open", nil, nil)
	if !errors.Is(err, ErrReauthenticate) {
		t.Fatalf("expected ErrReauthenticate, got %v", err)
	}
	if got := atomic.LoadInt32(&apiCalls); got != 2 {
		t.Fatalf("expected exactly 2 api calls (original + one retry), got %d", got)
	}
}

func TestClientProactiveRefreshBeforeExpiry(t *testing.T) {
	valid := signedToken(t, time.Now().Add(time.Hour))
	var unauthorized int32

	api := func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+valid {
			atomic.AddInt32(&unauthorized, 1)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]bool{"ok": true})
	}
	refresh := func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(TokenResponse{AccessToken: valid, RefreshToken: "r2"})
	}

	expired := signedToken(t, time.Now().Add(-time.Minute))
	client, _, cleanup := newTestStack(t, api, refresh, credential.Pair{AccessToken: expired, RefreshToken: "r1"})
	defer cleanup()

	if err := client.Do(context.Background(), http.MethodGet, "/activities/open", nil, nil); err != nil {
		t.Fatalf("do: %v", err)
	}
	if atomic.LoadInt32(&unauthorized) != 0 {
		t.Fatalf("expired token should have been refreshed before the request")
	}
}

func TestClientAPIError(t *testing.T) {
	api := func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}
	refresh := func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected refresh")
	}

	client, _, cleanup := newTestStack(t, api, refresh,
		credential.Pair{AccessToken: signedToken(t, time.Now().Add(time.Hour)), RefreshToken: "r1"})
	defer cleanup()

	err := client.Do(context.Background(), http.MethodGet, "/activities/open", nil, nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != http.StatusInternalServerError || apiErr.Body != "boom" {
		t.Fatalf("unexpected api error: %+v", apiErr)
	}
}

func TestClientEmptyStore(t *testing.T) {
	client, _, cleanup := newTestStack(t,
		func(w http.ResponseWriter, r *http.Request) { t.Errorf("unexpected api call") },
		func(w http.ResponseWriter, r *http.Request) { t.Errorf("unexpected refresh") },
		credential.Pair{})
	defer cleanup()

	err := client.Do(context.Background(), http.MethodGet, "/activities/open", nil, nil)
	if !errors.Is(err, ErrReauthenticate) {
		t.Fatalf("expected ErrReauthenticate, got %v", err)
	}
}

func TestExpiresWithin(t *testing.T) {
	now := time.Now()
	if expiresWithin("opaque-token", time.Minute, now) {
		t.Fatalf("opaque tokens never expire locally")
	}
	if !expiresWithin(signedToken(t, now.Add(10*time.Second)), time.Minute, now) {
		t.Fatalf("token inside the window should count as expiring")
	}
	if expiresWithin(signedToken(t, now.Add(time.Hour)), time.Minute, now) {
		t.Fatalf("distant expiry should not count as expiring")
	}
}

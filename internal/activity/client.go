package activity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"runsync-agent/internal/transport"
)

// ErrNoOpenSession is returned by OpenSession when the server reports no
// unfinished activity for the user. Callers must not conflate it with a
// failed query.
var ErrNoOpenSession = errors.New("no open session")

type Transport interface {
	Do(ctx context.Context, method, path string, body, out any) error
}

// Client is the typed face of the remote activity resource API.
type Client struct {
	transport Transport
}

func NewClient(t Transport) *Client {
	return &Client{transport: t}
}

func (c *Client) CreateSession(ctx context.Context, input CreateSessionInput) (Session, error) {
	var out Session
	if err := c.transport.Do(ctx, http.MethodPost, "/activities", input, &out); err != nil {
		return Session{}, fmt.Errorf("create session: %w", err)
	}
	if out.ID == "" {
		return Session{}, errors.New("create session: response missing id")
	}
	return out, nil
}

func (c *Client) FinishSession(ctx context.Context, sessionID string, input FinishSessionInput) error {
	if err := c.transport.Do(ctx, http.MethodPatch, "/activities/"+sessionID, input, nil); err != nil {
		return fmt.Errorf("finish session: %w", err)
	}
	return nil
}

// OpenSession returns the user's currently open activity, optionally with
// its stored route samples embedded.
func (c *Client) OpenSession(ctx context.Context, userID string) (Session, error) {
	var out Session
	err := c.transport.Do(ctx, http.MethodGet, "/activities/open?user_id="+url.QueryEscape(userID), nil, &out)
	if err != nil {
		var apiErr *transport.APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
			return Session{}, ErrNoOpenSession
		}
		return Session{}, fmt.Errorf("open session query: %w", err)
	}
	return out, nil
}

func (c *Client) AppendSample(ctx context.Context, sessionID string, sample RouteSample) error {
	if err := c.transport.Do(ctx, http.MethodPost, "/activities/"+sessionID+"/route", sample, nil); err != nil {
		return fmt.Errorf("append sample %d: %w", sample.Seq, err)
	}
	return nil
}

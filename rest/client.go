// Package rest is the typed client for the vichat HTTP API. Every request
// carries the session's bearer token; a 401 triggers exactly one refresh and
// one retry; a 500 is surfaced as a fatal fault.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/golang/glog"

	"github.com/vichat/client-go/model"
)

const defaultTimeout = 10 * time.Second

var (
	// ErrUnauthenticated means the token pair is dead: the refresh attempt
	// failed and stored credentials were cleared. The caller must force
	// re-authentication.
	ErrUnauthenticated = errors.New("rest: unauthenticated")

	// ErrServerFault is a backend 500. No retry; callers escalate.
	ErrServerFault = errors.New("rest: server fault")
)

// StatusError is a non-2xx response that is neither a recoverable 401 nor a
// fatal 500.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("rest: status %d", e.Code)
	}
	return fmt.Sprintf("rest: status %d: %s", e.Code, e.Message)
}

// Credentials is the session surface the client needs: the current token
// pair, a sink for a refreshed pair, and wholesale teardown.
type Credentials interface {
	AccessToken() string
	RefreshToken() string
	UpdateTokens(access, refresh string, user model.User)
	Clear()
}

// Client talks to one backend base URL on behalf of one session.
type Client struct {
	base  *url.URL
	http  *http.Client
	creds Credentials
}

// NewClient creates a client for the given base URL, e.g.
// http://127.0.0.1:3000/api.
func NewClient(base string, creds Credentials) (*Client, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("rest: parse base url %q: %w", base, err)
	}
	return &Client{
		base:  u,
		http:  &http.Client{Timeout: defaultTimeout},
		creds: creds,
	}, nil
}

type apiError struct {
	Message string `json:"message"`
}

// doOnce performs a single request with the given token. No refresh, no
// retry.
func (c *Client) doOnce(ctx context.Context, method, path string, q url.Values, in, out interface{}, token string) error {
	u := *c.base
	u.Path = u.Path + path
	if q != nil {
		u.RawQuery = q.Encode()
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("rest: marshal %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("rest: new request %s %s: %w", method, path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("rest: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("rest: decode %s %s: %w", method, path, err)
		}
		return nil
	}

	var ae apiError
	_ = json.NewDecoder(resp.Body).Decode(&ae)

	switch {
	case resp.StatusCode == http.StatusInternalServerError:
		glog.Errorf("rest: %s %s: server fault: %s", method, path, ae.Message)
		return fmt.Errorf("%w: %s %s", ErrServerFault, method, path)
	default:
		return &StatusError{Code: resp.StatusCode, Message: ae.Message}
	}
}

// do performs a request with bearer auth. On 401 it refreshes the token pair
// exactly once and retries the original request once; a failed refresh clears
// stored credentials.
func (c *Client) do(ctx context.Context, method, path string, q url.Values, in, out interface{}) error {
	err := c.doOnce(ctx, method, path, q, in, out, c.creds.AccessToken())

	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusUnauthorized {
		return err
	}

	glog.V(5).Infof("rest: %s %s: 401, refreshing token", method, path)
	if rerr := c.Refresh(ctx); rerr != nil {
		return rerr
	}
	return c.doOnce(ctx, method, path, q, in, out, c.creds.AccessToken())
}

// Refresh exchanges the stored refresh token for a new pair. Failure clears
// the stored credentials and returns ErrUnauthenticated.
func (c *Client) Refresh(ctx context.Context) error {
	rt := c.creds.RefreshToken()
	if rt == "" {
		c.creds.Clear()
		return ErrUnauthenticated
	}

	var resp TokenResponse
	err := c.doOnce(ctx, http.MethodPost, "/auth/refresh",
		nil, &refreshRequest{RefreshToken: rt}, &resp, "")
	if err != nil {
		glog.Errorf("rest: refresh failed: %v", err)
		c.creds.Clear()
		return ErrUnauthenticated
	}

	c.creds.UpdateTokens(resp.AccessToken, resp.RefreshToken, resp.User)
	return nil
}

func pageQuery(limit, offset int) url.Values {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))
	return q
}

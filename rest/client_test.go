package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vichat/client-go/model"
)

type fakeCreds struct {
	access  string
	refresh string
	cleared bool
	updates int
}

func (f *fakeCreds) AccessToken() string  { return f.access }
func (f *fakeCreds) RefreshToken() string { return f.refresh }

func (f *fakeCreds) UpdateTokens(access, refresh string, user model.User) {
	f.access, f.refresh = access, refresh
	f.updates++
}

func (f *fakeCreds) Clear() {
	f.access, f.refresh = "", ""
	f.cleared = true
}

func TestBearerHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(&model.User{ID: 1, Username: "alice"})
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, &fakeCreds{access: "tok-1", refresh: "r-1"})
	require.NoError(t, err)

	u, err := c.Profile(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, u.ID)
}

func TestRefreshOnceOn401(t *testing.T) {
	var refreshes int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/refresh":
			atomic.AddInt64(&refreshes, 1)
			var req refreshRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "r-1", req.RefreshToken)
			json.NewEncoder(w).Encode(&TokenResponse{
				AccessToken:  "tok-2",
				RefreshToken: "r-2",
				User:         model.User{ID: 1, Username: "alice"},
			})
		case "/users/profile":
			if r.Header.Get("Authorization") != "Bearer tok-2" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			json.NewEncoder(w).Encode(&model.User{ID: 1, Username: "alice"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	creds := &fakeCreds{access: "stale", refresh: "r-1"}
	c, err := NewClient(srv.URL, creds)
	require.NoError(t, err)

	u, err := c.Profile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)
	assert.EqualValues(t, 1, atomic.LoadInt64(&refreshes))
	assert.Equal(t, "tok-2", creds.access)
	assert.Equal(t, "r-2", creds.refresh)
}

func TestRefreshFailureClearsCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	creds := &fakeCreds{access: "stale", refresh: "dead"}
	c, err := NewClient(srv.URL, creds)
	require.NoError(t, err)

	_, err = c.Profile(context.Background())
	assert.ErrorIs(t, err, ErrUnauthenticated)
	assert.True(t, creds.cleared)
}

func TestNoRefreshTokenIsUnauthenticated(t *testing.T) {
	creds := &fakeCreds{}
	c, err := NewClient("http://127.0.0.1:0", creds)
	require.NoError(t, err)

	assert.ErrorIs(t, c.Refresh(context.Background()), ErrUnauthenticated)
	assert.True(t, creds.cleared)
}

func TestServerFault(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"message": "boom"})
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, &fakeCreds{access: "tok", refresh: "r"})
	require.NoError(t, err)

	_, err = c.Profile(context.Background())
	assert.ErrorIs(t, err, ErrServerFault)
}

func TestStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"message": "no such user"})
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, &fakeCreds{access: "tok", refresh: "r"})
	require.NoError(t, err)

	_, err = c.Profile(context.Background())
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.Code)
	assert.Equal(t, "no such user", se.Message)
}

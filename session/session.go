// Package session holds the one authenticated identity of the client: the
// token pair, the authenticated flag, and the freshness flag that lets a just
// minted pair skip the liveness probe. The record is persisted locally and
// survives restarts; it is cleared wholesale on logout or an unrecoverable
// refresh failure.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/golang/glog"
	"go.etcd.io/bbolt"

	"github.com/vichat/client-go/model"
)

var (
	bucketName = []byte("session")
	recordKey  = []byte("state")
)

// ErrNotAuthenticated means there is no usable token pair.
var ErrNotAuthenticated = errors.New("session: not authenticated")

// State is the persisted session record. At most one token pair is active.
type State struct {
	User          model.User `json:"user"`
	AccessToken   string     `json:"token"`
	RefreshToken  string     `json:"refreshToken"`
	Authenticated bool       `json:"isAuthenticated"`

	// TokenFresh marks a pair just minted by an interactive login; CheckAuth
	// consumes it once instead of probing the backend.
	TokenFresh bool `json:"isTokenFresh"`
}

// Refresher validates the stored pair by one refresh round trip. Implemented
// by rest.Client.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Store is the session record, mirrored in memory and persisted in a local
// bbolt file.
type Store struct {
	mu    sync.RWMutex
	db    *bbolt.DB
	state State
}

// Open opens (or creates) the state file and loads the persisted record.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("session: open %s: %w", path, err)
	}

	s := &Store{db: db}
	err = db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketName)
		if err != nil {
			return err
		}
		raw := b.Get(recordKey)
		if raw == nil {
			return nil
		}
		if err := json.Unmarshal(raw, &s.state); err != nil {
			// A corrupt record downgrades to unauthenticated.
			glog.Errorf("session: corrupt state record, discarding: %v", err)
			s.state = State{}
			return b.Delete(recordKey)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("session: load state: %w", err)
	}

	glog.V(5).Infof("session: loaded, authenticated: %v, uid: %d",
		s.state.Authenticated, s.state.User.ID)
	return s, nil
}

// Close closes the underlying state file.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) persistLocked() {
	raw, err := json.Marshal(&s.state)
	if err != nil {
		glog.Errorf("session: marshal state: %v", err)
		return
	}
	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).Put(recordKey, raw)
	})
	if err != nil {
		glog.Errorf("session: persist state: %v", err)
	}
}

// State returns a copy of the current record.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// User returns the authenticated user.
func (s *Store) User() model.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.User
}

// Authenticated reports whether a token pair is active.
func (s *Store) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Authenticated
}

// AccessToken implements rest.Credentials and ws.TokenSource.
func (s *Store) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.AccessToken
}

// RefreshToken implements rest.Credentials.
func (s *Store) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.RefreshToken
}

// SetLogin stores a pair minted by an interactive login and marks it fresh.
func (s *Store) SetLogin(access, refresh string, user model.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = State{
		User:          user,
		AccessToken:   access,
		RefreshToken:  refresh,
		Authenticated: true,
		TokenFresh:    true,
	}
	s.persistLocked()

	if exp, err := tokenExpiry(access); err == nil {
		glog.V(5).Infof("session: login, uid: %d, token expires in %s",
			user.ID, time.Until(exp).Truncate(time.Second))
	}
}

// UpdateTokens implements rest.Credentials: stores a refreshed pair. A
// refreshed pair is not fresh; it already proved itself against the backend.
func (s *Store) UpdateTokens(access, refresh string, user model.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.AccessToken = access
	s.state.RefreshToken = refresh
	if user.ID != 0 {
		s.state.User = user
	}
	s.state.Authenticated = true
	s.state.TokenFresh = false
	s.persistLocked()
}

// Clear implements rest.Credentials: wholesale teardown of the record.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = State{}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).Delete(recordKey)
	})
	if err != nil {
		glog.Errorf("session: clear state: %v", err)
	}
}

// CheckAuth validates the stored pair on startup. A fresh pair skips the
// probe and the flag is consumed; otherwise one refresh round trip decides.
// Failure clears the record.
func (s *Store) CheckAuth(ctx context.Context, r Refresher) error {
	s.mu.Lock()
	if s.state.RefreshToken == "" {
		s.state = State{}
		s.mu.Unlock()
		return ErrNotAuthenticated
	}
	if s.state.TokenFresh {
		s.state.TokenFresh = false
		s.persistLocked()
		s.mu.Unlock()
		glog.V(5).Infof("session: token pair is fresh, skipping probe")
		return nil
	}
	s.mu.Unlock()

	if err := r.Refresh(ctx); err != nil {
		// Refresher already cleared the stored credentials.
		return fmt.Errorf("session: liveness probe: %w", err)
	}
	return nil
}

// tokenExpiry peeks at the access token's exp claim without verifying the
// signature. Diagnostics only; the backend is the authority.
func tokenExpiry(token string) (time.Time, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, err
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, errors.New("session: no exp claim")
	}
	return exp.Time, nil
}

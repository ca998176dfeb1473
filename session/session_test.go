package session

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vichat/client-go/model"
)

type fakeRefresher struct {
	calls int
	err   error
}

func (f *fakeRefresher) Refresh(ctx context.Context) error {
	f.calls++
	return f.err
}

func openTemp(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state.db")
	s, err := Open(path)
	require.NoError(t, err)
	return s, path
}

func TestPersistRoundtrip(t *testing.T) {
	s, path := openTemp(t)

	s.SetLogin("tok-1", "r-1", model.User{ID: 3, Username: "carol"})
	assert.True(t, s.Authenticated())
	require.NoError(t, s.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	st := s2.State()
	assert.Equal(t, "tok-1", st.AccessToken)
	assert.Equal(t, "r-1", st.RefreshToken)
	assert.EqualValues(t, 3, st.User.ID)
	assert.True(t, st.Authenticated)
	assert.True(t, st.TokenFresh)
}

func TestClearSurvivesReopen(t *testing.T) {
	s, path := openTemp(t)

	s.SetLogin("tok-1", "r-1", model.User{ID: 3})
	s.Clear()
	assert.False(t, s.Authenticated())
	require.NoError(t, s.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()
	assert.False(t, s2.Authenticated())
	assert.Empty(t, s2.AccessToken())
}

func TestUpdateTokensNotFresh(t *testing.T) {
	s, _ := openTemp(t)
	defer s.Close()

	s.SetLogin("tok-1", "r-1", model.User{ID: 3})
	s.UpdateTokens("tok-2", "r-2", model.User{})

	st := s.State()
	assert.Equal(t, "tok-2", st.AccessToken)
	assert.Equal(t, "r-2", st.RefreshToken)
	assert.EqualValues(t, 3, st.User.ID) // zero user does not clobber
	assert.False(t, st.TokenFresh)
}

func TestCheckAuthNoRefreshToken(t *testing.T) {
	s, _ := openTemp(t)
	defer s.Close()

	r := &fakeRefresher{}
	assert.ErrorIs(t, s.CheckAuth(context.Background(), r), ErrNotAuthenticated)
	assert.Zero(t, r.calls)
}

func TestCheckAuthFreshSkipsProbe(t *testing.T) {
	s, _ := openTemp(t)
	defer s.Close()

	s.SetLogin("tok-1", "r-1", model.User{ID: 3})
	r := &fakeRefresher{}

	// Fresh pair: flag consumed, no round trip.
	require.NoError(t, s.CheckAuth(context.Background(), r))
	assert.Zero(t, r.calls)
	assert.False(t, s.State().TokenFresh)

	// Second check must probe.
	require.NoError(t, s.CheckAuth(context.Background(), r))
	assert.Equal(t, 1, r.calls)
}

func TestCheckAuthProbeFailure(t *testing.T) {
	s, _ := openTemp(t)
	defer s.Close()

	s.SetLogin("tok-1", "r-1", model.User{ID: 3})
	require.NoError(t, s.CheckAuth(context.Background(), &fakeRefresher{})) // consume freshness

	r := &fakeRefresher{err: errors.New("dead pair")}
	assert.Error(t, s.CheckAuth(context.Background(), r))
	assert.Equal(t, 1, r.calls)
}

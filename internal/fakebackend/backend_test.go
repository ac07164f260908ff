package fakebackend

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/NemnemForStudy/WeEveryTrip-sub000/refresh"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func doRefresh(t *testing.T, srv *httptest.Server, token string) (*http.Response, refresh.Pair) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, srv.URL+refresh.DefaultPath, http.NoBody)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var pair refresh.Pair
	if resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&pair))
	}
	return resp, pair
}

func getPosts(t *testing.T, srv *httptest.Server, token string) int {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/posts", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	return resp.StatusCode
}

func TestBackendRotatesRefreshTokens(t *testing.T) {
	b, err := New(Options{})
	require.NoError(t, err)
	srv := httptest.NewServer(b.Handler())
	defer srv.Close()

	access, r1, err := b.Login("traveler")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, getPosts(t, srv, access))

	resp, pair := doRefresh(t, srv, r1)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEqual(t, r1, pair.RefreshToken)
	assert.Equal(t, http.StatusOK, getPosts(t, srv, pair.AccessToken))
	assert.Equal(t, int64(1), b.Stats().RefreshCalls)
}

func TestBackendReuseRevokesSession(t *testing.T) {
	b, err := New(Options{})
	require.NoError(t, err)
	srv := httptest.NewServer(b.Handler())
	defer srv.Close()

	_, r1, err := b.Login("traveler")
	require.NoError(t, err)
	_, pair := doRefresh(t, srv, r1)

	resp, _ := doRefresh(t, srv, r1)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, http.StatusUnauthorized, getPosts(t, srv, pair.AccessToken))
	assert.Equal(t, int64(1), b.Stats().ReuseRevoked)
}

func TestBackendOverrides(t *testing.T) {
	b, err := New(Options{})
	require.NoError(t, err)
	srv := httptest.NewServer(b.Handler())
	defer srv.Close()

	access, r1, err := b.Login("traveler")
	require.NoError(t, err)

	b.RevokeAccess(access)
	assert.Equal(t, http.StatusUnauthorized, getPosts(t, srv, access))

	b.SetRefreshStatus(http.StatusForbidden)
	resp, _ := doRefresh(t, srv, r1)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	b.SetRefreshStatus(0)
	_, pair := doRefresh(t, srv, r1)
	b.SetDenyAll(true)
	assert.Equal(t, http.StatusUnauthorized, getPosts(t, srv, pair.AccessToken))
	assert.GreaterOrEqual(t, b.Stats().Unauthorized, int64(2))
}

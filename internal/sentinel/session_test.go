package sentinel

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCredentials(t *testing.T) {
	user, pass, err := ParseCredentials("alice:s3:cr3t")
	require.NoError(t, err)
	assert.Equal(t, "alice", user)
	assert.Equal(t, "s3:cr3t", pass)

	for _, bad := range []string{"", "alice", ":nopass"} {
		_, _, err := ParseCredentials(bad)
		assert.True(t, errors.Is(err, ErrBadCredentials), bad)
	}
}

func TestSessionAppliesBasicAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "alice" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s, err := OpenSession("alice:secret", SessionOptions{ConnectTimeout: time.Second, ReadTimeout: time.Second})
	require.NoError(t, err)
	defer s.Close()

	for i := 0; i < 2; i++ {
		resp, err := s.Get(context.Background(), srv.URL)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	}
}

func TestSessionCloseIsIdempotent(t *testing.T) {
	closes := 0
	s, err := OpenSession("alice:secret", SessionOptions{OnClose: func() { closes++ }})
	require.NoError(t, err)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Equal(t, 1, closes)
	assert.True(t, s.Closed())

	_, err = s.Get(context.Background(), "http://127.0.0.1:1/")
	assert.True(t, errors.Is(err, ErrSessionClosed))
}

package session

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	errs "searchtweets/pkg/errors"
	"searchtweets/pkg/logger"
)

func TestOpenRequiresCredential(t *testing.T) {
	tests := []struct {
		name string
		cred Credential
	}{
		{"empty", Credential{}},
		{"username only", Credential{Username: "u"}},
		{"password without username", Credential{Password: "p"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess, err := Open(tt.cred, nil, WithLogger(logger.NewNopLogger()))
			require.Error(t, err)
			assert.Nil(t, sess)
			assert.True(t, errs.IsConfiguration(err))
		})
	}
}

func TestBearerSessionHeaders(t *testing.T) {
	var got http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	tl := logger.NewTestLogger()
	sess, err := Open(Credential{BearerToken: "tok", Username: "ignored", Password: "ignored"},
		map[string]string{
			"authorization": "Bearer hijack",
			"User-Agent":    "other",
			"X-Request-Tag": "abc",
		},
		WithLogger(tl),
	)
	require.NoError(t, err)
	defer sess.Close()

	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)
	resp, err := sess.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "Bearer tok", got.Get("Authorization"))
	assert.Equal(t, "searchtweets-go/"+Version, got.Get("User-Agent"))
	assert.Equal(t, "gzip", got.Get("Accept-Encoding"))
	assert.Equal(t, "abc", got.Get("X-Request-Tag"))
	assert.Equal(t, "bearer", sess.cred.Kind())

	warnings := tl.GetMessagesByLevel("WARN")
	require.Len(t, warnings, 2)
	assert.Equal(t, "ignoring extra header that would override a session header", warnings[0].Message)
}

func TestBasicAuthSession(t *testing.T) {
	var user, pass string
	var ok bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok = r.BasicAuth()
	}))
	defer server.Close()

	sess, err := Open(Credential{Username: "alice", Password: "secret"}, nil, WithLogger(logger.NewNopLogger()))
	require.NoError(t, err)
	defer sess.Close()

	req, _ := http.NewRequest(http.MethodPost, server.URL, nil)
	resp, err := sess.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.True(t, ok)
	assert.Equal(t, "alice", user)
	assert.Equal(t, "secret", pass)
}

func TestRefreshBuildsNewClient(t *testing.T) {
	built := 0
	factory := func() *http.Client {
		built++
		return &http.Client{}
	}

	sess, err := Open(Credential{BearerToken: "tok"}, nil,
		WithHTTPClientFactory(factory), WithLogger(logger.NewNopLogger()))
	require.NoError(t, err)

	first := sess.client
	sess.Refresh()
	assert.Equal(t, 2, built)
	assert.Equal(t, 1, sess.Refreshes())
	assert.NotSame(t, first, sess.client)

	require.NoError(t, sess.Close())
	sess.Refresh()
	assert.Equal(t, 2, built, "refresh after close does nothing")
}

func TestCloseIsIdempotent(t *testing.T) {
	sess, err := Open(Credential{BearerToken: "tok"}, nil, WithLogger(logger.NewNopLogger()))
	require.NoError(t, err)

	assert.NoError(t, sess.Close())
	assert.NoError(t, sess.Close())
	assert.True(t, sess.Closed())

	req, _ := http.NewRequest(http.MethodGet, "http://127.0.0.1:1", nil)
	_, err = sess.Do(req)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestNeedsRefresh(t *testing.T) {
	assert.False(t, NeedsRefresh(0))
	assert.False(t, NeedsRefresh(1))
	assert.False(t, NeedsRefresh(19))
	assert.True(t, NeedsRefresh(20))
	assert.False(t, NeedsRefresh(21))
	assert.True(t, NeedsRefresh(40))
}

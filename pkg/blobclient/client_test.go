package blobclient

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nsyte-dev/nsyte/pkg/api"
	"github.com/nsyte-dev/nsyte/pkg/hasher"
)

func testAuthEvent() api.Event {
	return api.Event{ID: "abc", PubKey: "def", CreatedAt: 1, Kind: api.KindBlobAuth, Sig: "sig"}
}

func TestHeadPresentAndAbsent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodHead, r.Method)
		if r.URL.Path == "/present" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(srv.URL)
	present, err := c.Head(context.Background(), "present")
	require.NoError(t, err)
	require.True(t, present)

	absent, err := c.Head(context.Background(), "missing")
	require.NoError(t, err)
	require.False(t, absent)
}

func TestGetVerifiesHash(t *testing.T) {
	content := []byte("hello world")
	hash := hasher.Sum256Hex(content)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(content)
	}))
	defer srv.Close()

	c := New(srv.URL)
	got, err := c.Get(context.Background(), hash)
	require.NoError(t, err)
	require.Equal(t, content, got)
}

func TestGetRejectsMismatchedHash(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("different content than the hash names"))
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.Get(context.Background(), "0000000000000000000000000000000000000000000000000000000000000000")
	require.Error(t, err)
	require.Equal(t, api.ErrKindMalformed, api.KindOf(err))
}

func TestGetNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.Get(context.Background(), "deadbeef")
	require.Error(t, err)
	require.Equal(t, api.ErrKindNotFound, api.KindOf(err))
}

func TestPutAttachesAuthorizationHeader(t *testing.T) {
	var gotHeader string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		require.Equal(t, "/upload", r.URL.Path)
		gotHeader = r.Header.Get("Authorization")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := New(srv.URL)
	err := c.Put(context.Background(), []byte("payload"), testAuthEvent())
	require.NoError(t, err)
	require.Contains(t, gotHeader, "Nostr ")
	require.Equal(t, []byte("payload"), gotBody)
}

func TestPutSurfacesAuthRequired(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := New(srv.URL)
	err := c.Put(context.Background(), []byte("payload"), testAuthEvent())
	require.Error(t, err)
	require.Equal(t, api.ErrKindAuthRequired, api.KindOf(err))
}

func TestPutSurfacesPermanentClientErrorAsMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := New(srv.URL)
	err := c.Put(context.Background(), []byte("payload"), testAuthEvent())
	require.Error(t, err)
	require.Equal(t, api.ErrKindMalformed, api.KindOf(err))
}

func TestHeadSurfacesServerErrorAsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	rc := New(srv.URL)
	rc.http.RetryMax = 0 // avoid exercising retryablehttp's own 5xx retry loop in this unit test
	_, err := rc.Head(context.Background(), "deadbeef")
	require.Error(t, err)
	require.Equal(t, api.ErrKindTransient, api.KindOf(err))
}

func TestDeleteTreatsNotFoundAsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(srv.URL)
	err := c.Delete(context.Background(), "deadbeef", testAuthEvent())
	require.NoError(t, err)
}

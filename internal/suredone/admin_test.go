package suredone

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestAdmin(t *testing.T, handler http.HandlerFunc) *AdminClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewAdminClient(zap.NewNop(), server.URL, "partner-user", "partner-token", "dropified")
}

func TestAdminClient_Authorize(t *testing.T) {
	admin := newTestAdmin(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/auth", r.URL.Path)
		assert.Equal(t, "partner-user", r.Header.Get("X-Auth-User"))
		assert.Equal(t, "partner-token", r.Header.Get("X-Auth-Token"))
		assert.Equal(t, "dropified", r.Header.Get("X-Auth-Integration"))

		raw, _ := io.ReadAll(r.Body)
		form, err := url.ParseQuery(string(raw))
		require.NoError(t, err)
		assert.Equal(t, "acme", form.Get("user"))
		assert.Equal(t, "pw", form.Get("pass"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"result":"success","token":"new-token"}`))
	})

	token, err := admin.Authorize(context.Background(), "acme", "pw")
	require.NoError(t, err)
	assert.Equal(t, "new-token", token)
}

func TestAdminClient_AuthorizeNon200(t *testing.T) {
	admin := newTestAdmin(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	_, err := admin.Authorize(context.Background(), "acme", "bad-pw")
	assert.ErrorContains(t, err, "403")
}

func TestAdminClient_AuthorizeEmptyToken(t *testing.T) {
	admin := newTestAdmin(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"result":"error","message":"bad credentials"}`))
	})

	_, err := admin.Authorize(context.Background(), "acme", "pw")
	assert.ErrorContains(t, err, "no token issued")
}

func TestAdminClient_Register(t *testing.T) {
	admin := newTestAdmin(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/profile/register", r.URL.Path)
		raw, _ := io.ReadAll(r.Body)
		form, err := url.ParseQuery(string(raw))
		require.NoError(t, err)
		assert.Equal(t, "newstore", form.Get("user"))
		assert.Equal(t, "new@store.test", form.Get("email"))
		_, _ = w.Write([]byte(`{"result":"success","user":"newstore"}`))
	})

	out, err := admin.Register(context.Background(), "newstore", "new@store.test", "pw")
	require.NoError(t, err)
	assert.Equal(t, "success", out["result"])
}

func TestAdminClient_ListUsers(t *testing.T) {
	admin := newTestAdmin(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/profile/users", r.URL.Path)
		_, _ = w.Write([]byte(`{"result":"success","users":["a","b"]}`))
	})

	out, err := admin.ListUsers(context.Background())
	require.NoError(t, err)
	assert.Len(t, out["users"], 2)
}

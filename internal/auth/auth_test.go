package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStaticTokens(t *testing.T) {
	toks, err := ParseStaticTokens(" alice-tok=alice , keeper-tok=keeper,")
	require.NoError(t, err)
	assert.Len(t, toks, 2)

	id, err := toks.Verify(context.Background(), "keeper-tok")
	require.NoError(t, err)
	assert.Equal(t, "keeper", id.ID)

	_, err = toks.Verify(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = ParseStaticTokens("broken")
	assert.Error(t, err)
	_, err = ParseStaticTokens("tok=")
	assert.Error(t, err)
}

func newSupabaseStub(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "anon", r.Header.Get("apikey"))
		switch r.URL.Path {
		case "/auth/v1/user":
			if r.Header.Get("Authorization") != "Bearer good" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_ = json.NewEncoder(w).Encode(SupabaseUser{ID: "user-1", Email: "a@example.com"})
		case "/auth/v1/token":
			_ = json.NewEncoder(w).Encode(Session{AccessToken: "good", User: SupabaseUser{ID: "user-1"}})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func TestSupabaseVerify(t *testing.T) {
	srv := newSupabaseStub(t)
	defer srv.Close()
	c := NewSupabaseClient(srv.URL+"/", "anon")

	id, err := c.Verify(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, Identity{ID: "user-1", Email: "a@example.com"}, id)

	_, err = c.Verify(context.Background(), "bad")
	assert.ErrorIs(t, err, ErrInvalidToken)

	sess, err := c.Login(context.Background(), "a@example.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, "good", sess.AccessToken)
}

func TestChain(t *testing.T) {
	srv := newSupabaseStub(t)
	defer srv.Close()
	chain := Chain{StaticTokens{"dev": {ID: "dev-player"}}, NewSupabaseClient(srv.URL, "anon")}

	id, err := chain.Verify(context.Background(), "dev")
	require.NoError(t, err)
	assert.Equal(t, "dev-player", id.ID)

	id, err = chain.Verify(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, "user-1", id.ID)

	_, err = chain.Verify(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = Chain{}.Verify(context.Background(), "x")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func newTestProvider(tokenURL string) *OIDCProvider {
	cfg := &oauth2.Config{
		ClientID:    "artistry",
		RedirectURL: "https://app.example.com/oauth/callback/test",
		Endpoint: oauth2.Endpoint{
			AuthURL:  "https://idp.example.com/auth",
			TokenURL: tokenURL,
		},
		Scopes: []string{oidc.ScopeOpenID},
	}
	verifier := oidc.NewVerifier("https://idp.example.com", &oidc.StaticKeySet{}, &oidc.Config{ClientID: "artistry"})
	return NewOIDC("test", cfg, verifier)
}

func TestAuthCodeURLCarriesPKCE(t *testing.T) {
	p := newTestProvider("https://idp.example.com/token")

	u, err := url.Parse(p.AuthCodeURL("state-1", "challenge-1"))
	require.NoError(t, err)

	q := u.Query()
	assert.Equal(t, "state-1", q.Get("state"))
	assert.Equal(t, "challenge-1", q.Get("code_challenge"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.Equal(t, "artistry", q.Get("client_id"))
}

func TestExchangeCodeRequiresIDToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at","token_type":"Bearer","expires_in":3600}`))
	}))
	defer srv.Close()

	p := newTestProvider(srv.URL)
	_, err := p.ExchangeCode(context.Background(), "code", "verifier")
	assert.EqualError(t, err, "test did not return id_token")
}

func TestExchangeCodeRejectsBadIDToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at","token_type":"Bearer","id_token":"not.a.jwt"}`))
	}))
	defer srv.Close()

	p := newTestProvider(srv.URL)
	_, err := p.ExchangeCode(context.Background(), "code", "verifier")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "id_token verification failed")
}

func TestRegistry(t *testing.T) {
	p := newTestProvider("https://idp.example.com/token")
	r := NewRegistry(p)

	got, err := r.Get("test")
	require.NoError(t, err)
	assert.Equal(t, "test", got.Name())

	_, err = r.Get("linkedin")
	assert.Error(t, err)
	assert.Equal(t, []string{"test"}, r.Names())
}

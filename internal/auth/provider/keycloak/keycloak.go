package keycloak

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"supa-artistry/internal/auth/provider"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

const providerName = "keycloak"

// New initializes a Keycloak OIDC provider using discovery.
// issuer must be the realm issuer URL, e.g.
// http://keycloak:8080/realms/artistry. When the browser reaches Keycloak
// under a different host, publicBaseURL replaces the issuer's scheme and host
// in the authorization URL.
func New(
	ctx context.Context,
	issuer string,
	clientID string,
	redirectURL string,
	publicBaseURL string,
) (*provider.OIDCProvider, error) {

	if issuer == "" || clientID == "" || redirectURL == "" {
		return nil, errors.New("keycloak oauth config missing required fields")
	}

	oidcProvider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to init keycloak oidc provider: %w", err)
	}

	ep := oidcProvider.Endpoint()
	if publicBaseURL != "" {
		authURL, err := rebase(ep.AuthURL, publicBaseURL)
		if err != nil {
			return nil, err
		}
		ep.AuthURL = authURL
	}

	oauthCfg := &oauth2.Config{
		ClientID:    clientID,
		RedirectURL: redirectURL,
		Endpoint:    ep,
		Scopes: []string{
			oidc.ScopeOpenID,
			"email",
			"profile",
		},
	}

	verifier := oidcProvider.Verifier(&oidc.Config{ClientID: clientID})

	return provider.NewOIDC(providerName, oauthCfg, verifier), nil
}

// rebase swaps the scheme and host of endpoint for those of base,
// keeping endpoint's path.
func rebase(endpoint string, base string) (string, error) {
	e, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("keycloak: bad endpoint %q: %w", endpoint, err)
	}
	b, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil || b.Host == "" {
		return "", fmt.Errorf("keycloak: bad public base url %q", base)
	}
	e.Scheme = b.Scheme
	e.Host = b.Host
	e.Path = b.Path + e.Path
	return e.String(), nil
}

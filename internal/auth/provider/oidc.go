package provider

import (
	"context"
	"errors"
	"fmt"

	"supa-artistry/internal/auth"
	"supa-artistry/internal/logger"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// OIDCProvider implements OAuthProvider for any OpenID Connect issuer.
// It returns identity facts only; no user/session decisions are made here.
type OIDCProvider struct {
	name        string
	oauthConfig *oauth2.Config
	verifier    *oidc.IDTokenVerifier
}

func NewOIDC(name string, oauthConfig *oauth2.Config, verifier *oidc.IDTokenVerifier) *OIDCProvider {
	return &OIDCProvider{
		name:        name,
		oauthConfig: oauthConfig,
		verifier:    verifier,
	}
}

// Name returns the provider identifier used by the registry.
func (p *OIDCProvider) Name() string {
	return p.name
}

// AuthCodeURL builds the OAuth authorization URL with PKCE parameters.
func (p *OIDCProvider) AuthCodeURL(state string, codeChallenge string) string {
	return p.oauthConfig.AuthCodeURL(
		state,
		oauth2.AccessTypeOnline,
		oauth2.SetAuthURLParam("code_challenge", codeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)
}

// ExchangeCode exchanges the authorization code and returns a normalized identity.
// This method MUST NOT create users, sessions, or perform linking logic.
func (p *OIDCProvider) ExchangeCode(
	ctx context.Context,
	code string,
	codeVerifier string,
) (*auth.Identity, error) {

	token, err := p.oauthConfig.Exchange(
		ctx,
		code,
		oauth2.SetAuthURLParam("code_verifier", codeVerifier),
	)
	if err != nil {
		return nil, fmt.Errorf("%s token exchange failed: %w", p.name, err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, fmt.Errorf("%s did not return id_token", p.name)
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("%s id_token verification failed: %w", p.name, err)
	}

	var claims struct {
		Subject       string `json:"sub"`
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
	}

	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%s id_token claims parse failed: %w", p.name, err)
	}

	if claims.Subject == "" || claims.Email == "" {
		return nil, errors.New(p.name + " id_token missing required claims")
	}

	logger.Info("oidc verified", map[string]any{
		"provider":        p.name,
		"issuer":          idToken.Issuer,
		"subject_present": claims.Subject != "",
		"email_verified":  claims.EmailVerified,
		"expiry_unix":     idToken.Expiry.Unix(),
	})

	return &auth.Identity{
		Provider:       p.name,
		ProviderUserID: claims.Subject,
		Email:          claims.Email,
		EmailVerified:  claims.EmailVerified,
	}, nil
}

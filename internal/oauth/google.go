package oauth

import (
	"context"
	"errors"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/newsdesk/service-core/internal/identity"
)

const googleIssuer = "https://accounts.google.com"

type ClientConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

func (c ClientConfig) complete() bool {
	return c.ClientID != "" && c.ClientSecret != "" && c.RedirectURL != ""
}

// OIDCProvider signs users in with any OpenID Connect issuer that supports
// discovery.
type OIDCProvider struct {
	name     string
	cfg      *oauth2.Config
	verifier *oidc.IDTokenVerifier
}

// NewGoogle discovers Google's endpoints, so it needs network access.
func NewGoogle(ctx context.Context, cfg ClientConfig) (*OIDCProvider, error) {
	return NewOIDCProvider(ctx, "google", googleIssuer, cfg)
}

func NewOIDCProvider(ctx context.Context, name, issuer string, cfg ClientConfig) (*OIDCProvider, error) {
	if !cfg.complete() {
		return nil, errors.New(name + " oauth config missing required fields")
	}
	p, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("discover %s: %w", name, err)
	}
	return &OIDCProvider{
		name: name,
		cfg: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     p.Endpoint(),
			Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
		},
		verifier: p.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
	}, nil
}

func (p *OIDCProvider) Name() string { return p.name }

func (p *OIDCProvider) AuthCodeURL(state, codeChallenge string) string {
	return p.cfg.AuthCodeURL(
		state,
		oauth2.AccessTypeOnline,
		oauth2.SetAuthURLParam("code_challenge", codeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)
}

func (p *OIDCProvider) Exchange(ctx context.Context, code, codeVerifier string) (identity.Payload, error) {
	tok, err := p.cfg.Exchange(ctx, code, oauth2.SetAuthURLParam("code_verifier", codeVerifier))
	if err != nil {
		return identity.Payload{}, fmt.Errorf("%s token exchange: %w", p.name, err)
	}
	raw, ok := tok.Extra("id_token").(string)
	if !ok || raw == "" {
		return identity.Payload{}, fmt.Errorf("%s returned no id_token", p.name)
	}
	idTok, err := p.verifier.Verify(ctx, raw)
	if err != nil {
		return identity.Payload{}, fmt.Errorf("verify %s id_token: %w", p.name, err)
	}
	var c idClaims
	if err := idTok.Claims(&c); err != nil {
		return identity.Payload{}, fmt.Errorf("read %s claims: %w", p.name, err)
	}
	return c.payload(p.name), nil
}

type idClaims struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified *bool  `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

func (c idClaims) payload(provider string) identity.Payload {
	p := identity.Payload{
		Provider:       provider,
		ProviderUserID: c.Sub,
		DisplayName:    c.Name,
	}
	if c.Email != "" {
		p.Emails = []identity.Email{{Value: c.Email, Verified: c.EmailVerified}}
	}
	if c.Picture != "" {
		p.Photos = []identity.Photo{{Value: c.Picture}}
	}
	return p
}

package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// ErrInvalidState is returned when the OAuth state parameter doesn't match.
var ErrInvalidState = errors.New("invalid state parameter")

// ErrCodeExchangeFailed is returned when code exchange fails.
var ErrCodeExchangeFailed = errors.New("code exchange failed")

// Claims contains the ID token claims from OIDC authentication.
type Claims struct {
	Sub           string
	Email         string
	Name          string
	EmailVerified bool
}

// OIDCClient is the application side of an OIDC login.
type OIDCClient interface {
	// GetAuthURL returns the URL to redirect the user to for authentication.
	GetAuthURL(state string) string

	// ExchangeCode exchanges an authorization code for ID token claims.
	ExchangeCode(ctx context.Context, code string) (*Claims, error)
}

// ProviderOIDCClient implements OIDCClient against any discovery-capable
// OIDC provider (Google in production, mockoidc in tests).
type ProviderOIDCClient struct {
	verifier    *oidc.IDTokenVerifier
	oauthConfig *oauth2.Config
}

// NewOIDCClient discovers issuerURL and configures the code flow.
func NewOIDCClient(ctx context.Context, issuerURL, clientID, clientSecret, redirectURL string) (*ProviderOIDCClient, error) {
	provider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create OIDC provider: %w", err)
	}

	return &ProviderOIDCClient{
		verifier: provider.Verifier(&oidc.Config{ClientID: clientID}),
		oauthConfig: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Endpoint:     provider.Endpoint(),
			Scopes:       []string{oidc.ScopeOpenID, "email", "profile"},
		},
	}, nil
}

// GetAuthURL returns the provider authorization URL carrying state.
func (c *ProviderOIDCClient) GetAuthURL(state string) string {
	return c.oauthConfig.AuthCodeURL(state)
}

// ExchangeCode performs the token exchange, verifies the ID token and
// extracts its claims.
func (c *ProviderOIDCClient) ExchangeCode(ctx context.Context, code string) (*Claims, error) {
	oauth2Token, err := c.oauthConfig.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCodeExchangeFailed, err)
	}

	rawIDToken, ok := oauth2Token.Extra("id_token").(string)
	if !ok {
		return nil, fmt.Errorf("%w: missing id_token in token response", ErrCodeExchangeFailed)
	}

	idToken, err := c.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("%w: id_token verification failed: %v", ErrCodeExchangeFailed, err)
	}

	var idClaims struct {
		Sub           string `json:"sub"`
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		Name          string `json:"name"`
		Username      string `json:"preferred_username"`
	}
	if err := idToken.Claims(&idClaims); err != nil {
		return nil, fmt.Errorf("%w: failed to parse claims: %v", ErrCodeExchangeFailed, err)
	}

	name := idClaims.Name
	if name == "" {
		name = idClaims.Username
	}

	return &Claims{
		Sub:           idClaims.Sub,
		Email:         idClaims.Email,
		Name:          name,
		EmailVerified: idClaims.EmailVerified,
	}, nil
}

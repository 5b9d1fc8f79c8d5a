package auth

import (
	"context"

	"github.com/oauth2-proxy/mockoidc"
)

// MockProvider is an in-process OIDC provider for local runs and tests.
type MockProvider struct {
	*mockoidc.MockOIDC
}

// StartMockProvider starts mockoidc on a random loopback port.
func StartMockProvider() (*MockProvider, error) {
	m, err := mockoidc.Run()
	if err != nil {
		return nil, err
	}
	return &MockProvider{MockOIDC: m}, nil
}

// Client returns an application-side OIDC client registered at the provider.
func (p *MockProvider) Client(ctx context.Context, redirectURL string) (*ProviderOIDCClient, error) {
	return NewOIDCClient(ctx, p.Issuer(), p.ClientID, p.ClientSecret, redirectURL)
}

// QueueIdentity makes the next authorization at the provider return id.
// It has the signature of OIDCIssuer.Prepare.
func (p *MockProvider) QueueIdentity(_ context.Context, id Identity) error {
	p.QueueUser(&mockoidc.MockUser{
		Subject:           id.UserID,
		Email:             id.Email,
		EmailVerified:     true,
		PreferredUsername: id.Name,
	})
	return nil
}

package auth

import (
	"context"
	"net/http"
)

// Login mechanisms reported on issued credentials.
const (
	MechanismMock = "mock"
	MechanismOIDC = "oidc"
)

// Identity describes the user a test signs in as. It is always supplied by
// configuration; nothing in this package hard-codes a user.
type Identity struct {
	UserID string `json:"id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
}

// Credential is a session-scoped login credential for one identity. It is
// never persisted.
type Credential struct {
	Cookies   []*http.Cookie
	UserID    string
	Mechanism string
}

// Issuer produces credentials for an identity. Implementations decide how the
// application's session cookie is obtained.
type Issuer interface {
	Issue(ctx context.Context, id Identity) (*Credential, error)
}

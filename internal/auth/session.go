package auth

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-jose/go-jose/v3"
	"github.com/go-jose/go-jose/v3/jwt"
	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"
)

// Session errors
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
	ErrInvalidSession  = errors.New("invalid session")
)

// Session configuration
const (
	SessionCookieName      = "session"
	DefaultSessionDuration = 24 * time.Hour
	MinSecretLength        = 16

	sessionIssuer  = "blogs"
	sessionKeyInfo = "blogs session signing key v1"
)

// SessionClaims are the claims carried in the session cookie.
type SessionClaims struct {
	jwt.Claims
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

// Identity returns the identity the session was issued for.
func (c SessionClaims) Identity() Identity {
	return Identity{UserID: c.Subject, Email: c.Email, Name: c.Name}
}

// SessionCodec signs and verifies session cookies. The session is a stateless
// HS256 JWT so anyone holding the shared secret (the server and the mock
// login issuer) can mint one.
type SessionCodec struct {
	key   []byte
	ttl   time.Duration
	clock Clock
}

// NewSessionCodec derives the signing key from secret with HKDF-SHA256.
func NewSessionCodec(secret string, ttl time.Duration) (*SessionCodec, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("auth: session secret must be at least %d bytes", MinSecretLength)
	}
	if ttl <= 0 {
		ttl = DefaultSessionDuration
	}

	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(sessionKeyInfo)), key); err != nil {
		return nil, fmt.Errorf("auth: derive session key: %w", err)
	}

	return &SessionCodec{key: key, ttl: ttl, clock: systemClock{}}, nil
}

// WithClock returns a copy of the codec that reads time from clock.
func (c *SessionCodec) WithClock(clock Clock) *SessionCodec {
	cp := *c
	cp.clock = clock
	return &cp
}

// TTL is the lifetime of issued sessions.
func (c *SessionCodec) TTL() time.Duration {
	return c.ttl
}

// Sign issues a session token for id.
func (c *SessionCodec) Sign(id Identity) (string, error) {
	if id.UserID == "" {
		return "", fmt.Errorf("auth: sign session: empty user id")
	}

	signerOpts := jose.SignerOptions{}
	signerOpts.WithType("JWT")

	signer, err := jose.NewSigner(jose.SigningKey{
		Algorithm: jose.HS256,
		Key:       c.key,
	}, &signerOpts)
	if err != nil {
		return "", fmt.Errorf("auth: create signer: %w", err)
	}

	now := c.clock.Now()
	claims := SessionClaims{
		Claims: jwt.Claims{
			Issuer:   sessionIssuer,
			Subject:  id.UserID,
			IssuedAt: jwt.NewNumericDate(now),
			Expiry:   jwt.NewNumericDate(now.Add(c.ttl)),
			ID:       uuid.NewString(),
		},
		Email: id.Email,
		Name:  id.Name,
	}

	token, err := jwt.Signed(signer).Claims(claims).CompactSerialize()
	if err != nil {
		return "", fmt.Errorf("auth: sign session: %w", err)
	}
	return token, nil
}

// Verify checks the signature and expiry of a session token.
func (c *SessionCodec) Verify(token string) (*SessionClaims, error) {
	if token == "" {
		return nil, ErrSessionNotFound
	}

	parsed, err := jwt.ParseSigned(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}

	claims := &SessionClaims{}
	if err := parsed.Claims(c.key, claims); err != nil {
		return nil, fmt.Errorf("%w: signature verification failed", ErrInvalidSession)
	}

	err = claims.Validate(jwt.Expected{
		Issuer: sessionIssuer,
		Time:   c.clock.Now(),
	})
	if err != nil {
		if errors.Is(err, jwt.ErrExpired) {
			return nil, ErrSessionExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidSession)
	}

	return claims, nil
}

// Cookie helpers

// NewSessionCookie builds the session cookie for token.
func NewSessionCookie(token string, ttl time.Duration, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(ttl.Seconds()),
	}
}

// ClearCookie removes the session cookie.
func ClearCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

// GetFromRequest retrieves the session token from the request cookie.
func GetFromRequest(r *http.Request) (string, error) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		if errors.Is(err, http.ErrNoCookie) {
			return "", ErrSessionNotFound
		}
		return "", err
	}
	return cookie.Value, nil
}

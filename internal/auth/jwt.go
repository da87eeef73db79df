// Package auth holds the credentials plumbing of the front-end server.
//
// TWO DIFFERENT TOKENS:
// It helps to keep two tokens apart when reading this package:
//
//  1. The CLIENT COOKIE (this file). Every browser gets an opaque client id
//     (an xid), signed into an HS256 JWT and stored in an HttpOnly cookie. It
//     identifies "which browser is this" so the server can find that browser's
//     session. It carries no privileges on its own.
//  2. The BEARER TOKEN issued by the backend after GitHub OAuth. It is what the
//     backend API accepts. The server stores it per client (sealed, see
//     seal.go) and attaches it to API calls (see oauth.go). It never goes back
//     to the browser after the OAuth callback.
//
// WHY SIGN THE CLIENT ID?
// Without a signature anyone could send a guessed client id and inherit that
// browser's backend session. With HMAC-SHA256 the server can verify the cookie
// without any lookup, and a forged or tampered cookie just gets a new client id.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	issuer = "devfolio-web"

	// ClientTokenLifetime is how long a client cookie stays valid.
	ClientTokenLifetime = 30 * 24 * time.Hour
)

// TokenService signs and verifies client cookies.
type TokenService struct {
	secret []byte
}

// NewTokenService creates a TokenService with the given secret.
// The secret should be at least 32 bytes of random data in production; main
// derives it from SESSION_SECRET (see DeriveKeys).
func NewTokenService(secret string) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	return &TokenService{secret: []byte(secret)}, nil
}

// claims is the JWT payload; "sub" is the client id.
type claims struct {
	jwt.RegisteredClaims
}

// Generate signs a client token for clientID with the default lifetime.
func (s *TokenService) Generate(clientID string) (string, error) {
	return s.GenerateWithDuration(clientID, ClientTokenLifetime)
}

// GenerateWithDuration signs a client token with a custom lifetime.
// Used in tests to mint already-expired tokens.
func (s *TokenService) GenerateWithDuration(clientID string, d time.Duration) (string, error) {
	if clientID == "" {
		return "", errors.New("auth: client id must not be empty")
	}
	now := time.Now()

	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   clientID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(d)),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}

	return signed, nil
}

// Validate parses and verifies a client token and returns the client id and
// the time it was issued.
//
// ALGORITHM CONFUSION ATTACK:
// Without pinning the algorithm, a token signed with "none" could be accepted.
// jwt.WithValidMethods prevents this.
func (s *TokenService) Validate(tokenStr string) (string, time.Time, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", time.Time{}, fmt.Errorf("auth: token expired")
		}
		return "", time.Time{}, fmt.Errorf("auth: invalid token: %w", err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return "", time.Time{}, fmt.Errorf("auth: invalid token claims")
	}

	if c.Subject == "" {
		return "", time.Time{}, fmt.Errorf("auth: token has no subject")
	}

	var issuedAt time.Time
	if c.IssuedAt != nil {
		issuedAt = c.IssuedAt.Time
	}
	return c.Subject, issuedAt, nil
}

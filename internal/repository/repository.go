// Package repository declares the storage interfaces the services depend on.
//
// The service layer only sees these interfaces; internal/repository/sqlite
// and internal/repository/redis provide the implementations, and server.go
// picks one from TOKEN_STORE.
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/sakif/devfolio-web/internal/auth"
)

// TokenRepository persists one backend bearer token per browser client.
//
// GetToken returns an apperror.ErrNotFound error when the client has no
// token. DeleteToken of a missing client is not an error.
type TokenRepository interface {
	GetToken(ctx context.Context, clientID string) (string, error)
	SaveToken(ctx context.Context, clientID, token string) error
	DeleteToken(ctx context.Context, clientID string) error
	PurgeIdle(ctx context.Context, olderThan time.Time) (int64, error)
}

// SealedTokens wraps a TokenRepository so tokens are encrypted at rest.
type SealedTokens struct {
	inner  TokenRepository
	sealer *auth.Sealer
}

var _ TokenRepository = (*SealedTokens)(nil)

func NewSealedTokens(inner TokenRepository, sealer *auth.Sealer) *SealedTokens {
	return &SealedTokens{inner: inner, sealer: sealer}
}

func (s *SealedTokens) GetToken(ctx context.Context, clientID string) (string, error) {
	sealed, err := s.inner.GetToken(ctx, clientID)
	if err != nil {
		return "", err
	}
	token, err := s.sealer.Open(sealed)
	if err != nil {
		// A row sealed under a rotated SESSION_SECRET can never be opened
		// again; drop it so the client simply signs in anew.
		if delErr := s.inner.DeleteToken(ctx, clientID); delErr != nil {
			return "", fmt.Errorf("repository: dropping unreadable token: %w", delErr)
		}
		return "", fmt.Errorf("repository: opening token for client %s: %w", clientID, err)
	}
	return token, nil
}

func (s *SealedTokens) SaveToken(ctx context.Context, clientID, token string) error {
	sealed, err := s.sealer.Seal(token)
	if err != nil {
		return fmt.Errorf("repository: sealing token: %w", err)
	}
	return s.inner.SaveToken(ctx, clientID, sealed)
}

func (s *SealedTokens) DeleteToken(ctx context.Context, clientID string) error {
	return s.inner.DeleteToken(ctx, clientID)
}

func (s *SealedTokens) PurgeIdle(ctx context.Context, olderThan time.Time) (int64, error) {
	return s.inner.PurgeIdle(ctx, olderThan)
}

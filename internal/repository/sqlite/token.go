package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sakif/devfolio-web/internal/apperror"
	"github.com/sakif/devfolio-web/internal/repository"
)

// compile-time check that *DB implements repository.TokenRepository
var _ repository.TokenRepository = (*DB)(nil)

// GetToken returns the stored (sealed) token of clientID and marks the row as
// recently used.
func (db *DB) GetToken(ctx context.Context, clientID string) (string, error) {
	var token string
	err := db.conn.QueryRowContext(ctx,
		`SELECT token FROM client_tokens WHERE client_id = ?`, clientID,
	).Scan(&token)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", apperror.NotFound("client token", clientID)
		}
		return "", fmt.Errorf("sqlite: getting token for client %s: %w", clientID, err)
	}

	if _, err := db.conn.ExecContext(ctx,
		`UPDATE client_tokens SET last_seen_unix = ? WHERE client_id = ?`,
		time.Now().Unix(), clientID,
	); err != nil {
		return "", fmt.Errorf("sqlite: touching token for client %s: %w", clientID, err)
	}

	return token, nil
}

// SaveToken inserts or replaces the token of clientID.
//
// ON CONFLICT ... DO UPDATE keeps created_at from the first login while
// refreshing everything else.
func (db *DB) SaveToken(ctx context.Context, clientID, token string) error {
	if clientID == "" {
		return apperror.ValidationFailed("client_id", "client id must not be empty")
	}
	now := time.Now().UTC()
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO client_tokens (client_id, token, created_at, updated_at, last_seen_unix)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(client_id) DO UPDATE SET
			token = excluded.token,
			updated_at = excluded.updated_at,
			last_seen_unix = excluded.last_seen_unix`,
		clientID, token, now, now, now.Unix(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: saving token for client %s: %w", clientID, err)
	}
	return nil
}

// DeleteToken removes the token of clientID. Deleting a missing row is fine:
// logout and failed identity checks both call it unconditionally.
func (db *DB) DeleteToken(ctx context.Context, clientID string) error {
	if _, err := db.conn.ExecContext(ctx,
		`DELETE FROM client_tokens WHERE client_id = ?`, clientID,
	); err != nil {
		return fmt.Errorf("sqlite: deleting token for client %s: %w", clientID, err)
	}
	return nil
}

// PurgeIdle deletes tokens not read or written since olderThan and returns
// how many rows went away.
func (db *DB) PurgeIdle(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := db.conn.ExecContext(ctx,
		`DELETE FROM client_tokens WHERE last_seen_unix < ?`, olderThan.Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("sqlite: purging idle tokens: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: counting purged tokens: %w", err)
	}
	return n, nil
}

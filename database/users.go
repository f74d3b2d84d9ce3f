package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"

	"github.com/mbolis/prom-tracker/errs"
)

// EnsureUser creates the operator account, or resets its password.
func (s *Store) EnsureUser(ctx context.Context, username, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return errors.Wrap(err, "ensure_user.hash")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO user (username, password_hash) VALUES (?, ?)
		ON CONFLICT (username) DO UPDATE SET password_hash = excluded.password_hash`,
		username, hash,
	)
	return errors.Wrap(err, "ensure_user")
}

func (s *Store) ValidateUser(ctx context.Context, username, password string) error {
	var hash []byte
	err := s.db.
		QueryRowContext(ctx, "SELECT password_hash FROM user WHERE username = ?", username).
		Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return errs.NotFound("user", username)
	}
	if err != nil {
		return errors.Wrap(err, "validate_user")
	}

	return bcrypt.CompareHashAndPassword(hash, []byte(password))
}

func (s *Store) StoreToken(ctx context.Context, username, tokenID, refreshTokenID string, expiration time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO token (username, token_id, refresh_token_id, expiration)
		VALUES (?, ?, ?, ?)`,
		username, tokenID, refreshTokenID, expiration.UTC(),
	)
	return errors.Wrap(err, "store_token")
}

func (s *Store) ConsumeToken(ctx context.Context, username, tokenID, refreshTokenID string) (time.Time, error) {
	var expiration time.Time
	err := s.db.
		QueryRowContext(ctx, `
			DELETE FROM token
			WHERE username = ?
				AND token_id = ?
				AND refresh_token_id = ?
			RETURNING expiration`,
			username, tokenID, refreshTokenID,
		).
		Scan(&expiration)
	if errors.Is(err, sql.ErrNoRows) {
		return expiration, errs.NotFound("token", tokenID)
	}
	return expiration, errors.Wrap(err, "consume_token")
}

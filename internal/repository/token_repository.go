package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/auth-session-api/internal/model"
)

// TokenRepo persists the refresh_tokens row of each user.  user_id is
// unique, so a user has at most one row; logging out clears the token but
// keeps the row.
type TokenRepo struct{ DB DBTX }

func NewTokenRepo(db DBTX) *TokenRepo { return &TokenRepo{DB: db} }

// FindByUser returns the user's row, or ErrNotFound.
func (r *TokenRepo) FindByUser(ctx context.Context, userID uint64) (*model.RefreshToken, error) {
	var (
		t     model.RefreshToken
		token sql.NullString
	)
	err := r.DB.QueryRowContext(ctx,
		"SELECT id, user_id, token FROM refresh_tokens WHERE user_id = ? LIMIT 1",
		userID).Scan(&t.ID, &t.UserID, &token)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find refresh token: %w", err)
	}
	t.Token = token.String
	return &t, nil
}

// Create inserts the user's row.  ErrTokenExists means another request
// created it first.
func (r *TokenRepo) Create(ctx context.Context, userID uint64, token string) (model.RefreshToken, error) {
	now := time.Now().UTC()
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO refresh_tokens (user_id, token, created_at, updated_at) VALUES (?,?,?,?)",
		userID, nullString(token), now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return model.RefreshToken{}, ErrTokenExists
		}
		return model.RefreshToken{}, fmt.Errorf("insert refresh token: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.RefreshToken{}, err
	}
	return model.RefreshToken{ID: uint64(id), UserID: userID, Token: token}, nil
}

// Clear sets the user's token to NULL, keeping the row.
func (r *TokenRepo) Clear(ctx context.Context, userID uint64) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE refresh_tokens SET token = NULL, updated_at = ? WHERE user_id = ?",
		time.Now().UTC(), userID)
	if err != nil {
		return fmt.Errorf("clear refresh token: %w", err)
	}
	return requireRow(res)
}

// Set stores token on an existing row.
func (r *TokenRepo) Set(ctx context.Context, existing model.RefreshToken, token string) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE refresh_tokens SET token = ?, updated_at = ? WHERE id = ?",
		nullString(token), time.Now().UTC(), existing.ID)
	if err != nil {
		return fmt.Errorf("set refresh token: %w", err)
	}
	return requireRow(res)
}

// requireRow maps an update that touched nothing to ErrNotFound.
func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

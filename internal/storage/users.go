package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"splitwise/internal/core"
)

// GetOrCreateUserByEmail looks a user up by email, creating them on first
// sight. Magic-link sign-in has no separate registration step.
func (r *SQLiteRepository) GetOrCreateUserByEmail(ctx context.Context, email, name string) (core.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return core.User{}, errors.New("email required")
	}

	u, err := r.GetUserByEmail(ctx, email)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return core.User{}, err
	}

	if name == "" {
		name = strings.SplitN(email, "@", 2)[0]
	}
	u = core.User{
		ID:              uuid.NewString(),
		Name:            name,
		Email:           email,
		DefaultCurrency: core.USD,
		CreatedAt:       time.Now().UTC(),
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO users (id, name, email, avatar_url, default_currency, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID, u.Name, u.Email, u.AvatarURL, string(u.DefaultCurrency), u.CreatedAt)
	if err != nil {
		return core.User{}, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

func (r *SQLiteRepository) GetUser(ctx context.Context, id string) (core.User, error) {
	return r.scanUser(r.db.QueryRowContext(ctx,
		`SELECT id, name, email, avatar_url, default_currency, created_at
		 FROM users WHERE id = ?`, id))
}

func (r *SQLiteRepository) GetUserByEmail(ctx context.Context, email string) (core.User, error) {
	return r.scanUser(r.db.QueryRowContext(ctx,
		`SELECT id, name, email, avatar_url, default_currency, created_at
		 FROM users WHERE email = ?`, email))
}

func (r *SQLiteRepository) scanUser(row *sql.Row) (core.User, error) {
	var u core.User
	var currency string
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.AvatarURL, &currency, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, ErrNotFound
	}
	if err != nil {
		return core.User{}, fmt.Errorf("scan user: %w", err)
	}
	u.DefaultCurrency = core.Currency(currency)
	return u, nil
}

func (r *SQLiteRepository) UpdateUserProfile(ctx context.Context, id, name, avatarURL string, defaultCurrency core.Currency) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET name = ?, avatar_url = ?, default_currency = ? WHERE id = ?`,
		name, avatarURL, string(defaultCurrency), id)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateMagicLink stores a single-use sign-in token.
func (r *SQLiteRepository) CreateMagicLink(ctx context.Context, token, userID string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO magic_links (token, user_id, expires_at) VALUES (?, ?, ?)`,
		token, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("insert magic link: %w", err)
	}
	return nil
}

// ConsumeMagicLink deletes the token and returns its user. Expired or unknown
// tokens fail with ErrNotFound; a token can never be used twice.
func (r *SQLiteRepository) ConsumeMagicLink(ctx context.Context, token string, now time.Time) (string, error) {
	var userID string
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		var expiresAt time.Time
		err := tx.QueryRowContext(ctx,
			`SELECT user_id, expires_at FROM magic_links WHERE token = ?`, token).
			Scan(&userID, &expiresAt)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("scan magic link: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM magic_links WHERE token = ?`, token); err != nil {
			return fmt.Errorf("delete magic link: %w", err)
		}
		if now.After(expiresAt) {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return userID, nil
}

func (r *SQLiteRepository) CreateSession(ctx context.Context, token, userID string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (token, user_id, expires_at, created_at) VALUES (?, ?, ?, ?)`,
		token, userID, expiresAt, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetSessionUser resolves a session token to its user ID, treating expired
// sessions as absent.
func (r *SQLiteRepository) GetSessionUser(ctx context.Context, token string, now time.Time) (string, error) {
	var userID string
	var expiresAt time.Time
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, expires_at FROM sessions WHERE token = ?`, token).
		Scan(&userID, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("scan session: %w", err)
	}
	if now.After(expiresAt) {
		return "", ErrNotFound
	}
	return userID, nil
}

func (r *SQLiteRepository) DeleteSession(ctx context.Context, token string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE token = ?`, token)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

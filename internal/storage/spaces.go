package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"splitwise/internal/core"
)

// Member pairs a membership with the user's display fields for listing.
type Member struct {
	Membership core.Membership
	User       core.User
}

// CreateSpace inserts the space and its creator's OWNER membership together.
func (r *SQLiteRepository) CreateSpace(ctx context.Context, space core.Space) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO spaces (id, name, base_currency, icon, created_by, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			space.ID, space.Name, string(space.BaseCurrency), space.Icon, space.CreatedBy, space.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert space: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO memberships (id, user_id, space_id, role, created_at)
			 VALUES (?, ?, ?, ?, ?)`,
			uuid.NewString(), space.CreatedBy, space.ID, string(core.RoleOwner), space.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert owner membership: %w", err)
		}
		return nil
	})
}

func (r *SQLiteRepository) GetSpace(ctx context.Context, id string) (core.Space, error) {
	var s core.Space
	var currency string
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, base_currency, icon, created_by, created_at
		 FROM spaces WHERE id = ?`, id).
		Scan(&s.ID, &s.Name, &currency, &s.Icon, &s.CreatedBy, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Space{}, ErrNotFound
	}
	if err != nil {
		return core.Space{}, fmt.Errorf("scan space: %w", err)
	}
	s.BaseCurrency = core.Currency(currency)
	return s, nil
}

func (r *SQLiteRepository) ListSpacesForUser(ctx context.Context, userID string) ([]core.Space, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT s.id, s.name, s.base_currency, s.icon, s.created_by, s.created_at
		 FROM spaces s
		 JOIN memberships m ON m.space_id = s.id
		 WHERE m.user_id = ?
		 ORDER BY s.created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("query spaces: %w", err)
	}
	defer rows.Close()

	var spaces []core.Space
	for rows.Next() {
		var s core.Space
		var currency string
		if err := rows.Scan(&s.ID, &s.Name, &currency, &s.Icon, &s.CreatedBy, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan space: %w", err)
		}
		s.BaseCurrency = core.Currency(currency)
		spaces = append(spaces, s)
	}
	return spaces, rows.Err()
}

// GetMembership returns the caller's membership in a space, the single check
// every space-scoped handler performs.
func (r *SQLiteRepository) GetMembership(ctx context.Context, userID, spaceID string) (core.Membership, error) {
	var m core.Membership
	var role string
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, space_id, role, created_at
		 FROM memberships WHERE user_id = ? AND space_id = ?`, userID, spaceID).
		Scan(&m.ID, &m.UserID, &m.SpaceID, &role, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Membership{}, ErrNotFound
	}
	if err != nil {
		return core.Membership{}, fmt.Errorf("scan membership: %w", err)
	}
	m.Role = core.Role(role)
	return m, nil
}

func (r *SQLiteRepository) ListMembers(ctx context.Context, spaceID string) ([]Member, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT m.id, m.user_id, m.space_id, m.role, m.created_at,
		        u.id, u.name, u.email, u.avatar_url, u.default_currency, u.created_at
		 FROM memberships m
		 JOIN users u ON u.id = m.user_id
		 WHERE m.space_id = ?
		 ORDER BY m.created_at`, spaceID)
	if err != nil {
		return nil, fmt.Errorf("query members: %w", err)
	}
	defer rows.Close()

	var members []Member
	for rows.Next() {
		var m Member
		var role, currency string
		err := rows.Scan(
			&m.Membership.ID, &m.Membership.UserID, &m.Membership.SpaceID, &role, &m.Membership.CreatedAt,
			&m.User.ID, &m.User.Name, &m.User.Email, &m.User.AvatarURL, &currency, &m.User.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		m.Membership.Role = core.Role(role)
		m.User.DefaultCurrency = core.Currency(currency)
		members = append(members, m)
	}
	return members, rows.Err()
}

// AddMember inserts a membership, treating a duplicate (user already in the
// space) as success so invite links can be clicked twice.
func (r *SQLiteRepository) AddMember(ctx context.Context, userID, spaceID string, role core.Role) (core.Membership, error) {
	existing, err := r.GetMembership(ctx, userID, spaceID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return core.Membership{}, err
	}

	m := core.Membership{
		ID:        uuid.NewString(),
		UserID:    userID,
		SpaceID:   spaceID,
		Role:      role,
		CreatedAt: time.Now().UTC(),
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO memberships (id, user_id, space_id, role, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		m.ID, m.UserID, m.SpaceID, string(m.Role), m.CreatedAt)
	if err != nil {
		return core.Membership{}, fmt.Errorf("insert membership: %w", err)
	}
	return m, nil
}

func (r *SQLiteRepository) CreateInvite(ctx context.Context, invite core.InviteToken) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO invite_tokens (token, space_id, role, created_by, expires_at)
		 VALUES (?, ?, ?, ?, ?)`,
		invite.Token, invite.SpaceID, string(invite.Role), invite.CreatedBy, invite.ExpiresAt)
	if err != nil {
		return fmt.Errorf("insert invite: %w", err)
	}
	return nil
}

// GetInvite returns a still-valid invite. Invites are reusable until they
// expire; joining does not consume them.
func (r *SQLiteRepository) GetInvite(ctx context.Context, token string, now time.Time) (core.InviteToken, error) {
	var inv core.InviteToken
	var role string
	err := r.db.QueryRowContext(ctx,
		`SELECT token, space_id, role, created_by, expires_at
		 FROM invite_tokens WHERE token = ?`, token).
		Scan(&inv.Token, &inv.SpaceID, &role, &inv.CreatedBy, &inv.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.InviteToken{}, ErrNotFound
	}
	if err != nil {
		return core.InviteToken{}, fmt.Errorf("scan invite: %w", err)
	}
	if now.After(inv.ExpiresAt) {
		return core.InviteToken{}, ErrNotFound
	}
	inv.Role = core.Role(role)
	return inv, nil
}

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"splitwise/internal/core"
)

// CreateSettlement records a settlement and its posting pair atomically.
func (r *SQLiteRepository) CreateSettlement(ctx context.Context, s core.Settlement, postings []core.Posting) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		idempotencyKey := sql.NullString{String: s.IdempotencyKey, Valid: s.IdempotencyKey != ""}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO settlements
			   (id, space_id, from_user_id, to_user_id, amount_minor, method, note,
			    created_by, created_at, idempotency_key)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			s.ID, s.SpaceID, s.FromUserID, s.ToUserID, s.AmountMinor, s.Method, s.Note,
			s.CreatedBy, s.CreatedAt, idempotencyKey)
		if err != nil {
			return fmt.Errorf("insert settlement: %w", err)
		}
		return insertPostings(ctx, tx, postings)
	})
}

const settlementSelect = `
	SELECT id, space_id, from_user_id, to_user_id, amount_minor, method, note,
	       created_by, created_at, COALESCE(idempotency_key, '')
	FROM settlements`

func scanSettlement(row interface {
	Scan(dest ...any) error
}) (core.Settlement, error) {
	var s core.Settlement
	err := row.Scan(
		&s.ID, &s.SpaceID, &s.FromUserID, &s.ToUserID, &s.AmountMinor,
		&s.Method, &s.Note, &s.CreatedBy, &s.CreatedAt, &s.IdempotencyKey)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Settlement{}, ErrNotFound
	}
	if err != nil {
		return core.Settlement{}, fmt.Errorf("scan settlement: %w", err)
	}
	return s, nil
}

func (r *SQLiteRepository) GetSettlement(ctx context.Context, id string) (core.Settlement, error) {
	return scanSettlement(r.db.QueryRowContext(ctx, settlementSelect+` WHERE id = ?`, id))
}

// GetSettlementByIdempotencyKey finds a prior settlement recorded under the
// same key within the space, enabling replay-safe retries.
func (r *SQLiteRepository) GetSettlementByIdempotencyKey(ctx context.Context, spaceID, key string) (core.Settlement, error) {
	return scanSettlement(r.db.QueryRowContext(ctx,
		settlementSelect+` WHERE space_id = ? AND idempotency_key = ?`, spaceID, key))
}

func (r *SQLiteRepository) ListSettlements(ctx context.Context, spaceID string) ([]core.Settlement, error) {
	rows, err := r.db.QueryContext(ctx,
		settlementSelect+` WHERE space_id = ? ORDER BY created_at DESC`, spaceID)
	if err != nil {
		return nil, fmt.Errorf("query settlements: %w", err)
	}
	defer rows.Close()

	var settlements []core.Settlement
	for rows.Next() {
		s, err := scanSettlement(rows)
		if err != nil {
			return nil, err
		}
		settlements = append(settlements, s)
	}
	return settlements, rows.Err()
}

// ListUnexportedSettlements returns settlements not yet pushed to the
// activity sheet, oldest first.
func (r *SQLiteRepository) ListUnexportedSettlements(ctx context.Context, limit int) ([]core.Settlement, error) {
	rows, err := r.db.QueryContext(ctx,
		settlementSelect+` WHERE export_state = 0 ORDER BY created_at LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query unexported settlements: %w", err)
	}
	defer rows.Close()

	var settlements []core.Settlement
	for rows.Next() {
		s, err := scanSettlement(rows)
		if err != nil {
			return nil, err
		}
		settlements = append(settlements, s)
	}
	return settlements, rows.Err()
}

func (r *SQLiteRepository) MarkSettlementExported(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE settlements SET export_state = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark settlement exported: %w", err)
	}
	return nil
}

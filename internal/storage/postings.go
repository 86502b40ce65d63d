package storage

import (
	"context"
	"fmt"

	"splitwise/internal/core"
)

// ListPostings returns a space's full ledger, oldest first.
func (r *SQLiteRepository) ListPostings(ctx context.Context, spaceID string) ([]core.Posting, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, space_id, subject_id, user_id, amount_minor, currency, created_at
		 FROM postings WHERE space_id = ? ORDER BY created_at, id`, spaceID)
	if err != nil {
		return nil, fmt.Errorf("query postings: %w", err)
	}
	defer rows.Close()

	var postings []core.Posting
	for rows.Next() {
		var p core.Posting
		var currency string
		err := rows.Scan(&p.ID, &p.SpaceID, &p.SubjectID, &p.UserID, &p.AmountMinor, &currency, &p.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan posting: %w", err)
		}
		p.Currency = core.Currency(currency)
		postings = append(postings, p)
	}
	return postings, rows.Err()
}

// ListPostingsBySubject returns the posting set of a single expense or
// settlement.
func (r *SQLiteRepository) ListPostingsBySubject(ctx context.Context, subjectID string) ([]core.Posting, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, space_id, subject_id, user_id, amount_minor, currency, created_at
		 FROM postings WHERE subject_id = ? ORDER BY created_at, id`, subjectID)
	if err != nil {
		return nil, fmt.Errorf("query postings by subject: %w", err)
	}
	defer rows.Close()

	var postings []core.Posting
	for rows.Next() {
		var p core.Posting
		var currency string
		err := rows.Scan(&p.ID, &p.SpaceID, &p.SubjectID, &p.UserID, &p.AmountMinor, &currency, &p.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan posting: %w", err)
		}
		p.Currency = core.Currency(currency)
		postings = append(postings, p)
	}
	return postings, rows.Err()
}

// Balances nets each user's postings within a space, sorted by user ID.
// Positive means owed to the user, so each row is the negated posting sum;
// all rows together always total zero.
func (r *SQLiteRepository) Balances(ctx context.Context, spaceID string) ([]core.Balance, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id, -SUM(amount_minor)
		 FROM postings WHERE space_id = ?
		 GROUP BY user_id ORDER BY user_id`, spaceID)
	if err != nil {
		return nil, fmt.Errorf("query balances: %w", err)
	}
	defer rows.Close()

	var balances []core.Balance
	for rows.Next() {
		var b core.Balance
		if err := rows.Scan(&b.UserID, &b.NetMinor); err != nil {
			return nil, fmt.Errorf("scan balance: %w", err)
		}
		balances = append(balances, b)
	}
	return balances, rows.Err()
}

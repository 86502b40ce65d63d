package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"splitwise/internal/core"
)

// ExpenseRecord joins an expense with its current revision, the shape every
// read path wants.
type ExpenseRecord struct {
	Expense  core.Expense
	Revision core.ExpenseRevision
	Deleted  bool
}

// insertPostings writes one event's posting set inside the caller's
// transaction. The set must sum to zero.
func insertPostings(ctx context.Context, tx *sql.Tx, postings []core.Posting) error {
	var sum int64
	for _, p := range postings {
		sum += p.AmountMinor
	}
	if sum != 0 {
		return fmt.Errorf("%w: sum %d", ErrUnbalancedEvent, sum)
	}

	for _, p := range postings {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO postings (id, space_id, subject_id, user_id, amount_minor, currency, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			p.ID, p.SpaceID, p.SubjectID, p.UserID, p.AmountMinor, string(p.Currency), p.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert posting: %w", err)
		}
	}
	return nil
}

func insertRevision(ctx context.Context, tx *sql.Tx, rev core.ExpenseRevision) error {
	policyName, params, err := marshalPolicy(rev.Policy)
	if err != nil {
		return err
	}
	participants, err := marshalParticipants(rev.Participants)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO expense_revisions
		   (id, expense_id, revision, created_by, created_at, payer_id, note, category,
		    expense_date, native_amount_minor, native_currency, fx_rate_micros,
		    base_amount_minor, split_policy, policy_params, participants)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rev.ID, rev.ExpenseID, rev.Revision, rev.CreatedBy, rev.CreatedAt,
		rev.PayerID, rev.Note, rev.Category, rev.Date,
		rev.NativeAmountMinor, string(rev.NativeCurrency), rev.FxRateMicrosToBase,
		rev.BaseAmountMinor, policyName, params, participants)
	if err != nil {
		return fmt.Errorf("insert expense revision: %w", err)
	}
	return nil
}

// CreateExpense records a new expense, its first revision, and its posting
// set as one atomic write.
func (r *SQLiteRepository) CreateExpense(ctx context.Context, expense core.Expense, rev core.ExpenseRevision, postings []core.Posting) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO expenses (id, space_id, current_revision_id, created_at)
			 VALUES (?, ?, ?, ?)`,
			expense.ID, expense.SpaceID, rev.ID, expense.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert expense: %w", err)
		}
		if err := insertRevision(ctx, tx, rev); err != nil {
			return err
		}
		return insertPostings(ctx, tx, postings)
	})
}

// ReviseExpense appends a revision and swaps the expense's postings for the
// new set atomically. A reader either sees the old revision with the old
// postings or the new revision with the new ones, never a mix. The expense is
// queued for export again.
func (r *SQLiteRepository) ReviseExpense(ctx context.Context, rev core.ExpenseRevision, postings []core.Posting) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		if err := insertRevision(ctx, tx, rev); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE expenses SET current_revision_id = ?, export_state = 0
			 WHERE id = ? AND deleted_at IS NULL`,
			rev.ID, rev.ExpenseID)
		if err != nil {
			return fmt.Errorf("update expense revision pointer: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM postings WHERE subject_id = ?`, rev.ExpenseID); err != nil {
			return fmt.Errorf("delete superseded postings: %w", err)
		}
		return insertPostings(ctx, tx, postings)
	})
}

// SoftDeleteExpense marks the expense deleted and removes its postings so it
// no longer affects balances. Its revision history stays readable.
func (r *SQLiteRepository) SoftDeleteExpense(ctx context.Context, expenseID string, now time.Time) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE expenses SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`,
			now, expenseID)
		if err != nil {
			return fmt.Errorf("mark expense deleted: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM postings WHERE subject_id = ?`, expenseID); err != nil {
			return fmt.Errorf("delete postings: %w", err)
		}
		return nil
	})
}

const expenseSelect = `
	SELECT e.id, e.space_id, e.current_revision_id, e.created_at, e.deleted_at,
	       r.id, r.expense_id, r.revision, r.created_by, r.created_at,
	       r.payer_id, r.note, r.category, r.expense_date,
	       r.native_amount_minor, r.native_currency, r.fx_rate_micros,
	       r.base_amount_minor, r.split_policy, r.policy_params, r.participants
	FROM expenses e
	JOIN expense_revisions r ON r.id = e.current_revision_id`

func scanExpenseRecord(row interface {
	Scan(dest ...any) error
}) (ExpenseRecord, error) {
	var rec ExpenseRecord
	var deletedAt sql.NullTime
	var currency, policyName, params, participants string
	err := row.Scan(
		&rec.Expense.ID, &rec.Expense.SpaceID, &rec.Expense.CurrentRevisionID,
		&rec.Expense.CreatedAt, &deletedAt,
		&rec.Revision.ID, &rec.Revision.ExpenseID, &rec.Revision.Revision,
		&rec.Revision.CreatedBy, &rec.Revision.CreatedAt,
		&rec.Revision.PayerID, &rec.Revision.Note, &rec.Revision.Category, &rec.Revision.Date,
		&rec.Revision.NativeAmountMinor, &currency, &rec.Revision.FxRateMicrosToBase,
		&rec.Revision.BaseAmountMinor, &policyName, &params, &participants)
	if errors.Is(err, sql.ErrNoRows) {
		return ExpenseRecord{}, ErrNotFound
	}
	if err != nil {
		return ExpenseRecord{}, fmt.Errorf("scan expense: %w", err)
	}

	rec.Deleted = deletedAt.Valid
	rec.Revision.NativeCurrency = core.Currency(currency)
	if rec.Revision.Policy, err = unmarshalPolicy(policyName, params); err != nil {
		return ExpenseRecord{}, err
	}
	if rec.Revision.Participants, err = unmarshalParticipants(participants); err != nil {
		return ExpenseRecord{}, err
	}
	return rec, nil
}

func (r *SQLiteRepository) GetExpense(ctx context.Context, id string) (ExpenseRecord, error) {
	return scanExpenseRecord(r.db.QueryRowContext(ctx, expenseSelect+` WHERE e.id = ?`, id))
}

// ListExpenses returns a space's live expenses, newest first.
func (r *SQLiteRepository) ListExpenses(ctx context.Context, spaceID string) ([]ExpenseRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		expenseSelect+` WHERE e.space_id = ? AND e.deleted_at IS NULL
		ORDER BY r.expense_date DESC, e.created_at DESC`, spaceID)
	if err != nil {
		return nil, fmt.Errorf("query expenses: %w", err)
	}
	defer rows.Close()

	var records []ExpenseRecord
	for rows.Next() {
		rec, err := scanExpenseRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// ListExpenseRevisions returns an expense's full history, oldest first.
func (r *SQLiteRepository) ListExpenseRevisions(ctx context.Context, expenseID string) ([]core.ExpenseRevision, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, expense_id, revision, created_by, created_at, payer_id, note, category,
		        expense_date, native_amount_minor, native_currency, fx_rate_micros,
		        base_amount_minor, split_policy, policy_params, participants
		 FROM expense_revisions WHERE expense_id = ? ORDER BY revision`, expenseID)
	if err != nil {
		return nil, fmt.Errorf("query expense revisions: %w", err)
	}
	defer rows.Close()

	var revisions []core.ExpenseRevision
	for rows.Next() {
		var rev core.ExpenseRevision
		var currency, policyName, params, participants string
		err := rows.Scan(
			&rev.ID, &rev.ExpenseID, &rev.Revision, &rev.CreatedBy, &rev.CreatedAt,
			&rev.PayerID, &rev.Note, &rev.Category, &rev.Date,
			&rev.NativeAmountMinor, &currency, &rev.FxRateMicrosToBase,
			&rev.BaseAmountMinor, &policyName, &params, &participants)
		if err != nil {
			return nil, fmt.Errorf("scan expense revision: %w", err)
		}
		rev.NativeCurrency = core.Currency(currency)
		if rev.Policy, err = unmarshalPolicy(policyName, params); err != nil {
			return nil, err
		}
		if rev.Participants, err = unmarshalParticipants(participants); err != nil {
			return nil, err
		}
		revisions = append(revisions, rev)
	}
	return revisions, rows.Err()
}

// ListUnexportedExpenses returns live expenses not yet pushed to the activity
// sheet, oldest first so the export worker drains in order.
func (r *SQLiteRepository) ListUnexportedExpenses(ctx context.Context, limit int) ([]ExpenseRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		expenseSelect+` WHERE e.export_state = 0 AND e.deleted_at IS NULL
		ORDER BY e.created_at LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query unexported expenses: %w", err)
	}
	defer rows.Close()

	var records []ExpenseRecord
	for rows.Next() {
		rec, err := scanExpenseRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (r *SQLiteRepository) MarkExpenseExported(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE expenses SET export_state = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark expense exported: %w", err)
	}
	return nil
}

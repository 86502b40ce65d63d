package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"splitwise/internal/core"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func seedSpace(t *testing.T, repo *SQLiteRepository) (core.Space, core.User, core.User) {
	t.Helper()
	ctx := context.Background()

	alice, err := repo.GetOrCreateUserByEmail(ctx, "alice@example.com", "Alice")
	if err != nil {
		t.Fatalf("create alice: %v", err)
	}
	bob, err := repo.GetOrCreateUserByEmail(ctx, "bob@example.com", "Bob")
	if err != nil {
		t.Fatalf("create bob: %v", err)
	}

	space := core.Space{
		ID:           uuid.NewString(),
		Name:         "Trip",
		BaseCurrency: core.USD,
		CreatedBy:    alice.ID,
		CreatedAt:    time.Now().UTC(),
	}
	if err := repo.CreateSpace(ctx, space); err != nil {
		t.Fatalf("CreateSpace: %v", err)
	}
	if _, err := repo.AddMember(ctx, bob.ID, space.ID, core.RoleEditor); err != nil {
		t.Fatalf("AddMember: %v", err)
	}
	return space, alice, bob
}

func testRevision(expenseID string, payerID string, participants []string, totalMinor int64) core.ExpenseRevision {
	return core.ExpenseRevision{
		ID:                 uuid.NewString(),
		ExpenseID:          expenseID,
		Revision:           1,
		CreatedBy:          payerID,
		CreatedAt:          time.Now().UTC(),
		PayerID:            payerID,
		Note:               "groceries",
		Date:               time.Now().UTC(),
		NativeAmountMinor:  totalMinor,
		NativeCurrency:     core.USD,
		FxRateMicrosToBase: 1_000_000,
		BaseAmountMinor:    totalMinor,
		Policy:             core.EqualSplit{},
		Participants:       participants,
	}
}

func expensePostings(space core.Space, expenseID, payerID string, shares []core.Share) []core.Posting {
	now := time.Now().UTC()
	postings := []core.Posting{{
		ID:          uuid.NewString(),
		SpaceID:     space.ID,
		SubjectID:   expenseID,
		UserID:      payerID,
		AmountMinor: -core.SumShares(shares),
		Currency:    space.BaseCurrency,
		CreatedAt:   now,
	}}
	for _, s := range shares {
		postings = append(postings, core.Posting{
			ID:          uuid.NewString(),
			SpaceID:     space.ID,
			SubjectID:   expenseID,
			UserID:      s.UserID,
			AmountMinor: s.AmountMinor,
			Currency:    space.BaseCurrency,
			CreatedAt:   now,
		})
	}
	return postings
}

func TestCreateExpenseRecordsBalancedLedger(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	space, alice, bob := seedSpace(t, repo)

	expenseID := uuid.NewString()
	rev := testRevision(expenseID, alice.ID, []string{alice.ID, bob.ID}, 1000)
	shares, err := core.CalculateSplit(1000, rev.Policy, rev.Participants)
	if err != nil {
		t.Fatalf("CalculateSplit: %v", err)
	}

	expense := core.Expense{ID: expenseID, SpaceID: space.ID, CreatedAt: time.Now().UTC()}
	if err := repo.CreateExpense(ctx, expense, rev, expensePostings(space, expenseID, alice.ID, shares)); err != nil {
		t.Fatalf("CreateExpense: %v", err)
	}

	balances, err := repo.Balances(ctx, space.ID)
	if err != nil {
		t.Fatalf("Balances: %v", err)
	}
	if len(balances) != 2 {
		t.Fatalf("got %d balances, want 2", len(balances))
	}
	var total int64
	byUser := map[string]int64{}
	for _, b := range balances {
		total += b.NetMinor
		byUser[b.UserID] = b.NetMinor
	}
	if total != 0 {
		t.Fatalf("balances sum to %d, want 0", total)
	}
	// The payer's leg offsets the shares: alice paid 1000 for a 500 share,
	// so she is owed 500 and bob owes his 500.
	if byUser[alice.ID] != 500 || byUser[bob.ID] != -500 {
		t.Fatalf("balances = %v, want alice +500, bob -500", byUser)
	}

	rec, err := repo.GetExpense(ctx, expenseID)
	if err != nil {
		t.Fatalf("GetExpense: %v", err)
	}
	if rec.Revision.Policy.Name() != core.PolicyEqual {
		t.Fatalf("policy round-trip = %q, want equal", rec.Revision.Policy.Name())
	}
	if len(rec.Revision.Participants) != 2 {
		t.Fatalf("participants round-trip = %v", rec.Revision.Participants)
	}
}

func TestCreateExpenseRejectsUnbalancedPostings(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	space, alice, bob := seedSpace(t, repo)

	expenseID := uuid.NewString()
	rev := testRevision(expenseID, alice.ID, []string{alice.ID, bob.ID}, 1000)
	postings := expensePostings(space, expenseID, alice.ID, []core.Share{
		{UserID: alice.ID, AmountMinor: 500},
		{UserID: bob.ID, AmountMinor: 500},
	})
	postings[0].AmountMinor = -999 // payer leg no longer offsets the shares

	expense := core.Expense{ID: expenseID, SpaceID: space.ID, CreatedAt: time.Now().UTC()}
	err := repo.CreateExpense(ctx, expense, rev, postings)
	if !errors.Is(err, ErrUnbalancedEvent) {
		t.Fatalf("err = %v, want ErrUnbalancedEvent", err)
	}

	// The rejected transaction must leave nothing behind.
	if _, err := repo.GetExpense(ctx, expenseID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expense visible after failed insert: %v", err)
	}
	if balances, _ := repo.Balances(ctx, space.ID); len(balances) != 0 {
		t.Fatalf("postings visible after failed insert: %v", balances)
	}
}

func TestReviseExpenseSwapsPostingsAtomically(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	space, alice, bob := seedSpace(t, repo)

	expenseID := uuid.NewString()
	rev1 := testRevision(expenseID, alice.ID, []string{alice.ID, bob.ID}, 1000)
	shares1, _ := core.CalculateSplit(1000, core.EqualSplit{}, rev1.Participants)
	expense := core.Expense{ID: expenseID, SpaceID: space.ID, CreatedAt: time.Now().UTC()}
	if err := repo.CreateExpense(ctx, expense, rev1, expensePostings(space, expenseID, alice.ID, shares1)); err != nil {
		t.Fatalf("CreateExpense: %v", err)
	}

	rev2 := testRevision(expenseID, alice.ID, []string{alice.ID, bob.ID}, 3000)
	rev2.Revision = 2
	shares2, _ := core.CalculateSplit(3000, core.EqualSplit{}, rev2.Participants)
	if err := repo.ReviseExpense(ctx, rev2, expensePostings(space, expenseID, alice.ID, shares2)); err != nil {
		t.Fatalf("ReviseExpense: %v", err)
	}

	rec, err := repo.GetExpense(ctx, expenseID)
	if err != nil {
		t.Fatalf("GetExpense: %v", err)
	}
	if rec.Expense.CurrentRevisionID != rev2.ID {
		t.Fatalf("current revision = %s, want %s", rec.Expense.CurrentRevisionID, rev2.ID)
	}

	postings, err := repo.ListPostingsBySubject(ctx, expenseID)
	if err != nil {
		t.Fatalf("ListPostingsBySubject: %v", err)
	}
	if len(postings) != 3 {
		t.Fatalf("got %d postings, want 3 (old set must be gone)", len(postings))
	}

	balances, _ := repo.Balances(ctx, space.ID)
	byUser := map[string]int64{}
	for _, b := range balances {
		byUser[b.UserID] = b.NetMinor
	}
	if byUser[bob.ID] != -1500 {
		t.Fatalf("bob's net is %d after revision, want -1500 (owes 1500)", byUser[bob.ID])
	}

	revisions, err := repo.ListExpenseRevisions(ctx, expenseID)
	if err != nil {
		t.Fatalf("ListExpenseRevisions: %v", err)
	}
	if len(revisions) != 2 {
		t.Fatalf("got %d revisions, want 2", len(revisions))
	}
}

func TestSoftDeleteExpenseRemovesPostings(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	space, alice, bob := seedSpace(t, repo)

	expenseID := uuid.NewString()
	rev := testRevision(expenseID, alice.ID, []string{alice.ID, bob.ID}, 1000)
	shares, _ := core.CalculateSplit(1000, core.EqualSplit{}, rev.Participants)
	expense := core.Expense{ID: expenseID, SpaceID: space.ID, CreatedAt: time.Now().UTC()}
	if err := repo.CreateExpense(ctx, expense, rev, expensePostings(space, expenseID, alice.ID, shares)); err != nil {
		t.Fatalf("CreateExpense: %v", err)
	}

	if err := repo.SoftDeleteExpense(ctx, expenseID, time.Now().UTC()); err != nil {
		t.Fatalf("SoftDeleteExpense: %v", err)
	}

	if balances, _ := repo.Balances(ctx, space.ID); len(balances) != 0 {
		t.Fatalf("balances after delete = %v, want none", balances)
	}
	if list, _ := repo.ListExpenses(ctx, space.ID); len(list) != 0 {
		t.Fatalf("deleted expense still listed")
	}
	// History stays readable for the record.
	if revisions, _ := repo.ListExpenseRevisions(ctx, expenseID); len(revisions) != 1 {
		t.Fatalf("revision history lost on delete")
	}

	if err := repo.SoftDeleteExpense(ctx, expenseID, time.Now().UTC()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete = %v, want ErrNotFound", err)
	}
}

func TestSettlementIdempotencyKeyLookup(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	space, alice, bob := seedSpace(t, repo)

	s := core.Settlement{
		ID:             uuid.NewString(),
		SpaceID:        space.ID,
		FromUserID:     bob.ID,
		ToUserID:       alice.ID,
		AmountMinor:    500,
		CreatedBy:      bob.ID,
		CreatedAt:      time.Now().UTC(),
		IdempotencyKey: "retry-1",
	}
	now := time.Now().UTC()
	postings := []core.Posting{
		{ID: uuid.NewString(), SpaceID: space.ID, SubjectID: s.ID, UserID: bob.ID, AmountMinor: -500, Currency: core.USD, CreatedAt: now},
		{ID: uuid.NewString(), SpaceID: space.ID, SubjectID: s.ID, UserID: alice.ID, AmountMinor: 500, Currency: core.USD, CreatedAt: now},
	}
	if err := repo.CreateSettlement(ctx, s, postings); err != nil {
		t.Fatalf("CreateSettlement: %v", err)
	}

	got, err := repo.GetSettlementByIdempotencyKey(ctx, space.ID, "retry-1")
	if err != nil {
		t.Fatalf("GetSettlementByIdempotencyKey: %v", err)
	}
	if got.ID != s.ID {
		t.Fatalf("lookup returned %s, want %s", got.ID, s.ID)
	}

	if _, err := repo.GetSettlementByIdempotencyKey(ctx, space.ID, "never-used"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown key = %v, want ErrNotFound", err)
	}
}

func TestMagicLinkConsumedOnce(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	_, alice, _ := seedSpace(t, repo)

	now := time.Now().UTC()
	if err := repo.CreateMagicLink(ctx, "tok-1", alice.ID, now.Add(15*time.Minute)); err != nil {
		t.Fatalf("CreateMagicLink: %v", err)
	}

	userID, err := repo.ConsumeMagicLink(ctx, "tok-1", now)
	if err != nil {
		t.Fatalf("ConsumeMagicLink: %v", err)
	}
	if userID != alice.ID {
		t.Fatalf("consumed user = %s, want %s", userID, alice.ID)
	}

	if _, err := repo.ConsumeMagicLink(ctx, "tok-1", now); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second consume = %v, want ErrNotFound", err)
	}
}

func TestExpiredMagicLinkRejectedAndBurned(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	_, alice, _ := seedSpace(t, repo)

	now := time.Now().UTC()
	if err := repo.CreateMagicLink(ctx, "tok-old", alice.ID, now.Add(-time.Minute)); err != nil {
		t.Fatalf("CreateMagicLink: %v", err)
	}
	if _, err := repo.ConsumeMagicLink(ctx, "tok-old", now); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expired consume = %v, want ErrNotFound", err)
	}
}

func TestInviteExpiry(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	space, alice, _ := seedSpace(t, repo)

	now := time.Now().UTC()
	invite := core.InviteToken{
		Token:     "inv-1",
		SpaceID:   space.ID,
		Role:      core.RoleEditor,
		CreatedBy: alice.ID,
		ExpiresAt: now.Add(time.Hour),
	}
	if err := repo.CreateInvite(ctx, invite); err != nil {
		t.Fatalf("CreateInvite: %v", err)
	}

	got, err := repo.GetInvite(ctx, "inv-1", now)
	if err != nil {
		t.Fatalf("GetInvite: %v", err)
	}
	if got.Role != core.RoleEditor {
		t.Fatalf("invite role = %s, want EDITOR", got.Role)
	}

	if _, err := repo.GetInvite(ctx, "inv-1", now.Add(2*time.Hour)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expired invite = %v, want ErrNotFound", err)
	}
}

func TestAddMemberIsIdempotent(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	space, _, bob := seedSpace(t, repo)

	first, err := repo.GetMembership(ctx, bob.ID, space.ID)
	if err != nil {
		t.Fatalf("GetMembership: %v", err)
	}
	again, err := repo.AddMember(ctx, bob.ID, space.ID, core.RoleViewer)
	if err != nil {
		t.Fatalf("AddMember twice: %v", err)
	}
	if again.ID != first.ID || again.Role != first.Role {
		t.Fatalf("repeat join changed membership: %+v vs %+v", again, first)
	}

	members, err := repo.ListMembers(ctx, space.ID)
	if err != nil {
		t.Fatalf("ListMembers: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("got %d members, want 2", len(members))
	}
}

func TestUnexportedQueues(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	space, alice, bob := seedSpace(t, repo)

	expenseID := uuid.NewString()
	rev := testRevision(expenseID, alice.ID, []string{alice.ID, bob.ID}, 1000)
	shares, _ := core.CalculateSplit(1000, core.EqualSplit{}, rev.Participants)
	expense := core.Expense{ID: expenseID, SpaceID: space.ID, CreatedAt: time.Now().UTC()}
	if err := repo.CreateExpense(ctx, expense, rev, expensePostings(space, expenseID, alice.ID, shares)); err != nil {
		t.Fatalf("CreateExpense: %v", err)
	}

	pending, err := repo.ListUnexportedExpenses(ctx, 10)
	if err != nil {
		t.Fatalf("ListUnexportedExpenses: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("got %d pending expenses, want 1", len(pending))
	}

	if err := repo.MarkExpenseExported(ctx, expenseID); err != nil {
		t.Fatalf("MarkExpenseExported: %v", err)
	}
	if pending, _ = repo.ListUnexportedExpenses(ctx, 10); len(pending) != 0 {
		t.Fatalf("exported expense still pending")
	}

	// A revision re-queues the expense.
	rev2 := testRevision(expenseID, alice.ID, []string{alice.ID, bob.ID}, 2000)
	rev2.Revision = 2
	shares2, _ := core.CalculateSplit(2000, core.EqualSplit{}, rev2.Participants)
	if err := repo.ReviseExpense(ctx, rev2, expensePostings(space, expenseID, alice.ID, shares2)); err != nil {
		t.Fatalf("ReviseExpense: %v", err)
	}
	if pending, _ = repo.ListUnexportedExpenses(ctx, 10); len(pending) != 1 {
		t.Fatalf("revised expense not re-queued for export")
	}
}

func TestNewSQLiteRepositoryReopensExistingDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")

	repo, err := NewSQLiteRepository(path)
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	alice, err := repo.GetOrCreateUserByEmail(context.Background(), "alice@example.com", "Alice")
	if err != nil {
		t.Fatalf("create alice: %v", err)
	}
	if err := repo.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Reopening applies no migrations and keeps existing data.
	again, err := NewSQLiteRepository(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer again.Close()

	got, err := again.GetUser(context.Background(), alice.ID)
	if err != nil {
		t.Fatalf("GetUser after reopen: %v", err)
	}
	if got.Email != "alice@example.com" {
		t.Fatalf("email after reopen = %q", got.Email)
	}
}

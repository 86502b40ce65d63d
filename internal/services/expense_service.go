// Package services orchestrates ledger operations across storage, fx, and
// the event queue. Writes commit to SQLite first; queue publishes are best
// effort and never fail the request.
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"splitwise/internal/amqp"
	"splitwise/internal/core"
	"splitwise/internal/log"
	"splitwise/internal/storage"
)

// EventPublisher is the slice of the AMQP client the services need.
// A nil publisher disables event publishing.
type EventPublisher interface {
	PublishLedgerEvent(ctx context.Context, msg *amqp.LedgerEventMessage) error
}

// ExpenseInput carries the caller-supplied fields of an expense create or
// revise request.
type ExpenseInput struct {
	SpaceID           string
	ActorID           string
	PayerID           string
	Note              string
	Category          string
	Date              time.Time
	NativeAmountMinor int64
	NativeCurrency    core.Currency
	Policy            core.SplitPolicy
	Participants      []string
}

type ExpenseService struct {
	storage *storage.SQLiteRepository
	fx      *FxService
	events  EventPublisher
	logger  *log.Logger
}

func NewExpenseService(repo *storage.SQLiteRepository, fx *FxService, events EventPublisher, logger *log.Logger) *ExpenseService {
	return &ExpenseService{
		storage: repo,
		fx:      fx,
		events:  events,
		logger:  logger.WithComponent(log.ComponentLedger),
	}
}

// buildRevision converts the input into a revision with the fx rate and base
// amount captured, and its participants checked against the space roster.
func (s *ExpenseService) buildRevision(ctx context.Context, input ExpenseInput, expenseID string, revision int64) (core.ExpenseRevision, core.Space, error) {
	space, err := s.storage.GetSpace(ctx, input.SpaceID)
	if err != nil {
		return core.ExpenseRevision{}, core.Space{}, fmt.Errorf("load space: %w", err)
	}

	members, err := s.storage.ListMembers(ctx, input.SpaceID)
	if err != nil {
		return core.ExpenseRevision{}, core.Space{}, fmt.Errorf("list members: %w", err)
	}
	roster := make(map[string]bool, len(members))
	for _, m := range members {
		roster[m.User.ID] = true
	}
	if !roster[input.PayerID] {
		return core.ExpenseRevision{}, core.Space{}, fmt.Errorf("payer %s is not a member of the space", input.PayerID)
	}
	for _, uid := range input.Participants {
		if !roster[uid] {
			return core.ExpenseRevision{}, core.Space{}, fmt.Errorf("participant %s is not a member of the space", uid)
		}
	}

	rateMicros, err := s.fx.RateMicros(input.NativeCurrency, space.BaseCurrency)
	if err != nil {
		return core.ExpenseRevision{}, core.Space{}, fmt.Errorf("fx rate: %w", err)
	}

	rev := core.ExpenseRevision{
		ID:                 uuid.NewString(),
		ExpenseID:          expenseID,
		Revision:           revision,
		CreatedBy:          input.ActorID,
		CreatedAt:          time.Now().UTC(),
		PayerID:            input.PayerID,
		Note:               input.Note,
		Category:           input.Category,
		Date:               input.Date,
		NativeAmountMinor:  input.NativeAmountMinor,
		NativeCurrency:     input.NativeCurrency,
		FxRateMicrosToBase: rateMicros,
		Policy:             input.Policy,
		Participants:       input.Participants,
	}
	if err := rev.Validate(); err != nil {
		return core.ExpenseRevision{}, core.Space{}, err
	}
	rev.BaseAmountMinor = rev.BaseAmount()
	return rev, space, nil
}

// expensePostings builds the double-entry set for one revision: one negative
// leg crediting the payer for the whole amount, one positive leg per
// participant share.
func expensePostings(space core.Space, rev core.ExpenseRevision, shares []core.Share) []core.Posting {
	now := time.Now().UTC()
	postings := make([]core.Posting, 0, len(shares)+1)
	postings = append(postings, core.Posting{
		ID:          uuid.NewString(),
		SpaceID:     space.ID,
		SubjectID:   rev.ExpenseID,
		UserID:      rev.PayerID,
		AmountMinor: -core.SumShares(shares),
		Currency:    space.BaseCurrency,
		CreatedAt:   now,
	})
	for _, share := range shares {
		postings = append(postings, core.Posting{
			ID:          uuid.NewString(),
			SpaceID:     space.ID,
			SubjectID:   rev.ExpenseID,
			UserID:      share.UserID,
			AmountMinor: share.AmountMinor,
			Currency:    space.BaseCurrency,
			CreatedAt:   now,
		})
	}
	return postings
}

// CreateExpense records a new expense with its first revision and posting
// set, then publishes a ledger event.
func (s *ExpenseService) CreateExpense(ctx context.Context, input ExpenseInput) (storage.ExpenseRecord, error) {
	expenseID := uuid.NewString()
	rev, space, err := s.buildRevision(ctx, input, expenseID, 1)
	if err != nil {
		return storage.ExpenseRecord{}, err
	}

	shares, err := core.CalculateSplit(rev.BaseAmountMinor, rev.Policy, rev.Participants)
	if err != nil {
		return storage.ExpenseRecord{}, fmt.Errorf("calculate split: %w", err)
	}

	expense := core.Expense{
		ID:                expenseID,
		SpaceID:           space.ID,
		CurrentRevisionID: rev.ID,
		CreatedAt:         rev.CreatedAt,
	}
	if err := s.storage.CreateExpense(ctx, expense, rev, expensePostings(space, rev, shares)); err != nil {
		return storage.ExpenseRecord{}, fmt.Errorf("persist expense: %w", err)
	}

	s.logger.InfoContext(ctx, "Expense recorded",
		log.FieldExpenseID, expenseID,
		log.FieldSpaceID, space.ID,
		log.FieldAmountMinor, rev.BaseAmountMinor,
		log.FieldSplitPolicy, rev.Policy.Name())

	s.publish(ctx, amqp.NewLedgerEventMessage(amqp.KindExpense, expenseID, space.ID, rev.Revision))
	return storage.ExpenseRecord{Expense: expense, Revision: rev}, nil
}

// ReviseExpense appends a new revision and atomically replaces the expense's
// postings with the recomputed set.
func (s *ExpenseService) ReviseExpense(ctx context.Context, expenseID string, input ExpenseInput) (storage.ExpenseRecord, error) {
	current, err := s.storage.GetExpense(ctx, expenseID)
	if err != nil {
		return storage.ExpenseRecord{}, err
	}
	if current.Deleted {
		return storage.ExpenseRecord{}, storage.ErrNotFound
	}
	if current.Expense.SpaceID != input.SpaceID {
		return storage.ExpenseRecord{}, storage.ErrNotFound
	}

	rev, space, err := s.buildRevision(ctx, input, expenseID, current.Revision.Revision+1)
	if err != nil {
		return storage.ExpenseRecord{}, err
	}

	shares, err := core.CalculateSplit(rev.BaseAmountMinor, rev.Policy, rev.Participants)
	if err != nil {
		return storage.ExpenseRecord{}, fmt.Errorf("calculate split: %w", err)
	}

	if err := s.storage.ReviseExpense(ctx, rev, expensePostings(space, rev, shares)); err != nil {
		return storage.ExpenseRecord{}, fmt.Errorf("persist revision: %w", err)
	}

	s.logger.InfoContext(ctx, "Expense revised",
		log.FieldExpenseID, expenseID,
		log.FieldSpaceID, space.ID,
		log.FieldRevision, rev.Revision,
		log.FieldAmountMinor, rev.BaseAmountMinor)

	s.publish(ctx, amqp.NewLedgerEventMessage(amqp.KindExpense, expenseID, space.ID, rev.Revision))

	current.Expense.CurrentRevisionID = rev.ID
	return storage.ExpenseRecord{Expense: current.Expense, Revision: rev}, nil
}

// DeleteExpense soft deletes an expense and drops its postings from the
// ledger.
func (s *ExpenseService) DeleteExpense(ctx context.Context, spaceID, expenseID string) error {
	current, err := s.storage.GetExpense(ctx, expenseID)
	if err != nil {
		return err
	}
	if current.Deleted || current.Expense.SpaceID != spaceID {
		return storage.ErrNotFound
	}

	if err := s.storage.SoftDeleteExpense(ctx, expenseID, time.Now().UTC()); err != nil {
		return fmt.Errorf("soft delete expense: %w", err)
	}

	s.logger.InfoContext(ctx, "Expense deleted",
		log.FieldExpenseID, expenseID,
		log.FieldSpaceID, spaceID)

	s.publish(ctx, amqp.NewLedgerEventMessage(amqp.KindExpenseDeleted, expenseID, spaceID, current.Revision.Revision))
	return nil
}

func (s *ExpenseService) GetExpense(ctx context.Context, spaceID, expenseID string) (storage.ExpenseRecord, error) {
	rec, err := s.storage.GetExpense(ctx, expenseID)
	if err != nil {
		return storage.ExpenseRecord{}, err
	}
	if rec.Expense.SpaceID != spaceID {
		return storage.ExpenseRecord{}, storage.ErrNotFound
	}
	return rec, nil
}

func (s *ExpenseService) ListExpenses(ctx context.Context, spaceID string) ([]storage.ExpenseRecord, error) {
	return s.storage.ListExpenses(ctx, spaceID)
}

func (s *ExpenseService) ListRevisions(ctx context.Context, spaceID, expenseID string) ([]core.ExpenseRevision, error) {
	rec, err := s.storage.GetExpense(ctx, expenseID)
	if err != nil {
		return nil, err
	}
	if rec.Expense.SpaceID != spaceID {
		return nil, storage.ErrNotFound
	}
	return s.storage.ListExpenseRevisions(ctx, expenseID)
}

func (s *ExpenseService) publish(ctx context.Context, msg *amqp.LedgerEventMessage) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishLedgerEvent(ctx, msg); err != nil {
		// The write already committed; the worker's periodic catch-up
		// will pick the record up from export_state.
		s.logger.ErrorContext(ctx, "Failed to publish ledger event",
			log.FieldError, err,
			"kind", msg.Kind,
			"id", msg.ID)
	}
}

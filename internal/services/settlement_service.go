package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"splitwise/internal/amqp"
	"splitwise/internal/core"
	"splitwise/internal/log"
	"splitwise/internal/storage"
)

// SettlementInput carries the fields of a record-settlement request.
type SettlementInput struct {
	SpaceID        string
	ActorID        string
	FromUserID     string
	ToUserID       string
	AmountMinor    int64
	Method         string
	Note           string
	IdempotencyKey string
}

type SettlementService struct {
	storage *storage.SQLiteRepository
	events  EventPublisher
	logger  *log.Logger
}

func NewSettlementService(repo *storage.SQLiteRepository, events EventPublisher, logger *log.Logger) *SettlementService {
	return &SettlementService{
		storage: repo,
		events:  events,
		logger:  logger.WithComponent(log.ComponentSettlement),
	}
}

// RecordSettlement writes a settlement and its posting pair. When an
// idempotency key is supplied and was seen before, the stored settlement is
// returned unchanged and replayed reports true.
func (s *SettlementService) RecordSettlement(ctx context.Context, input SettlementInput) (settlement core.Settlement, replayed bool, err error) {
	if input.IdempotencyKey != "" {
		prior, err := s.storage.GetSettlementByIdempotencyKey(ctx, input.SpaceID, input.IdempotencyKey)
		if err == nil {
			return prior, true, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return core.Settlement{}, false, err
		}
	}

	space, err := s.storage.GetSpace(ctx, input.SpaceID)
	if err != nil {
		return core.Settlement{}, false, fmt.Errorf("load space: %w", err)
	}
	for _, uid := range []string{input.FromUserID, input.ToUserID} {
		if _, err := s.storage.GetMembership(ctx, uid, input.SpaceID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return core.Settlement{}, false, fmt.Errorf("user %s is not a member of the space", uid)
			}
			return core.Settlement{}, false, err
		}
	}

	settlement = core.Settlement{
		ID:             uuid.NewString(),
		SpaceID:        input.SpaceID,
		FromUserID:     input.FromUserID,
		ToUserID:       input.ToUserID,
		AmountMinor:    input.AmountMinor,
		Method:         input.Method,
		Note:           input.Note,
		CreatedBy:      input.ActorID,
		CreatedAt:      time.Now().UTC(),
		IdempotencyKey: input.IdempotencyKey,
	}
	if err := settlement.Validate(); err != nil {
		return core.Settlement{}, false, err
	}

	// Cash paid out is a negative leg for the payer; the recipient's
	// credit shrinks by the positive leg.
	now := settlement.CreatedAt
	postings := []core.Posting{
		{
			ID:          uuid.NewString(),
			SpaceID:     space.ID,
			SubjectID:   settlement.ID,
			UserID:      settlement.FromUserID,
			AmountMinor: -settlement.AmountMinor,
			Currency:    space.BaseCurrency,
			CreatedAt:   now,
		},
		{
			ID:          uuid.NewString(),
			SpaceID:     space.ID,
			SubjectID:   settlement.ID,
			UserID:      settlement.ToUserID,
			AmountMinor: settlement.AmountMinor,
			Currency:    space.BaseCurrency,
			CreatedAt:   now,
		},
	}

	if err := s.storage.CreateSettlement(ctx, settlement, postings); err != nil {
		// A concurrent retry may have won the idempotency-key race.
		if input.IdempotencyKey != "" && isUniqueViolation(err) {
			prior, lookupErr := s.storage.GetSettlementByIdempotencyKey(ctx, input.SpaceID, input.IdempotencyKey)
			if lookupErr == nil {
				return prior, true, nil
			}
		}
		return core.Settlement{}, false, fmt.Errorf("persist settlement: %w", err)
	}

	s.logger.InfoContext(ctx, "Settlement recorded",
		log.FieldSettlementID, settlement.ID,
		log.FieldSpaceID, settlement.SpaceID,
		log.FieldAmountMinor, settlement.AmountMinor)

	s.publish(ctx, amqp.NewLedgerEventMessage(amqp.KindSettlement, settlement.ID, settlement.SpaceID, 0))
	return settlement, false, nil
}

func (s *SettlementService) ListSettlements(ctx context.Context, spaceID string) ([]core.Settlement, error) {
	return s.storage.ListSettlements(ctx, spaceID)
}

func (s *SettlementService) publish(ctx context.Context, msg *amqp.LedgerEventMessage) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishLedgerEvent(ctx, msg); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish ledger event",
			log.FieldError, err,
			"kind", msg.Kind,
			"id", msg.ID)
	}
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

package services

import (
	"context"
	"time"

	"splitwise/internal/cache"
	"splitwise/internal/core"
	"splitwise/internal/log"
	"splitwise/internal/storage"
)

// BalanceService serves net balances and settle plans, caching balances per
// space. Writers must call Invalidate after touching a space's ledger.
type BalanceService struct {
	storage *storage.SQLiteRepository
	cache   *cache.LRUCache[[]core.Balance]
	logger  *log.Logger
}

func NewBalanceService(repo *storage.SQLiteRepository, logger *log.Logger) *BalanceService {
	return &BalanceService{
		storage: repo,
		cache:   cache.NewLRUCache[[]core.Balance](256, 5*time.Minute),
		logger:  logger.WithComponent(log.ComponentBalance),
	}
}

func (s *BalanceService) Balances(ctx context.Context, spaceID string) ([]core.Balance, error) {
	if cached, ok := s.cache.Get(spaceID); ok {
		return cached, nil
	}

	balances, err := s.storage.Balances(ctx, spaceID)
	if err != nil {
		return nil, err
	}
	s.cache.Set(spaceID, balances)
	return balances, nil
}

// SettlePlan computes the minimal transfer set that clears the space's
// current balances. The plan is advisory and never persisted.
func (s *BalanceService) SettlePlan(ctx context.Context, spaceID string) ([]core.Transfer, error) {
	balances, err := s.Balances(ctx, spaceID)
	if err != nil {
		return nil, err
	}
	return core.GenerateSettlePlan(balances), nil
}

// Invalidate drops a space's cached balances after a ledger write.
func (s *BalanceService) Invalidate(spaceID string) {
	s.cache.Delete(spaceID)
}

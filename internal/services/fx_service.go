package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"splitwise/internal/core"
)

// MicrosPerUnit is the fixed-point scale of fx rates: 1_000_000 means 1.0.
const MicrosPerUnit int64 = 1_000_000

// FxService quotes conversion rates between supported currencies from a
// static per-USD table. Rates are deterministic so replaying a request
// produces the same captured rate.
type FxService struct {
	mu     sync.RWMutex
	perUSD map[core.Currency]decimal.Decimal
	asOf   time.Time
}

func NewFxService() *FxService {
	return &FxService{
		perUSD: map[core.Currency]decimal.Decimal{
			core.USD: decimal.RequireFromString("1"),
			core.EUR: decimal.RequireFromString("0.92"),
			core.INR: decimal.RequireFromString("83.10"),
			core.IDR: decimal.RequireFromString("16250"),
			core.JPY: decimal.RequireFromString("155.70"),
		},
		asOf: time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC),
	}
}

// RateMicros returns the from→to conversion rate in micros. Multiplying a
// minor amount by the rate and dividing by MicrosPerUnit converts it.
func (s *FxService) RateMicros(from, to core.Currency) (int64, error) {
	if err := from.Validate(); err != nil {
		return 0, fmt.Errorf("from currency %q: %w", from, err)
	}
	if err := to.Validate(); err != nil {
		return 0, fmt.Errorf("to currency %q: %w", to, err)
	}
	if from == to {
		return MicrosPerUnit, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	// from→to = (to per USD) / (from per USD)
	rate := s.perUSD[to].Div(s.perUSD[from])
	return rate.Mul(decimal.NewFromInt(MicrosPerUnit)).Round(0).IntPart(), nil
}

// Quote is one currency pair's rate as served by the rates endpoint.
type Quote struct {
	From       core.Currency `json:"from"`
	To         core.Currency `json:"to"`
	RateMicros int64         `json:"rateMicros"`
}

// Latest returns every supported rate quoted against the base currency.
func (s *FxService) Latest(_ context.Context, base core.Currency) ([]Quote, time.Time, error) {
	if err := base.Validate(); err != nil {
		return nil, time.Time{}, err
	}

	currencies := []core.Currency{core.USD, core.EUR, core.INR, core.IDR, core.JPY}
	quotes := make([]Quote, 0, len(currencies))
	for _, c := range currencies {
		micros, err := s.RateMicros(c, base)
		if err != nil {
			return nil, time.Time{}, err
		}
		quotes = append(quotes, Quote{From: c, To: base, RateMicros: micros})
	}

	s.mu.RLock()
	asOf := s.asOf
	s.mu.RUnlock()
	return quotes, asOf, nil
}

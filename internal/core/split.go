package core

import (
	"fmt"
	"math"
	"sort"
)

// Split policy names as they appear on the wire.
const (
	PolicyEqual   = "equal"
	PolicyExact   = "exact"
	PolicyPercent = "percent"
	PolicyShares  = "shares"
)

type (
	// SplitPolicy is a closed set of split rules. Using a sealed variant
	// instead of optional fields makes unsupported combinations
	// unrepresentable.
	SplitPolicy interface {
		Name() string
		splitPolicy()
	}

	// EqualSplit divides the total evenly among all participants.
	EqualSplit struct{}

	// ExactSplit assigns caller-supplied minor amounts per participant.
	// Missing participants default to zero.
	ExactSplit struct {
		AmountsMinor map[string]int64
	}

	// PercentSplit assigns a percentage of the total per participant.
	PercentSplit struct {
		Percents map[string]float64
	}

	// SharesSplit assigns weight units per participant; each share of the
	// total is weight/totalWeight.
	SharesSplit struct {
		Shares map[string]int64
	}

	// RoundingEntry is one participant's raw (possibly fractional) amount in
	// minor units, prior to fair rounding.
	RoundingEntry struct {
		UserID    string
		RawAmount float64
	}
)

func (EqualSplit) Name() string   { return PolicyEqual }
func (ExactSplit) Name() string   { return PolicyExact }
func (PercentSplit) Name() string { return PolicyPercent }
func (SharesSplit) Name() string  { return PolicyShares }

func (EqualSplit) splitPolicy()   {}
func (ExactSplit) splitPolicy()   {}
func (PercentSplit) splitPolicy() {}
func (SharesSplit) splitPolicy()  {}

// ParseSplitPolicy builds a SplitPolicy from its wire name and the
// per-participant parameter maps. Unknown names fail with
// ErrUnsupportedPolicy; a missing map for a policy that needs one fails with
// ErrInvalidPolicyParameters.
func ParseSplitPolicy(name string, exactMinor map[string]int64, percent map[string]float64, shares map[string]int64) (SplitPolicy, error) {
	switch name {
	case PolicyEqual:
		return EqualSplit{}, nil
	case PolicyExact:
		if exactMinor == nil {
			return nil, fmt.Errorf("%w: exact amounts required", ErrInvalidPolicyParameters)
		}
		return ExactSplit{AmountsMinor: exactMinor}, nil
	case PolicyPercent:
		if percent == nil {
			return nil, fmt.Errorf("%w: percentages required", ErrInvalidPolicyParameters)
		}
		return PercentSplit{Percents: percent}, nil
	case PolicyShares:
		if shares == nil {
			return nil, fmt.Errorf("%w: shares required", ErrInvalidPolicyParameters)
		}
		return SharesSplit{Shares: shares}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedPolicy, name)
}

// remainderEpsilon is the fractional-remainder difference below which two
// rounding entries count as tied and fall back to the userID tie-break.
const remainderEpsilon = 1e-9

// FairRound converts fractional per-participant raw amounts into integer
// minor units that sum exactly to totalMinor.
//
// Each raw amount is floored; the residual minor units are awarded one each
// to the participants with the highest fractional remainders, ties broken by
// ascending userID. Identical input always produces identical output, which
// keeps ledgers reproducible and expense-edit retries idempotent.
//
// A residual outside [0, len(entries)] means the caller's total is
// inconsistent with the raw amounts and fails with ErrInvalidState.
func FairRound(entries []RoundingEntry, totalMinor int64) ([]Share, error) {
	type floored struct {
		userID    string
		amount    int64
		remainder float64
	}

	fl := make([]floored, len(entries))
	var sumFloored int64
	for i, e := range entries {
		f := math.Floor(e.RawAmount)
		fl[i] = floored{
			userID:    e.UserID,
			amount:    int64(f),
			remainder: e.RawAmount - f,
		}
		sumFloored += fl[i].amount
	}

	residual := totalMinor - sumFloored
	if residual < 0 || residual > int64(len(entries)) {
		return nil, fmt.Errorf("%w: residual %d for %d participants", ErrInvalidState, residual, len(entries))
	}

	// Rank a copy so the result keeps the caller's participant order.
	ranked := make([]floored, len(fl))
	copy(ranked, fl)
	sort.SliceStable(ranked, func(i, j int) bool {
		if math.Abs(ranked[i].remainder-ranked[j].remainder) > remainderEpsilon {
			return ranked[i].remainder > ranked[j].remainder
		}
		return ranked[i].userID < ranked[j].userID
	})

	extra := make(map[string]int64, residual)
	for i := int64(0); i < residual; i++ {
		extra[ranked[i].userID]++
	}

	shares := make([]Share, len(fl))
	for i, f := range fl {
		shares[i] = Share{UserID: f.userID, AmountMinor: f.amount + extra[f.userID]}
	}
	return shares, nil
}

// CalculateSplit divides totalMinor among the participants according to the
// policy. The returned shares are one per participant, in participant order,
// non-negative, and sum exactly to totalMinor.
func CalculateSplit(totalMinor int64, policy SplitPolicy, participants []string) ([]Share, error) {
	if totalMinor <= 0 {
		return nil, fmt.Errorf("%w: total must be positive", ErrInvalidPolicyParameters)
	}
	if len(participants) == 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPolicyParameters, ErrEmptyParticipants)
	}

	switch p := policy.(type) {
	case EqualSplit:
		perHead := float64(totalMinor) / float64(len(participants))
		entries := make([]RoundingEntry, len(participants))
		for i, uid := range participants {
			entries[i] = RoundingEntry{UserID: uid, RawAmount: perHead}
		}
		return FairRound(entries, totalMinor)

	case ExactSplit:
		if p.AmountsMinor == nil {
			return nil, fmt.Errorf("%w: exact amounts required", ErrInvalidPolicyParameters)
		}
		shares := make([]Share, len(participants))
		for i, uid := range participants {
			amount := p.AmountsMinor[uid]
			if amount < 0 {
				return nil, fmt.Errorf("%w: negative exact amount for %s", ErrInvalidPolicyParameters, uid)
			}
			shares[i] = Share{UserID: uid, AmountMinor: amount}
		}
		// Exact amounts are recorded at face value; whether they sum to the
		// total is validated at the request boundary, not here.
		return shares, nil

	case PercentSplit:
		if p.Percents == nil {
			return nil, fmt.Errorf("%w: percentages required", ErrInvalidPolicyParameters)
		}
		entries := make([]RoundingEntry, len(participants))
		for i, uid := range participants {
			pct := p.Percents[uid]
			if pct < 0 {
				return nil, fmt.Errorf("%w: negative percentage for %s", ErrInvalidPolicyParameters, uid)
			}
			entries[i] = RoundingEntry{UserID: uid, RawAmount: float64(totalMinor) * pct / 100}
		}
		return FairRound(entries, totalMinor)

	case SharesSplit:
		if p.Shares == nil {
			return nil, fmt.Errorf("%w: shares required", ErrInvalidPolicyParameters)
		}
		var totalShares int64
		for _, uid := range participants {
			w := p.Shares[uid]
			if w < 0 {
				return nil, fmt.Errorf("%w: negative share count for %s", ErrInvalidPolicyParameters, uid)
			}
			totalShares += w
		}
		if totalShares == 0 {
			return nil, fmt.Errorf("%w: total shares must be positive", ErrInvalidPolicyParameters)
		}
		entries := make([]RoundingEntry, len(participants))
		for i, uid := range participants {
			entries[i] = RoundingEntry{
				UserID:    uid,
				RawAmount: float64(totalMinor) * float64(p.Shares[uid]) / float64(totalShares),
			}
		}
		return FairRound(entries, totalMinor)
	}

	return nil, fmt.Errorf("%w: %T", ErrUnsupportedPolicy, policy)
}

// SumShares returns the total of all share amounts.
func SumShares(shares []Share) int64 {
	var sum int64
	for _, s := range shares {
		sum += s.AmountMinor
	}
	return sum
}

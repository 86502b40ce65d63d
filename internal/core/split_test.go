package core

import (
	"errors"
	"reflect"
	"sort"
	"testing"
)

func sharesByUser(shares []Share) map[string]int64 {
	m := make(map[string]int64, len(shares))
	for _, s := range shares {
		m[s.UserID] = s.AmountMinor
	}
	return m
}

func TestFairRoundDistributesResidual(t *testing.T) {
	entries := []RoundingEntry{
		{UserID: "u1", RawAmount: 33.333333},
		{UserID: "u2", RawAmount: 33.333333},
		{UserID: "u3", RawAmount: 33.333333},
	}

	shares, err := FairRound(entries, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := SumShares(shares); got != 100 {
		t.Fatalf("shares sum to %d, want 100", got)
	}

	amounts := make([]int64, len(shares))
	for i, s := range shares {
		amounts[i] = s.AmountMinor
	}
	sort.Slice(amounts, func(i, j int) bool { return amounts[i] > amounts[j] })
	want := []int64{34, 33, 33}
	if !reflect.DeepEqual(amounts, want) {
		t.Fatalf("amounts = %v, want %v", amounts, want)
	}

	// Tie on remainder: the extra unit goes to the lowest userID.
	if m := sharesByUser(shares); m["u1"] != 34 {
		t.Fatalf("expected u1 to receive the extra unit, got %v", m)
	}
}

func TestFairRoundDeterministic(t *testing.T) {
	entries := []RoundingEntry{
		{UserID: "charlie", RawAmount: 33.333333},
		{UserID: "alice", RawAmount: 33.333333},
		{UserID: "bob", RawAmount: 33.333333},
	}

	first, err := FairRound(entries, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 50; i++ {
		again, err := FairRound(entries, 100)
		if err != nil {
			t.Fatalf("run %d: unexpected error: %v", i, err)
		}
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("run %d: output changed: %v vs %v", i, first, again)
		}
	}
}

func TestFairRoundInvalidResidual(t *testing.T) {
	cases := []struct {
		name  string
		total int64
	}{
		{"total too high", 110},
		{"total too low", 90},
	}
	entries := []RoundingEntry{
		{UserID: "u1", RawAmount: 33.333333},
		{UserID: "u2", RawAmount: 33.333333},
		{UserID: "u3", RawAmount: 33.333333},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := FairRound(entries, tc.total); !errors.Is(err, ErrInvalidState) {
				t.Fatalf("expected ErrInvalidState, got %v", err)
			}
		})
	}
}

func TestCalculateSplitEqual(t *testing.T) {
	shares, err := CalculateSplit(10000, EqualSplit{}, []string{"u1", "u2", "u3"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := SumShares(shares); got != 10000 {
		t.Fatalf("shares sum to %d, want 10000", got)
	}

	amounts := make([]int64, len(shares))
	for i, s := range shares {
		amounts[i] = s.AmountMinor
	}
	sort.Slice(amounts, func(i, j int) bool { return amounts[i] > amounts[j] })
	if !reflect.DeepEqual(amounts, []int64{3334, 3333, 3333}) {
		t.Fatalf("amounts = %v, want [3334 3333 3333]", amounts)
	}
}

func TestCalculateSplitPercent(t *testing.T) {
	policy := PercentSplit{Percents: map[string]float64{"u1": 50, "u2": 30, "u3": 20}}
	shares, err := CalculateSplit(10000, policy, []string{"u1", "u2", "u3"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := map[string]int64{"u1": 5000, "u2": 3000, "u3": 2000}
	if got := sharesByUser(shares); !reflect.DeepEqual(got, want) {
		t.Fatalf("shares = %v, want %v", got, want)
	}
}

func TestCalculateSplitShares(t *testing.T) {
	policy := SharesSplit{Shares: map[string]int64{"u1": 2, "u2": 2, "u3": 1}}
	shares, err := CalculateSplit(10000, policy, []string{"u1", "u2", "u3"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := map[string]int64{"u1": 4000, "u2": 4000, "u3": 2000}
	if got := sharesByUser(shares); !reflect.DeepEqual(got, want) {
		t.Fatalf("shares = %v, want %v", got, want)
	}
}

func TestCalculateSplitExact(t *testing.T) {
	policy := ExactSplit{AmountsMinor: map[string]int64{"u1": 700, "u2": 300}}
	shares, err := CalculateSplit(1000, policy, []string{"u1", "u2", "u3"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Missing participants default to zero.
	want := map[string]int64{"u1": 700, "u2": 300, "u3": 0}
	if got := sharesByUser(shares); !reflect.DeepEqual(got, want) {
		t.Fatalf("shares = %v, want %v", got, want)
	}
}

func TestCalculateSplitConservation(t *testing.T) {
	participants := []string{"u1", "u2", "u3", "u4", "u5", "u6", "u7"}
	policies := []SplitPolicy{
		EqualSplit{},
		PercentSplit{Percents: map[string]float64{
			"u1": 13.7, "u2": 11.1, "u3": 9.2, "u4": 20, "u5": 16, "u6": 15, "u7": 15,
		}},
		SharesSplit{Shares: map[string]int64{
			"u1": 1, "u2": 3, "u3": 2, "u4": 7, "u5": 1, "u6": 5, "u7": 2,
		}},
	}
	totals := []int64{1, 3, 97, 100, 101, 9999, 10001, 123457, 7919}

	for _, policy := range policies {
		for _, total := range totals {
			shares, err := CalculateSplit(total, policy, participants)
			if err != nil {
				t.Fatalf("policy %s total %d: unexpected error: %v", policy.Name(), total, err)
			}
			if got := SumShares(shares); got != total {
				t.Fatalf("policy %s: shares sum to %d, want %d", policy.Name(), got, total)
			}
			for _, s := range shares {
				if s.AmountMinor < 0 {
					t.Fatalf("policy %s: negative share %+v", policy.Name(), s)
				}
			}
		}
	}
}

func TestCalculateSplitErrors(t *testing.T) {
	cases := []struct {
		name         string
		total        int64
		policy       SplitPolicy
		participants []string
		want         error
	}{
		{"zero total shares", 1000, SharesSplit{Shares: map[string]int64{"u1": 0, "u2": 0}}, []string{"u1", "u2"}, ErrInvalidPolicyParameters},
		{"nil percent map", 1000, PercentSplit{}, []string{"u1"}, ErrInvalidPolicyParameters},
		{"nil exact map", 1000, ExactSplit{}, []string{"u1"}, ErrInvalidPolicyParameters},
		{"nil shares map", 1000, SharesSplit{}, []string{"u1"}, ErrInvalidPolicyParameters},
		{"negative percent", 1000, PercentSplit{Percents: map[string]float64{"u1": -10, "u2": 110}}, []string{"u1", "u2"}, ErrInvalidPolicyParameters},
		{"no participants", 1000, EqualSplit{}, nil, ErrInvalidPolicyParameters},
		{"zero total", 0, EqualSplit{}, []string{"u1"}, ErrInvalidPolicyParameters},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := CalculateSplit(tc.total, tc.policy, tc.participants); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestParseSplitPolicy(t *testing.T) {
	if _, err := ParseSplitPolicy("equal", nil, nil, nil); err != nil {
		t.Fatalf("equal: unexpected error: %v", err)
	}
	if _, err := ParseSplitPolicy("percent", nil, map[string]float64{"u1": 100}, nil); err != nil {
		t.Fatalf("percent: unexpected error: %v", err)
	}
	if _, err := ParseSplitPolicy("percent", nil, nil, nil); !errors.Is(err, ErrInvalidPolicyParameters) {
		t.Fatalf("percent without map: expected ErrInvalidPolicyParameters, got %v", err)
	}
	if _, err := ParseSplitPolicy("whatever", nil, nil, nil); !errors.Is(err, ErrUnsupportedPolicy) {
		t.Fatalf("unknown name: expected ErrUnsupportedPolicy, got %v", err)
	}
}

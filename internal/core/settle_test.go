package core

import (
	"reflect"
	"testing"
)

// A user owed money (positive net) is paid by the user who owes it
// (negative net), never the other way around.
func TestGenerateSettlePlanSimplePair(t *testing.T) {
	balances := []Balance{
		{UserID: "alice", NetMinor: 1000},
		{UserID: "bob", NetMinor: -1000},
	}

	plan := GenerateSettlePlan(balances)
	want := []Transfer{{From: "bob", To: "alice", AmountMinor: 1000}}
	if !reflect.DeepEqual(plan, want) {
		t.Fatalf("plan = %v, want %v", plan, want)
	}
}

func TestGenerateSettlePlanMultipleDebtors(t *testing.T) {
	balances := []Balance{
		{UserID: "alice", NetMinor: 3000},
		{UserID: "bob", NetMinor: -1000},
		{UserID: "charlie", NetMinor: -2000},
	}

	plan := GenerateSettlePlan(balances)
	if len(plan) != 2 {
		t.Fatalf("expected 2 transfers, got %d: %v", len(plan), plan)
	}

	var total int64
	for _, tr := range plan {
		if tr.To != "alice" {
			t.Fatalf("expected all transfers to alice, got %+v", tr)
		}
		total += tr.AmountMinor
	}
	if total != 3000 {
		t.Fatalf("transfers sum to %d, want 3000", total)
	}
	// Largest debtor pays first.
	if plan[0].From != "charlie" {
		t.Fatalf("expected charlie to pay first, got %v", plan)
	}
}

func TestGenerateSettlePlanDustIgnored(t *testing.T) {
	balances := []Balance{
		{UserID: "alice", NetMinor: 1},
		{UserID: "bob", NetMinor: -1},
	}
	if plan := GenerateSettlePlan(balances); len(plan) != 0 {
		t.Fatalf("expected empty plan for dust balances, got %v", plan)
	}
}

func TestGenerateSettlePlanZeroesBalances(t *testing.T) {
	cases := []struct {
		name     string
		balances []Balance
	}{
		{
			"three party",
			[]Balance{
				{UserID: "alice", NetMinor: 5000},
				{UserID: "bob", NetMinor: -3000},
				{UserID: "charlie", NetMinor: -2000},
			},
		},
		{
			"four party",
			[]Balance{
				{UserID: "alice", NetMinor: 10000},
				{UserID: "bob", NetMinor: 5000},
				{UserID: "charlie", NetMinor: -7000},
				{UserID: "dave", NetMinor: -8000},
			},
		},
		{
			"uneven with dust",
			[]Balance{
				{UserID: "a", NetMinor: -3333},
				{UserID: "b", NetMinor: 1667},
				{UserID: "c", NetMinor: 1665},
				{UserID: "d", NetMinor: 1},
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			plan := GenerateSettlePlan(tc.balances)

			nonDust := 0
			for _, b := range tc.balances {
				if b.NetMinor < -DustThresholdMinor || b.NetMinor > DustThresholdMinor {
					nonDust++
				}
			}
			if len(plan) > nonDust-1 {
				t.Fatalf("plan has %d transfers for %d non-dust parties", len(plan), nonDust)
			}

			for _, after := range ApplyTransfers(tc.balances, plan) {
				if after.NetMinor < -DustThresholdMinor || after.NetMinor > DustThresholdMinor {
					t.Fatalf("balance %s not settled: %d", after.UserID, after.NetMinor)
				}
			}
		})
	}
}

func TestGenerateSettlePlanDeterministic(t *testing.T) {
	balances := []Balance{
		{UserID: "d", NetMinor: 2500},
		{UserID: "b", NetMinor: -2500},
		{UserID: "a", NetMinor: -2500},
		{UserID: "c", NetMinor: 2500},
	}

	first := GenerateSettlePlan(balances)
	for i := 0; i < 20; i++ {
		if again := GenerateSettlePlan(balances); !reflect.DeepEqual(first, again) {
			t.Fatalf("plan changed between runs: %v vs %v", first, again)
		}
	}
	// Equal magnitudes tie-break by userID.
	if first[0].From != "a" || first[0].To != "c" {
		t.Fatalf("unexpected tie-break order: %v", first)
	}
}

func TestNetBalances(t *testing.T) {
	postings := []Posting{
		{SpaceID: "s1", SubjectID: "e1", UserID: "alice", AmountMinor: -3000},
		{SpaceID: "s1", SubjectID: "e1", UserID: "alice", AmountMinor: 1000},
		{SpaceID: "s1", SubjectID: "e1", UserID: "bob", AmountMinor: 1000},
		{SpaceID: "s1", SubjectID: "e1", UserID: "charlie", AmountMinor: 1000},
	}

	got := NetBalances(postings)
	want := []Balance{
		{UserID: "alice", NetMinor: 2000},
		{UserID: "bob", NetMinor: -1000},
		{UserID: "charlie", NetMinor: -1000},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("balances = %v, want %v", got, want)
	}

	var sum int64
	for _, b := range got {
		sum += b.NetMinor
	}
	if sum != 0 {
		t.Fatalf("balances sum to %d, want 0", sum)
	}
}

func TestNetBalancesEmpty(t *testing.T) {
	if got := NetBalances(nil); len(got) != 0 {
		t.Fatalf("expected no balances, got %v", got)
	}
}

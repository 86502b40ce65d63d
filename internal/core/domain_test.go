package core

import (
	"testing"
	"time"
)

func TestCurrencyValidate(t *testing.T) {
	for _, c := range []Currency{USD, EUR, INR, IDR, JPY} {
		if err := c.Validate(); err != nil {
			t.Fatalf("%s expected valid, got %v", c, err)
		}
	}
	if err := Currency("BTC").Validate(); err == nil {
		t.Fatalf("expected error for unknown currency")
	}
}

func TestRoleCanEdit(t *testing.T) {
	cases := []struct {
		role Role
		want bool
	}{
		{RoleOwner, true},
		{RoleEditor, true},
		{RoleViewer, false},
	}
	for _, tc := range cases {
		if got := tc.role.CanEdit(); got != tc.want {
			t.Fatalf("%s.CanEdit() = %v, want %v", tc.role, got, tc.want)
		}
	}
}

func TestSpaceValidate(t *testing.T) {
	good := Space{Name: "Trip to Goa", BaseCurrency: INR}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	bads := []Space{
		{Name: "", BaseCurrency: USD},
		{Name: "   ", BaseCurrency: USD},
		{Name: "ok", BaseCurrency: "XYZ"},
	}
	for i, s := range bads {
		if err := s.Validate(); err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestSettlementValidate(t *testing.T) {
	good := Settlement{FromUserID: "bob", ToUserID: "alice", AmountMinor: 500}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	bads := []Settlement{
		{FromUserID: "bob", ToUserID: "alice", AmountMinor: 0},
		{FromUserID: "bob", ToUserID: "alice", AmountMinor: -5},
		{FromUserID: "bob", ToUserID: "bob", AmountMinor: 500},
		{FromUserID: "", ToUserID: "alice", AmountMinor: 500},
	}
	for i, s := range bads {
		if err := s.Validate(); err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestExpenseRevisionValidate(t *testing.T) {
	good := ExpenseRevision{
		PayerID:            "alice",
		NativeAmountMinor:  2500,
		NativeCurrency:     EUR,
		FxRateMicrosToBase: 1_000_000,
		Date:               time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		Policy:             EqualSplit{},
		Participants:       []string{"alice", "bob"},
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	bad := good
	bad.Participants = nil
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected error for empty participants")
	}

	bad = good
	bad.NativeAmountMinor = 0
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected error for zero amount")
	}

	bad = good
	bad.FxRateMicrosToBase = 0
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected error for zero fx rate")
	}
}

func TestExpenseRevisionBaseAmount(t *testing.T) {
	cases := []struct {
		native int64
		micros int64
		want   int64
	}{
		{10000, 1_000_000, 10000}, // 1.0 rate
		{10000, 920_000, 9200},    // USD->EUR stub rate
		{333, 1_500_000, 500},     // 499.5 rounds half-up
		{1, 83_000_000, 83},       // USD->INR
	}
	for _, tc := range cases {
		r := ExpenseRevision{NativeAmountMinor: tc.native, FxRateMicrosToBase: tc.micros}
		if got := r.BaseAmount(); got != tc.want {
			t.Fatalf("BaseAmount(%d @ %d) = %d, want %d", tc.native, tc.micros, got, tc.want)
		}
	}
}

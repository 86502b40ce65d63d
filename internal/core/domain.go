package core

import (
	"errors"
	"strings"
	"time"
)

const (
	RoleOwner  Role = "OWNER"
	RoleEditor Role = "EDITOR"
	RoleViewer Role = "VIEWER"
)

const (
	USD Currency = "USD"
	EUR Currency = "EUR"
	INR Currency = "INR"
	IDR Currency = "IDR"
	JPY Currency = "JPY"
)

type (
	Role string

	Currency string

	Money struct {
		Minor int64 // smallest currency unit (cents, paise, ...)
	}

	User struct {
		ID              string
		Name            string
		Email           string
		AvatarURL       string
		DefaultCurrency Currency
		CreatedAt       time.Time
	}

	Space struct {
		ID           string
		Name         string
		BaseCurrency Currency
		Icon         string
		CreatedBy    string
		CreatedAt    time.Time
	}

	Membership struct {
		ID        string
		UserID    string
		SpaceID   string
		Role      Role
		CreatedAt time.Time
	}

	// Posting is one immutable, signed ledger entry attributing money to a
	// user for one event (an expense or a settlement). Negative = paid out,
	// positive = owed. The postings of a single event always sum to zero.
	Posting struct {
		ID          string
		SpaceID     string
		SubjectID   string // expense or settlement identifier
		UserID      string
		AmountMinor int64
		Currency    Currency
		CreatedAt   time.Time
	}

	// Balance is a user's net position within one space, the negated sum of
	// their postings. Positive = owed to the user, negative = the user owes.
	Balance struct {
		UserID   string
		NetMinor int64
	}

	// Transfer is one directed payment of a settle plan. The planner never
	// persists it; recording an executed transfer is a settlement.
	Transfer struct {
		From        string
		To          string
		AmountMinor int64
	}

	// Share is one participant's slice of an expense total.
	Share struct {
		UserID      string
		AmountMinor int64
	}

	Expense struct {
		ID                string
		SpaceID           string
		CurrentRevisionID string
		CreatedAt         time.Time
	}

	// ExpenseRevision captures the full state of an expense at one edit.
	// Edits never mutate a revision; they append a new one and replace the
	// expense's postings.
	ExpenseRevision struct {
		ID                 string
		ExpenseID          string
		Revision           int64
		CreatedBy          string
		CreatedAt          time.Time
		PayerID            string
		Note               string
		Category           string
		Date               time.Time
		NativeAmountMinor  int64
		NativeCurrency     Currency
		FxRateMicrosToBase int64 // 1_000_000 = 1.0
		BaseAmountMinor    int64
		Policy             SplitPolicy
		Participants       []string
	}

	Settlement struct {
		ID             string
		SpaceID        string
		FromUserID     string
		ToUserID       string
		AmountMinor    int64
		Method         string
		Note           string
		CreatedBy      string
		CreatedAt      time.Time
		IdempotencyKey string
	}

	InviteToken struct {
		Token     string
		SpaceID   string
		Role      Role
		CreatedBy string
		ExpiresAt time.Time
	}
)

var (
	// ErrUnsupportedPolicy reports a split policy name the calculator does
	// not recognize.
	ErrUnsupportedPolicy = errors.New("unsupported split policy")

	// ErrInvalidPolicyParameters reports missing or degenerate policy
	// parameters (absent per-user map, zero total shares, negative amounts).
	ErrInvalidPolicyParameters = errors.New("invalid split policy parameters")

	// ErrInvalidState reports an internal invariant violation: the rounding
	// residual fell outside [0, participants], meaning the caller's total is
	// inconsistent with the raw amounts. Fatal to the operation.
	ErrInvalidState = errors.New("invalid rounding state")

	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInvalidCurrency   = errors.New("invalid currency")
	ErrInvalidRole       = errors.New("invalid role")
	ErrEmptyName         = errors.New("empty name")
	ErrEmptyParticipants = errors.New("no participants")
	ErrSelfSettlement    = errors.New("settlement from and to the same user")
)

func (c Currency) Validate() error {
	switch c {
	case USD, EUR, INR, IDR, JPY:
		return nil
	}
	return ErrInvalidCurrency
}

func (r Role) Validate() error {
	switch r {
	case RoleOwner, RoleEditor, RoleViewer:
		return nil
	}
	return ErrInvalidRole
}

// CanEdit reports whether the role may create or modify ledger events.
func (r Role) CanEdit() bool {
	return r == RoleOwner || r == RoleEditor
}

func (m Money) Validate() error {
	if m.Minor <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (s Space) Validate() error {
	if len(strings.TrimSpace(s.Name)) == 0 {
		return ErrEmptyName
	}
	if len(s.Name) > 100 {
		return errors.New("name too long (max 100 characters)")
	}
	return s.BaseCurrency.Validate()
}

func (s Settlement) Validate() error {
	if s.AmountMinor <= 0 {
		return ErrInvalidAmount
	}
	if s.FromUserID == "" || s.ToUserID == "" {
		return errors.New("settlement requires both users")
	}
	if s.FromUserID == s.ToUserID {
		return ErrSelfSettlement
	}
	return nil
}

func (r ExpenseRevision) Validate() error {
	if r.NativeAmountMinor <= 0 {
		return ErrInvalidAmount
	}
	if err := r.NativeCurrency.Validate(); err != nil {
		return err
	}
	if r.FxRateMicrosToBase <= 0 {
		return errors.New("fx rate must be positive")
	}
	if r.PayerID == "" {
		return errors.New("payer required")
	}
	if len(r.Participants) == 0 {
		return ErrEmptyParticipants
	}
	if len(r.Note) > 500 {
		return errors.New("note too long (max 500 characters)")
	}
	if len(r.Category) > 50 {
		return errors.New("category too long (max 50 characters)")
	}
	if r.Date.IsZero() {
		return errors.New("date cannot be zero")
	}
	return nil
}

// BaseAmount converts the native amount to the space's base currency using
// the captured fx rate, half-up rounded to the nearest minor unit.
func (r ExpenseRevision) BaseAmount() int64 {
	return (r.NativeAmountMinor*r.FxRateMicrosToBase + 500_000) / 1_000_000
}

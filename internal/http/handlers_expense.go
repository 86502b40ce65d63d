package http

import (
	"net/http"
	"time"

	"splitwise/internal/core"
	"splitwise/internal/services"
	"splitwise/internal/storage"
)

type expenseRequest struct {
	PayerID      string             `json:"payerId"`
	Note         string             `json:"note"`
	Category     string             `json:"category"`
	Date         string             `json:"date"` // YYYY-MM-DD
	AmountMinor  int64              `json:"amountMinor"`
	Currency     string             `json:"currency"`
	SplitPolicy  string             `json:"splitPolicy"`
	ExactAmounts map[string]int64   `json:"exactAmounts,omitempty"`
	Percents     map[string]float64 `json:"percents,omitempty"`
	Shares       map[string]int64   `json:"shares,omitempty"`
	Participants []string           `json:"participants"`
}

type expensePayload struct {
	ID           string    `json:"id"`
	SpaceID      string    `json:"spaceId"`
	Revision     int64     `json:"revision"`
	PayerID      string    `json:"payerId"`
	Note         string    `json:"note,omitempty"`
	Category     string    `json:"category,omitempty"`
	Date         string    `json:"date"`
	AmountMinor  int64     `json:"amountMinor"`
	Currency     string    `json:"currency"`
	FxRateMicros int64     `json:"fxRateMicros"`
	BaseMinor    int64     `json:"baseAmountMinor"`
	SplitPolicy  string    `json:"splitPolicy"`
	Participants []string  `json:"participants"`
	CreatedBy    string    `json:"createdBy"`
	CreatedAt    time.Time `json:"createdAt"`
}

func toExpensePayload(rec storage.ExpenseRecord) expensePayload {
	return revisionPayload(rec.Expense.SpaceID, rec.Revision)
}

func revisionPayload(spaceID string, rev core.ExpenseRevision) expensePayload {
	return expensePayload{
		ID:           rev.ExpenseID,
		SpaceID:      spaceID,
		Revision:     rev.Revision,
		PayerID:      rev.PayerID,
		Note:         rev.Note,
		Category:     rev.Category,
		Date:         rev.Date.Format("2006-01-02"),
		AmountMinor:  rev.NativeAmountMinor,
		Currency:     string(rev.NativeCurrency),
		FxRateMicros: rev.FxRateMicrosToBase,
		BaseMinor:    rev.BaseAmountMinor,
		SplitPolicy:  rev.Policy.Name(),
		Participants: rev.Participants,
		CreatedBy:    rev.CreatedBy,
		CreatedAt:    rev.CreatedAt,
	}
}

// parseExpenseInput validates the request at the boundary and converts it
// into a service input. Exact splits must account for the full amount here;
// the calculator itself records exact amounts at face value.
func (s *Server) parseExpenseInput(w http.ResponseWriter, r *http.Request, req expenseRequest) (services.ExpenseInput, bool) {
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		respondError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return services.ExpenseInput{}, false
	}

	policy, err := core.ParseSplitPolicy(req.SplitPolicy, req.ExactAmounts, req.Percents, req.Shares)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return services.ExpenseInput{}, false
	}

	if exact, ok := policy.(core.ExactSplit); ok {
		space, err := s.storage.GetSpace(r.Context(), r.PathValue("spaceID"))
		if err != nil {
			respondDomainError(w, err)
			return services.ExpenseInput{}, false
		}
		if core.Currency(req.Currency) != space.BaseCurrency {
			respondError(w, http.StatusBadRequest, "exact split requires the space base currency")
			return services.ExpenseInput{}, false
		}
		var sum int64
		for _, uid := range req.Participants {
			sum += exact.AmountsMinor[uid]
		}
		if sum != req.AmountMinor {
			respondError(w, http.StatusBadRequest, "exact amounts must sum to the total")
			return services.ExpenseInput{}, false
		}
	}

	return services.ExpenseInput{
		SpaceID:           r.PathValue("spaceID"),
		ActorID:           userID(r.Context()),
		PayerID:           req.PayerID,
		Note:              req.Note,
		Category:          req.Category,
		Date:              date,
		NativeAmountMinor: req.AmountMinor,
		NativeCurrency:    core.Currency(req.Currency),
		Policy:            policy,
		Participants:      req.Participants,
	}, true
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	var req expenseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	input, ok := s.parseExpenseInput(w, r, req)
	if !ok {
		return
	}

	rec, err := s.expenses.CreateExpense(r.Context(), input)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	s.balances.Invalidate(input.SpaceID)
	respondJSON(w, http.StatusCreated, toExpensePayload(rec))
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	records, err := s.expenses.ListExpenses(r.Context(), r.PathValue("spaceID"))
	if err != nil {
		respondDomainError(w, err)
		return
	}

	payloads := make([]expensePayload, 0, len(records))
	for _, rec := range records {
		payloads = append(payloads, toExpensePayload(rec))
	}
	respondJSON(w, http.StatusOK, payloads)
}

func (s *Server) handleGetExpense(w http.ResponseWriter, r *http.Request) {
	rec, err := s.expenses.GetExpense(r.Context(), r.PathValue("spaceID"), r.PathValue("expenseID"))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toExpensePayload(rec))
}

func (s *Server) handleReviseExpense(w http.ResponseWriter, r *http.Request) {
	var req expenseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	input, ok := s.parseExpenseInput(w, r, req)
	if !ok {
		return
	}

	rec, err := s.expenses.ReviseExpense(r.Context(), r.PathValue("expenseID"), input)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	s.balances.Invalidate(input.SpaceID)
	respondJSON(w, http.StatusOK, toExpensePayload(rec))
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	spaceID := r.PathValue("spaceID")
	if err := s.expenses.DeleteExpense(r.Context(), spaceID, r.PathValue("expenseID")); err != nil {
		respondDomainError(w, err)
		return
	}

	s.balances.Invalidate(spaceID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListRevisions(w http.ResponseWriter, r *http.Request) {
	spaceID := r.PathValue("spaceID")
	revisions, err := s.expenses.ListRevisions(r.Context(), spaceID, r.PathValue("expenseID"))
	if err != nil {
		respondDomainError(w, err)
		return
	}

	payloads := make([]expensePayload, 0, len(revisions))
	for _, rev := range revisions {
		payloads = append(payloads, revisionPayload(spaceID, rev))
	}
	respondJSON(w, http.StatusOK, payloads)
}

package http

import (
	"encoding/csv"
	"fmt"
	"net/http"

	"splitwise/internal/core"
)

// handleExportCSV streams the space's live expenses and settlements as CSV,
// newest expenses first then settlements.
func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	spaceID := r.PathValue("spaceID")

	records, err := s.expenses.ListExpenses(r.Context(), spaceID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	settlements, err := s.settlements.ListSettlements(r.Context(), spaceID)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "space-"+spaceID+".csv"))

	cw := csv.NewWriter(w)
	defer cw.Flush()

	_ = cw.Write([]string{
		"type", "id", "date", "payer_or_from", "to", "note",
		"amount", "currency", "base_amount", "split_policy", "participants",
	})

	for _, rec := range records {
		rev := rec.Revision
		_ = cw.Write([]string{
			"expense",
			rec.Expense.ID,
			rev.Date.Format("2006-01-02"),
			rev.PayerID,
			"",
			rev.Note,
			core.FormatMinor(rev.NativeAmountMinor),
			string(rev.NativeCurrency),
			core.FormatMinor(rev.BaseAmountMinor),
			rev.Policy.Name(),
			fmt.Sprintf("%d", len(rev.Participants)),
		})
	}
	for _, settlement := range settlements {
		_ = cw.Write([]string{
			"settlement",
			settlement.ID,
			settlement.CreatedAt.Format("2006-01-02"),
			settlement.FromUserID,
			settlement.ToUserID,
			settlement.Note,
			core.FormatMinor(settlement.AmountMinor),
			"",
			core.FormatMinor(settlement.AmountMinor),
			"",
			"2",
		})
	}
}

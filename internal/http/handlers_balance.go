package http

import (
	"net/http"
)

func (s *Server) handleBalances(w http.ResponseWriter, r *http.Request) {
	balances, err := s.balances.Balances(r.Context(), r.PathValue("spaceID"))
	if err != nil {
		respondDomainError(w, err)
		return
	}

	type balancePayload struct {
		UserID   string `json:"userId"`
		NetMinor int64  `json:"netMinor"`
	}
	payloads := make([]balancePayload, 0, len(balances))
	for _, b := range balances {
		payloads = append(payloads, balancePayload{UserID: b.UserID, NetMinor: b.NetMinor})
	}
	respondJSON(w, http.StatusOK, payloads)
}

func (s *Server) handleSettlePlan(w http.ResponseWriter, r *http.Request) {
	plan, err := s.balances.SettlePlan(r.Context(), r.PathValue("spaceID"))
	if err != nil {
		respondDomainError(w, err)
		return
	}

	type transferPayload struct {
		From        string `json:"from"`
		To          string `json:"to"`
		AmountMinor int64  `json:"amountMinor"`
	}
	payloads := make([]transferPayload, 0, len(plan))
	for _, t := range plan {
		payloads = append(payloads, transferPayload{From: t.From, To: t.To, AmountMinor: t.AmountMinor})
	}
	respondJSON(w, http.StatusOK, payloads)
}

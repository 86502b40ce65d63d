package http

import (
	"net/http"
	"time"

	"splitwise/internal/core"
	"splitwise/internal/services"
)

type settlementPayload struct {
	ID          string    `json:"id"`
	SpaceID     string    `json:"spaceId"`
	FromUserID  string    `json:"fromUserId"`
	ToUserID    string    `json:"toUserId"`
	AmountMinor int64     `json:"amountMinor"`
	Method      string    `json:"method,omitempty"`
	Note        string    `json:"note,omitempty"`
	CreatedBy   string    `json:"createdBy"`
	CreatedAt   time.Time `json:"createdAt"`
}

func toSettlementPayload(s core.Settlement) settlementPayload {
	return settlementPayload{
		ID:          s.ID,
		SpaceID:     s.SpaceID,
		FromUserID:  s.FromUserID,
		ToUserID:    s.ToUserID,
		AmountMinor: s.AmountMinor,
		Method:      s.Method,
		Note:        s.Note,
		CreatedBy:   s.CreatedBy,
		CreatedAt:   s.CreatedAt,
	}
}

func (s *Server) handleCreateSettlement(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FromUserID     string `json:"fromUserId"`
		ToUserID       string `json:"toUserId"`
		AmountMinor    int64  `json:"amountMinor"`
		Method         string `json:"method"`
		Note           string `json:"note"`
		IdempotencyKey string `json:"idempotencyKey"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = r.Header.Get("Idempotency-Key")
	}

	spaceID := r.PathValue("spaceID")
	settlement, replayed, err := s.settlements.RecordSettlement(r.Context(), services.SettlementInput{
		SpaceID:        spaceID,
		ActorID:        userID(r.Context()),
		FromUserID:     req.FromUserID,
		ToUserID:       req.ToUserID,
		AmountMinor:    req.AmountMinor,
		Method:         req.Method,
		Note:           req.Note,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		respondDomainError(w, err)
		return
	}

	status := http.StatusCreated
	if replayed {
		// The settlement already exists; the retry changes nothing.
		status = http.StatusOK
	} else {
		s.balances.Invalidate(spaceID)
	}
	respondJSON(w, status, toSettlementPayload(settlement))
}

func (s *Server) handleListSettlements(w http.ResponseWriter, r *http.Request) {
	settlements, err := s.settlements.ListSettlements(r.Context(), r.PathValue("spaceID"))
	if err != nil {
		respondDomainError(w, err)
		return
	}

	payloads := make([]settlementPayload, 0, len(settlements))
	for _, settlement := range settlements {
		payloads = append(payloads, toSettlementPayload(settlement))
	}
	respondJSON(w, http.StatusOK, payloads)
}

package http

import (
	"net/http"

	"splitwise/internal/core"
)

// handleFxLatest serves the current rate table quoted against a base
// currency (default USD).
func (s *Server) handleFxLatest(w http.ResponseWriter, r *http.Request) {
	base := core.Currency(r.URL.Query().Get("base"))
	if base == "" {
		base = core.USD
	}

	quotes, asOf, err := s.fx.Latest(r.Context(), base)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"base":   base,
		"asOf":   asOf,
		"quotes": quotes,
	})
}

package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"splitwise/internal/core"
	"splitwise/internal/storage"
)

type spacePayload struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	BaseCurrency string `json:"baseCurrency"`
	Icon         string `json:"icon,omitempty"`
	CreatedBy    string `json:"createdBy"`
}

func toSpacePayload(s core.Space) spacePayload {
	return spacePayload{
		ID:           s.ID,
		Name:         s.Name,
		BaseCurrency: string(s.BaseCurrency),
		Icon:         s.Icon,
		CreatedBy:    s.CreatedBy,
	}
}

func (s *Server) handleCreateSpace(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Name         string `json:"name"`
		BaseCurrency string `json:"baseCurrency"`
		Icon         string `json:"icon"`
	}
	if err := decodeJSON(w, r, &payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	space := core.Space{
		ID:           uuid.NewString(),
		Name:         payload.Name,
		BaseCurrency: core.Currency(payload.BaseCurrency),
		Icon:         payload.Icon,
		CreatedBy:    userID(r.Context()),
		CreatedAt:    time.Now().UTC(),
	}
	if err := space.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.storage.CreateSpace(r.Context(), space); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, toSpacePayload(space))
}

func (s *Server) handleListSpaces(w http.ResponseWriter, r *http.Request) {
	spaces, err := s.storage.ListSpacesForUser(r.Context(), userID(r.Context()))
	if err != nil {
		respondDomainError(w, err)
		return
	}

	payloads := make([]spacePayload, 0, len(spaces))
	for _, space := range spaces {
		payloads = append(payloads, toSpacePayload(space))
	}
	respondJSON(w, http.StatusOK, payloads)
}

func (s *Server) handleGetSpace(w http.ResponseWriter, r *http.Request) {
	space, err := s.storage.GetSpace(r.Context(), r.PathValue("spaceID"))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toSpacePayload(space))
}

func (s *Server) handleListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := s.storage.ListMembers(r.Context(), r.PathValue("spaceID"))
	if err != nil {
		respondDomainError(w, err)
		return
	}

	type memberPayload struct {
		UserID    string `json:"userId"`
		Name      string `json:"name"`
		Email     string `json:"email"`
		AvatarURL string `json:"avatarUrl,omitempty"`
		Role      string `json:"role"`
	}
	payloads := make([]memberPayload, 0, len(members))
	for _, m := range members {
		payloads = append(payloads, memberPayload{
			UserID:    m.User.ID,
			Name:      m.User.Name,
			Email:     m.User.Email,
			AvatarURL: m.User.AvatarURL,
			Role:      string(m.Membership.Role),
		})
	}
	respondJSON(w, http.StatusOK, payloads)
}

func (s *Server) handleCreateInvite(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Role string `json:"role"`
	}
	if err := decodeJSON(w, r, &payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.Role == "" {
		payload.Role = string(core.RoleEditor)
	}
	role := core.Role(payload.Role)
	if err := role.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	token, err := generateToken()
	if err != nil {
		respondDomainError(w, err)
		return
	}
	invite := core.InviteToken{
		Token:     token,
		SpaceID:   r.PathValue("spaceID"),
		Role:      role,
		CreatedBy: userID(r.Context()),
		ExpiresAt: time.Now().UTC().Add(s.cfg.InviteTTL),
	}
	if err := s.storage.CreateInvite(r.Context(), invite); err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{
		"token":     invite.Token,
		"url":       s.cfg.BaseURL + "/api/invites/" + invite.Token + "/join",
		"role":      string(invite.Role),
		"expiresAt": invite.ExpiresAt,
	})
}

func (s *Server) handleJoinInvite(w http.ResponseWriter, r *http.Request) {
	invite, err := s.storage.GetInvite(r.Context(), r.PathValue("token"), time.Now().UTC())
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, http.StatusNotFound, "invite invalid or expired")
			return
		}
		respondDomainError(w, err)
		return
	}

	membership, err := s.storage.AddMember(r.Context(), userID(r.Context()), invite.SpaceID, invite.Role)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"spaceId": membership.SpaceID,
		"role":    string(membership.Role),
	})
}

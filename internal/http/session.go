package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"splitwise/internal/core"
	"splitwise/internal/log"
	"splitwise/internal/storage"
)

const sessionCookieName = "session"

type contextKey string

const userIDKey contextKey = "userID"

// userID returns the authenticated user stored by requireSession.
func userID(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}

// requireSession resolves the session cookie to a user and rejects
// unauthenticated requests.
func (s *Server) requireSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(sessionCookieName)
		if err != nil {
			respondError(w, http.StatusUnauthorized, "authentication required")
			return
		}

		uid, err := s.storage.GetSessionUser(r.Context(), cookie.Value, time.Now().UTC())
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				respondError(w, http.StatusUnauthorized, "session expired")
				return
			}
			respondDomainError(w, err)
			return
		}

		next(w, r.WithContext(context.WithValue(r.Context(), userIDKey, uid)))
	}
}

// requireMember additionally checks the user belongs to the space in the
// path.
func (s *Server) requireMember(next http.HandlerFunc) http.HandlerFunc {
	return s.requireSession(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := s.membership(w, r); !ok {
			return
		}
		next(w, r)
	})
}

// requireEditor checks for a role allowed to write ledger events.
func (s *Server) requireEditor(next http.HandlerFunc) http.HandlerFunc {
	return s.requireSession(func(w http.ResponseWriter, r *http.Request) {
		m, ok := s.membership(w, r)
		if !ok {
			return
		}
		if !m.Role.CanEdit() {
			respondError(w, http.StatusForbidden, "viewer role cannot modify the ledger")
			return
		}
		next(w, r)
	})
}

func (s *Server) membership(w http.ResponseWriter, r *http.Request) (core.Membership, bool) {
	spaceID := r.PathValue("spaceID")
	m, err := s.storage.GetMembership(r.Context(), userID(r.Context()), spaceID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// Non-members cannot probe which spaces exist.
			respondError(w, http.StatusNotFound, "not found")
			return core.Membership{}, false
		}
		respondDomainError(w, err)
		return core.Membership{}, false
	}
	return m, true
}

type magicRequestPayload struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// handleMagicRequest issues a single-use sign-in link. Without a mailer the
// link is written to the log; the response never reveals whether the email
// was known before.
func (s *Server) handleMagicRequest(w http.ResponseWriter, r *http.Request) {
	var payload magicRequestPayload
	if err := decodeJSON(w, r, &payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	email := strings.TrimSpace(payload.Email)
	if email == "" || !strings.Contains(email, "@") {
		respondError(w, http.StatusBadRequest, "valid email required")
		return
	}

	user, err := s.storage.GetOrCreateUserByEmail(r.Context(), email, payload.Name)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	token, err := generateToken()
	if err != nil {
		respondDomainError(w, err)
		return
	}
	expiresAt := time.Now().UTC().Add(s.cfg.MagicLinkTTL)
	if err := s.storage.CreateMagicLink(r.Context(), token, user.ID, expiresAt); err != nil {
		respondDomainError(w, err)
		return
	}

	link := fmt.Sprintf("%s/api/auth/magic/verify?token=%s", s.cfg.BaseURL, token)
	s.logger.InfoContext(r.Context(), "Magic link issued",
		log.FieldUserID, user.ID,
		"link", link)

	respondJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
}

// handleMagicVerify consumes the token and establishes a session cookie.
func (s *Server) handleMagicVerify(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		respondError(w, http.StatusBadRequest, "token required")
		return
	}

	uid, err := s.storage.ConsumeMagicLink(r.Context(), token, time.Now().UTC())
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, http.StatusUnauthorized, "invalid or expired link")
			return
		}
		respondDomainError(w, err)
		return
	}

	sessionToken, err := generateToken()
	if err != nil {
		respondDomainError(w, err)
		return
	}
	expiresAt := time.Now().UTC().Add(s.cfg.SessionTTL)
	if err := s.storage.CreateSession(r.Context(), sessionToken, uid, expiresAt); err != nil {
		respondDomainError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    sessionToken,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	respondJSON(w, http.StatusOK, map[string]string{"status": "signed in"})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		_ = s.storage.DeleteSession(r.Context(), cookie.Value)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	respondJSON(w, http.StatusOK, map[string]string{"status": "signed out"})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user, err := s.storage.GetUser(r.Context(), userID(r.Context()))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"id":              user.ID,
		"name":            user.Name,
		"email":           user.Email,
		"avatarUrl":       user.AvatarURL,
		"defaultCurrency": user.DefaultCurrency,
	})
}

// Package http exposes the ledger over a JSON API: magic-link auth, spaces
// and invites, expenses with revisions, settlements, balances, settle plans,
// and CSV export.
package http

import (
	"context"
	"net/http"
	"time"

	"splitwise/internal/config"
	"splitwise/internal/log"
	"splitwise/internal/services"
	"splitwise/internal/storage"
)

type Server struct {
	*http.Server

	cfg         *config.Config
	storage     *storage.SQLiteRepository
	expenses    *services.ExpenseService
	settlements *services.SettlementService
	balances    *services.BalanceService
	fx          *services.FxService
	limiter     *rateLimiter
	logger      *log.Logger
}

// NewServer wires the routes and middleware, returning a ready-to-run
// server.
func NewServer(cfg *config.Config, repo *storage.SQLiteRepository, expenses *services.ExpenseService, settlements *services.SettlementService, balances *services.BalanceService, fx *services.FxService, logger *log.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: &http.Server{
			Addr:              ":" + cfg.Port,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		cfg:         cfg,
		storage:     repo,
		expenses:    expenses,
		settlements: settlements,
		balances:    balances,
		fx:          fx,
		limiter:     newRateLimiter(),
		logger:      logger.WithComponent(log.ComponentHTTP),
	}

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("POST /api/auth/magic/request", s.protect(s.handleMagicRequest))
	mux.HandleFunc("GET /api/auth/magic/verify", s.protect(s.handleMagicVerify))
	mux.HandleFunc("POST /api/auth/logout", s.protect(s.handleLogout))
	mux.HandleFunc("GET /api/me", s.protect(s.requireSession(s.handleMe)))

	mux.HandleFunc("POST /api/spaces", s.protect(s.requireSession(s.handleCreateSpace)))
	mux.HandleFunc("GET /api/spaces", s.protect(s.requireSession(s.handleListSpaces)))
	mux.HandleFunc("GET /api/spaces/{spaceID}", s.protect(s.requireMember(s.handleGetSpace)))
	mux.HandleFunc("GET /api/spaces/{spaceID}/members", s.protect(s.requireMember(s.handleListMembers)))
	mux.HandleFunc("POST /api/spaces/{spaceID}/invites", s.protect(s.requireEditor(s.handleCreateInvite)))
	mux.HandleFunc("POST /api/invites/{token}/join", s.protect(s.requireSession(s.handleJoinInvite)))

	mux.HandleFunc("POST /api/spaces/{spaceID}/expenses", s.protect(s.requireEditor(s.handleCreateExpense)))
	mux.HandleFunc("GET /api/spaces/{spaceID}/expenses", s.protect(s.requireMember(s.handleListExpenses)))
	mux.HandleFunc("GET /api/spaces/{spaceID}/expenses/{expenseID}", s.protect(s.requireMember(s.handleGetExpense)))
	mux.HandleFunc("PATCH /api/spaces/{spaceID}/expenses/{expenseID}", s.protect(s.requireEditor(s.handleReviseExpense)))
	mux.HandleFunc("DELETE /api/spaces/{spaceID}/expenses/{expenseID}", s.protect(s.requireEditor(s.handleDeleteExpense)))
	mux.HandleFunc("GET /api/spaces/{spaceID}/expenses/{expenseID}/revisions", s.protect(s.requireMember(s.handleListRevisions)))

	mux.HandleFunc("POST /api/spaces/{spaceID}/settlements", s.protect(s.requireEditor(s.handleCreateSettlement)))
	mux.HandleFunc("GET /api/spaces/{spaceID}/settlements", s.protect(s.requireMember(s.handleListSettlements)))

	mux.HandleFunc("GET /api/spaces/{spaceID}/balances", s.protect(s.requireMember(s.handleBalances)))
	mux.HandleFunc("GET /api/spaces/{spaceID}/settle-plan", s.protect(s.requireMember(s.handleSettlePlan)))
	mux.HandleFunc("GET /api/spaces/{spaceID}/export.csv", s.protect(s.requireMember(s.handleExportCSV)))

	mux.HandleFunc("GET /api/fx/latest", s.protect(s.handleFxLatest))

	return s
}

// protect applies security headers, the per-IP rate limit, and request
// logging.
func (s *Server) protect(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cache-Control", "no-store")

		clientIP := extractClientIP(r)
		if !s.limiter.allow(clientIP) {
			s.logger.WarnContext(r.Context(), "Rate limit exceeded", log.FieldClientIP, clientIP)
			respondError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		requestID := generateRequestID()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next(rw, r)

		s.logger.InfoContext(r.Context(), "Request handled",
			log.FieldRequestID, requestID,
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path,
			log.FieldStatusCode, rw.status,
			log.FieldDuration, time.Since(start).Milliseconds(),
			log.FieldClientIP, clientIP)
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady also checks the database is reachable.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if _, err := s.storage.ListSpacesForUser(r.Context(), "readiness-probe"); err != nil {
		respondError(w, http.StatusServiceUnavailable, "database not ready")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// Shutdown stops background goroutines and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.limiter.stop()
	return s.Server.Shutdown(ctx)
}

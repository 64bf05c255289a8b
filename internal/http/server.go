// Package http exposes the library over a JSON API.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yslanlopes12/biblioteca-sistema/internal/auth"
	"github.com/yslanlopes12/biblioteca-sistema/internal/catalog"
	"github.com/yslanlopes12/biblioteca-sistema/internal/circulation"
	"github.com/yslanlopes12/biblioteca-sistema/internal/config"
	"github.com/yslanlopes12/biblioteca-sistema/internal/crypto"
	"github.com/yslanlopes12/biblioteca-sistema/internal/directory"
	"github.com/yslanlopes12/biblioteca-sistema/internal/model"
)

// Store is the slice of the repository the handlers reach directly, without a
// service in between.
type Store interface {
	GetPersonByID(ctx context.Context, id int64) (model.Person, error)

	CreateItem(ctx context.Context, it *model.Item) error
	GetItem(ctx context.Context, id int64) (model.Item, error)
	GetItemByCode(ctx context.Context, code string) (model.Item, error)
	SearchItemsByTitle(ctx context.Context, title string) ([]model.Item, error)
	UpdateItem(ctx context.Context, it model.Item) error

	GetLoan(ctx context.Context, id int64) (model.Loan, error)
	ListHistoryByPerson(ctx context.Context, personID int64) ([]model.HistoryEntry, error)

	MarkFinePaid(ctx context.Context, fineID int64) error
	ListFinesByPerson(ctx context.Context, personID int64) ([]model.Fine, error)

	UpsertPolicy(ctx context.Context, p model.LoanPolicy) error
	ListPolicies(ctx context.Context) ([]model.LoanPolicy, error)

	CancelWaitlist(ctx context.Context, personID, itemID int64) error
	ListWaitlistByItem(ctx context.Context, itemID int64) ([]model.WaitlistEntry, error)

	CreateRefreshSession(ctx context.Context, session model.RefreshSession) error
	GetRefreshSession(ctx context.Context, tokenHash string) (model.RefreshSession, error)
	RevokeRefreshSession(ctx context.Context, id string, at time.Time) error
	RevokeRefreshSessionsByPerson(ctx context.Context, personID int64, at time.Time) error
}

type Server struct {
	cfg         config.Config
	store       Store
	directory   *directory.Service
	catalog     *catalog.Service
	circulation *circulation.Manager
	revoker     auth.Revoker
}

func NewServer(cfg config.Config, store Store, dir *directory.Service, cat *catalog.Service, circ *circulation.Manager, revoker auth.Revoker) *Server {
	return &Server{
		cfg:         cfg,
		store:       store,
		directory:   dir,
		catalog:     cat,
		circulation: circ,
		revoker:     revoker,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/auth/login", s.handleLogin)
	r.Post("/auth/refresh", s.handleRefresh)
	r.With(s.authMiddleware).Post("/auth/logout", s.handleLogout)
	r.With(s.authMiddleware).Get("/auth/me", s.handleGetMe)

	r.Route("/persons", func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.With(s.requireLibrarian).Post("/", s.handleCreatePerson)
		r.Get("/", s.handleSearchPersons)
		r.Get("/{personID}", s.handleGetPerson)
		r.With(s.requireLibrarian).Patch("/{personID}", s.handlePatchPerson)
		r.With(s.requireLibrarian).Post("/{personID}/status", s.handleSetPersonStatus)
		r.With(s.requireLibrarian).Get("/{personID}/audit", s.handlePersonAudit)
		r.Get("/{personID}/history", s.handlePersonHistory)
		r.Get("/{personID}/fines", s.handlePersonFines)
		r.Get("/{personID}/loans", s.handlePersonLoans)
	})

	r.Route("/items", func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.With(s.requireLibrarian).Post("/", s.handleCreateItem)
		r.Get("/", s.handleSearchItems)
		r.Get("/{itemID}", s.handleGetItem)
		r.With(s.requireLibrarian).Patch("/{itemID}", s.handlePatchItem)
		r.Get("/{itemID}/availability", s.handleItemAvailability)
		r.With(s.requireLibrarian).Get("/{itemID}/waitlist", s.handleListWaitlist)
		r.Post("/{itemID}/waitlist", s.handleEnrollWaitlist)
		r.Delete("/{itemID}/waitlist/{personID}", s.handleCancelWaitlist)
	})

	r.Route("/loans", func(r chi.Router) {
		r.Use(s.authMiddleware, s.requireLibrarian)
		r.Post("/", s.handleCheckout)
		r.Post("/check", s.handleEligibilityCheck)
		r.Get("/", s.handleListLoans)
		r.Post("/{loanID}/return", s.handleReturn)
	})

	r.Route("/fines", func(r chi.Router) {
		r.Use(s.authMiddleware, s.requireLibrarian)
		r.Post("/{fineID}/pay", s.handlePayFine)
	})

	r.Route("/policies", func(r chi.Router) {
		r.Use(s.authMiddleware, s.requireLibrarian)
		r.Get("/", s.handleListPolicies)
		r.Put("/", s.handleUpsertPolicy)
	})

	return r
}

type loginRequest struct {
	CPF      string `json:"cpf"`
	Password string `json:"password"`
}

type authResponse struct {
	AccessToken  string        `json:"accessToken"`
	RefreshToken string        `json:"refreshToken"`
	Person       personSummary `json:"person"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	req.CPF = strings.TrimSpace(req.CPF)
	if req.CPF == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing_credentials")
		return
	}

	person, err := s.directory.Authenticate(r.Context(), req.CPF, req.Password)
	if err != nil {
		if errors.Is(err, directory.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid_credentials")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	accessToken, refreshToken, err := s.issueTokens(r.Context(), person, r.UserAgent(), clientIP(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "token_error")
		return
	}

	writeJSON(w, http.StatusOK, authResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		Person:       mapPersonSummary(person),
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "missing_refresh_token")
		return
	}

	session, err := s.store.GetRefreshSession(r.Context(), crypto.HashToken(req.RefreshToken))
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "invalid_refresh_token")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	if session.RevokedAt != nil || session.ExpiresAt.Before(time.Now().UTC()) {
		writeError(w, http.StatusUnauthorized, "refresh_token_expired")
		return
	}

	person, err := s.store.GetPersonByID(r.Context(), session.PersonID)
	if err != nil || person.Status != model.PersonActive {
		writeError(w, http.StatusUnauthorized, "person_not_active")
		return
	}

	if err := s.store.RevokeRefreshSession(r.Context(), session.ID, time.Now().UTC()); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	accessToken, refreshToken, err := s.issueTokens(r.Context(), person, r.UserAgent(), clientIP(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "token_error")
		return
	}

	writeJSON(w, http.StatusOK, authResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		Person:       mapPersonSummary(person),
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}

	now := time.Now().UTC()
	_ = s.store.RevokeRefreshSessionsByPerson(r.Context(), claims.PersonID, now)
	if s.revoker != nil && claims.ExpiresAt != nil {
		_ = s.revoker.Revoke(r.Context(), claims.ID, claims.ExpiresAt.Sub(now))
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGetMe(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}
	person, err := s.store.GetPersonByID(r.Context(), claims.PersonID)
	if err != nil {
		writeError(w, http.StatusNotFound, "person_not_found")
		return
	}
	writeJSON(w, http.StatusOK, mapPersonSummary(person))
}

func (s *Server) issueTokens(ctx context.Context, person model.Person, userAgent, ip string) (string, string, error) {
	accessToken, err := auth.NewAccessToken(s.cfg.JWTSecret, s.cfg.JWTIssuer, s.cfg.AccessTokenTTL, auth.Claims{
		PersonID: person.ID,
		Category: person.Category,
	})
	if err != nil {
		return "", "", err
	}

	refreshToken, err := crypto.NewRefreshToken()
	if err != nil {
		return "", "", err
	}

	now := time.Now().UTC()
	session := model.RefreshSession{
		ID:        uuid.NewString(),
		PersonID:  person.ID,
		TokenHash: crypto.HashToken(refreshToken),
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.RefreshTokenTTL),
	}
	if userAgent != "" {
		session.UserAgent = &userAgent
	}
	if ip != "" {
		session.IPAddress = &ip
	}
	if err := s.store.CreateRefreshSession(ctx, session); err != nil {
		return "", "", err
	}

	return accessToken, refreshToken, nil
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing_token")
			return
		}

		claims, err := auth.ParseToken(s.cfg.JWTSecret, s.cfg.JWTIssuer, token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid_token")
			return
		}
		if s.revoker != nil {
			revoked, err := s.revoker.IsRevoked(r.Context(), claims.ID)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "server_error")
				return
			}
			if revoked {
				writeError(w, http.StatusUnauthorized, "token_revoked")
				return
			}
		}

		ctx := context.WithValue(r.Context(), claimsKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireLibrarian guards the operations reserved for library staff.
func (s *Server) requireLibrarian(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := claimsFromContext(r.Context())
		if claims == nil || claims.Category != model.CategoryLibrarian {
			writeError(w, http.StatusForbidden, "librarian_only")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type claimsKey struct{}

func claimsFromContext(ctx context.Context) *auth.Claims {
	value := ctx.Value(claimsKey{})
	claims, _ := value.(*auth.Claims)
	return claims
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	return ""
}

func decodeJSON(r *http.Request, out interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

// writeServiceError maps the service-layer error taxonomy onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	var vErr *model.ValidationError
	if errors.As(err, &vErr) {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":  "validation_failed",
			"field":  vErr.Field,
			"reason": vErr.Reason,
		})
		return
	}
	var pErr *model.PolicyViolation
	if errors.As(err, &pErr) {
		writeJSON(w, http.StatusConflict, map[string]string{
			"error":  "policy_violation",
			"reason": pErr.Reason,
		})
		return
	}
	if errors.Is(err, model.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	if errors.Is(err, model.ErrAlreadyReturned) {
		writeError(w, http.StatusConflict, "already_returned")
		return
	}
	writeError(w, http.StatusInternalServerError, "server_error")
}

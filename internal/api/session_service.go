package api

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/kashyapanjali/periskope/internal/auth"
	"github.com/kashyapanjali/periskope/internal/domain"
)

// SessionService serves the /auth endpoints.
type SessionService struct {
	auth *auth.Service
	log  *zap.Logger
}

// NewSessionService creates the sign-up, sign-in and sign-out handlers.
func NewSessionService(a *auth.Service, log *zap.Logger) *SessionService {
	return &SessionService{auth: a, log: log}
}

type signUpRequest struct {
	Email    string                  `json:"email"`
	Password string                  `json:"password"`
	Metadata domain.IdentityMetadata `json:"metadata"`
}

type tokenRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenResponse is returned by a successful password sign-in.
type TokenResponse struct {
	AccessToken string           `json:"access_token"`
	TokenType   string           `json:"token_type"`
	Identity    *domain.Identity `json:"identity"`
}

func (s *SessionService) SignUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ident, err := s.auth.SignUp(req.Email, req.Password, req.Metadata)
	switch {
	case errors.Is(err, auth.ErrRateLimited):
		w.Header().Set("Retry-After", "2")
		writeError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, auth.ErrEmailTaken):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		s.log.Error("sign-up failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	default:
		writeJSON(w, http.StatusCreated, ident)
	}
}

func (s *SessionService) Token(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	token, ident, err := s.auth.SignIn(req.Email, req.Password)
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, err.Error())
	case err != nil:
		s.log.Error("sign-in failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	default:
		writeJSON(w, http.StatusOK, TokenResponse{AccessToken: token, TokenType: "bearer", Identity: ident})
	}
}

func (s *SessionService) User(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, callerFrom(r.Context()).Identity)
}

func (s *SessionService) Logout(w http.ResponseWriter, r *http.Request) {
	c := callerFrom(r.Context())
	s.auth.Revoke(c.Claims)
	s.log.Info("token revoked", zap.String("identity", c.Identity.ID))
	w.WriteHeader(http.StatusNoContent)
}

package httpserver

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/Clark-Hu/reelrate/internal/auth"
)

type registerRequest struct {
	Username string `json:"username" validate:"required,min=3,max=32,alphanum"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type userResponse struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
	Email    string    `json:"email"`
}

type sessionResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expiresAt"`
	User      userResponse `json:"user"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}
	session, err := s.accounts.Register(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		s.respondServiceError(w, err, "register user")
		return
	}
	s.respondJSON(w, http.StatusCreated, toSessionResponse(session))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}
	session, err := s.accounts.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		s.respondServiceError(w, err, "log in")
		return
	}
	s.respondJSON(w, http.StatusOK, toSessionResponse(session))
}

func toSessionResponse(session auth.Session) sessionResponse {
	return sessionResponse{
		Token:     session.Token,
		ExpiresAt: session.ExpiresAt,
		User: userResponse{
			ID:       session.User.ID,
			Username: session.User.Username,
			Email:    session.User.Email,
		},
	}
}

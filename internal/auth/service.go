// Package auth handles accounts, password hashing, access tokens and the
// middleware that resolves a request to a Principal.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Clark-Hu/reelrate/internal/domain"
	"github.com/Clark-Hu/reelrate/internal/repository"
)

// ErrInvalidCredentials is returned by Login for an unknown user or a wrong
// password.
var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrUserExists is returned by Register when the username or email is taken.
var ErrUserExists = errors.New("user already exists")

// UserStore is the persistence the service needs. repository.UsersRepository
// satisfies it.
type UserStore interface {
	Create(ctx context.Context, user domain.User) (domain.User, error)
	GetByUsername(ctx context.Context, username string) (domain.User, error)
}

// Session is the result of a successful Register or Login.
type Session struct {
	User      domain.User
	Token     string
	ExpiresAt time.Time
}

// Service registers and logs in users.
type Service struct {
	users  UserStore
	tokens *Tokens
	logger zerolog.Logger
}

// NewService builds a Service.
func NewService(users UserStore, tokens *Tokens, logger zerolog.Logger) *Service {
	return &Service{users: users, tokens: tokens, logger: logger}
}

// Register creates an account and returns a session for it.
func (s *Service) Register(ctx context.Context, username, email, password string) (Session, error) {
	username = strings.TrimSpace(username)
	email = strings.ToLower(strings.TrimSpace(email))
	if username == "" {
		return Session{}, &domain.ValidationError{Field: "username", Message: "username is required"}
	}
	if len(password) < MinPasswordLength {
		return Session{}, &domain.ValidationError{Field: "password", Message: fmt.Sprintf("password must be at least %d characters", MinPasswordLength)}
	}

	hash, err := HashPassword(password)
	if err != nil {
		return Session{}, err
	}
	user, err := s.users.Create(ctx, domain.User{
		ID:           uuid.New(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
	})
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return Session{}, ErrUserExists
		}
		return Session{}, &domain.StorageError{Op: "create user", Err: err}
	}
	s.logger.Info().Str("user", user.ID.String()).Str("username", user.Username).Msg("user registered")
	return s.session(user)
}

// Login verifies credentials and returns a fresh session.
func (s *Service) Login(ctx context.Context, username, password string) (Session, error) {
	user, err := s.users.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, &domain.StorageError{Op: "get user", Err: err}
	}
	ok, err := CheckPassword(user.PasswordHash, password)
	if err != nil {
		s.logger.Error().Err(err).Str("user", user.ID.String()).Msg("stored password hash unreadable")
		return Session{}, ErrInvalidCredentials
	}
	if !ok {
		return Session{}, ErrInvalidCredentials
	}
	return s.session(user)
}

func (s *Service) session(user domain.User) (Session, error) {
	token, expires, err := s.tokens.Issue(user.ID, user.Username)
	if err != nil {
		return Session{}, err
	}
	return Session{User: user, Token: token, ExpiresAt: expires}, nil
}

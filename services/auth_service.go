package services

import (
	"chat-core/auth"
	"chat-core/domain"
	"chat-core/errors"
	"chat-core/repositories"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

type IAuthService interface {
	Register(ctx context.Context, cmd domain.RegisterCommand) (Session, error)
	Login(ctx context.Context, email, password string) (Session, error)
}

// Session is what a client gets back once identified.
type Session struct {
	Token string         `json:"accessToken"`
	User  domain.Profile `json:"user"`
}

type AuthService struct {
	users  repositories.IUserRepository
	index  repositories.IUserIndex
	tokens *auth.TokenManager
	log    *slog.Logger
}

func NewAuthService(users repositories.IUserRepository, index repositories.IUserIndex,
	tokens *auth.TokenManager, log *slog.Logger) *AuthService {
	return &AuthService{users: users, index: index, tokens: tokens, log: log}
}

func (s *AuthService) Register(ctx context.Context, cmd domain.RegisterCommand) (Session, error) {
	request := auth.RegisterRequest{
		Username: strings.TrimSpace(cmd.Username),
		Email:    strings.TrimSpace(cmd.Email),
		FullName: strings.TrimSpace(cmd.FullName),
		Password: cmd.Password,
	}
	// Validation runs before any expensive hashing
	if err := auth.ValidateRegister(request); err != nil {
		return Session{}, err
	}
	hash, err := auth.HashPassword(request.Password)
	if err != nil {
		return Session{}, fmt.Errorf("hash password: %w", err)
	}

	user := domain.User{
		ID:           uuid.NewString(),
		Username:     strings.ToLower(request.Username),
		Email:        strings.ToLower(request.Email),
		FullName:     request.FullName,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	if err = s.users.Create(ctx, user); err != nil {
		return Session{}, err
	}
	if err = s.index.Index(user); err != nil {
		s.log.Warn("User stored but not searchable", "user_id", user.ID, "error", err)
	}
	s.log.Info("User registered", "user_id", user.ID)
	return s.session(user)
}

// Login answers the same error for an unknown email and a wrong password.
func (s *AuthService) Login(ctx context.Context, email, password string) (Session, error) {
	if err := auth.ValidateLogin(auth.LoginRequest{Email: strings.TrimSpace(email), Password: password}); err != nil {
		return Session{}, err
	}
	user, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, errors.ErrUserNotFound) {
		return Session{}, errors.ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, err
	}
	match, err := auth.ComparePassword(password, user.PasswordHash)
	if err != nil || !match {
		return Session{}, errors.ErrInvalidCredentials
	}
	return s.session(user)
}

func (s *AuthService) session(user domain.User) (Session, error) {
	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, User: user.Profile()}, nil
}

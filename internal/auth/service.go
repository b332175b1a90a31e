// Package auth signs users in and tracks the session of each client.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"taskboard/internal/model"
	"taskboard/internal/repository"
)

// ProviderTelegram identifies accounts vouched for by Telegram.
const ProviderTelegram = "telegram"

// Identity is a user vouched for by an external provider.
type Identity struct {
	Provider    string
	Subject     string
	DisplayName string
	AvatarURL   string
}

// Service implements account operations. It holds no session state.
type Service struct {
	users  *repository.UserRepository
	hasher *PasswordHasher
	tokens *TokenManager
}

func NewService(users *repository.UserRepository, hasher *PasswordHasher, tokens *TokenManager) *Service {
	return &Service{users: users, hasher: hasher, tokens: tokens}
}

// SignUp registers an email account and signs it in.
func (s *Service) SignUp(ctx context.Context, email, password, displayName string) (model.Session, error) {
	email = normalizeEmail(email)
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		return model.Session{}, ErrInvalidEmail
	}
	if len(password) < 8 {
		return model.Session{}, ErrWeakPassword
	}
	if len(password) > 72 {
		return model.Session{}, ErrPasswordTooLong
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return model.Session{}, fmt.Errorf("hash password: %w", err)
	}

	user := &model.User{
		ID:           uuid.New().String(),
		Email:        &email,
		DisplayName:  strings.TrimSpace(displayName),
		PasswordHash: hash,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			return model.Session{}, ErrAccountExists
		}
		return model.Session{}, fmt.Errorf("sign up: %w", err)
	}
	return model.SessionFromUser(*user), nil
}

// SignIn checks an email and password.
func (s *Service) SignIn(ctx context.Context, email, password string) (model.Session, error) {
	user, err := s.users.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.Session{}, ErrInvalidCredentials
		}
		return model.Session{}, fmt.Errorf("sign in: %w", err)
	}
	if user.PasswordHash == "" || !s.hasher.Verify(password, user.PasswordHash) {
		return model.Session{}, ErrInvalidCredentials
	}
	return model.SessionFromUser(*user), nil
}

// SignInFederated signs in with an identity from an external provider,
// creating the account on first use.
func (s *Service) SignInFederated(ctx context.Context, id *Identity) (model.Session, error) {
	if id == nil || id.Provider != ProviderTelegram {
		return model.Session{}, ErrFederatedUnavailable
	}
	telegramID, err := strconv.ParseInt(id.Subject, 10, 64)
	if err != nil {
		return model.Session{}, fmt.Errorf("%w: bad subject %q", ErrFederatedUnavailable, id.Subject)
	}
	user, err := s.users.UpsertFromTelegram(ctx, telegramID, uuid.New().String(), strings.TrimSpace(id.DisplayName), id.AvatarURL)
	if err != nil {
		return model.Session{}, fmt.Errorf("federated sign in: %w", err)
	}
	return model.SessionFromUser(*user), nil
}

// SignInAnonymous creates a fresh guest account.
func (s *Service) SignInAnonymous(ctx context.Context) (model.Session, error) {
	user := &model.User{
		ID:        uuid.New().String(),
		Anonymous: true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return model.Session{}, fmt.Errorf("anonymous sign in: %w", err)
	}
	return model.SessionFromUser(*user), nil
}

// SignInWithToken resumes the account a token was issued for.
func (s *Service) SignInWithToken(ctx context.Context, token string) (model.Session, error) {
	if s.tokens == nil {
		return model.Session{}, ErrTokensDisabled
	}
	claims, err := s.tokens.Verify(strings.TrimSpace(token))
	if err != nil {
		return model.Session{}, err
	}
	user, err := s.users.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.Session{}, ErrInvalidToken
		}
		return model.Session{}, fmt.Errorf("token sign in: %w", err)
	}
	return model.SessionFromUser(*user), nil
}

// IssueToken signs a token that later resumes ownerID's session.
func (s *Service) IssueToken(ownerID string) (string, error) {
	if s.tokens == nil {
		return "", ErrTokensDisabled
	}
	return s.tokens.Issue(ownerID)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

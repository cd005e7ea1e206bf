package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"drivebox.dev/api/internal/database"
	"drivebox.dev/api/internal/security"
	"drivebox.dev/api/internal/tokens"
)

type UserStore interface {
	GetUserByID(ctx context.Context, id string) (*database.DBUser, bool, error)
	CreateUser(ctx context.Context, id string, passwordHash string) error
}

type TokenIssuer interface {
	IssueAccessToken(userID string) (string, error)
	IssueRefreshToken(userID string) (string, error)
	Verify(token string, kind tokens.Kind) (string, error)
}

type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

type AuthService struct {
	users  UserStore
	tokens TokenIssuer
	policy security.PasswordPolicy
	logger logrus.FieldLogger
}

func NewAuthService(users UserStore, tokens TokenIssuer, logger logrus.FieldLogger) *AuthService {
	return &AuthService{users: users, tokens: tokens, logger: logger}
}

// WithPasswordPolicy enables an extra signup password rule. Without it any non-empty
// password is accepted.
func (s *AuthService) WithPasswordPolicy(policy security.PasswordPolicy) *AuthService {
	s.policy = policy
	return s
}

// Signup registers id with a freshly hashed password and returns a token pair for it.
func (s *AuthService) Signup(ctx context.Context, id, password string) (*TokenPair, error) {
	id = strings.TrimSpace(id)
	if id == "" || password == "" {
		return nil, fmt.Errorf("%w: id and password are required", ErrValidation)
	}
	if err := s.policy.Check(password); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	_, found, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: lookup user: %w", ErrInternal, err)
	}
	if found {
		return nil, ErrUserExists
	}

	passwordHash, err := security.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("%w: hash password: %w", ErrInternal, err)
	}

	err = s.users.CreateUser(ctx, id, passwordHash)
	if errors.Is(err, database.ErrDuplicate) { // lost a race with a concurrent signup
		return nil, ErrUserExists
	}
	if err != nil {
		return nil, fmt.Errorf("%w: create user: %w", ErrInternal, err)
	}

	s.logger.WithField("user", id).Info("User signed up")
	return s.issuePair(id)
}

// Signin checks the password and returns a token pair. Unknown ids and wrong passwords
// produce the same error.
func (s *AuthService) Signin(ctx context.Context, id, password string) (*TokenPair, error) {
	user, found, err := s.users.GetUserByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return nil, fmt.Errorf("%w: lookup user: %w", ErrInternal, err)
	}
	if !found {
		return nil, ErrInvalidCredentials
	}

	match, err := security.ComparePassword(password, user.Password)
	if err != nil {
		return nil, fmt.Errorf("%w: compare password: %w", ErrInternal, err)
	}
	if !match {
		return nil, ErrInvalidCredentials
	}

	return s.issuePair(user.ID)
}

// RenewToken exchanges a refresh token for a new access token. The refresh token is not rotated.
func (s *AuthService) RenewToken(ctx context.Context, refreshToken string) (string, error) {
	subject, err := s.tokens.Verify(refreshToken, tokens.Refresh)
	if err != nil {
		return "", ErrInvalidToken
	}

	accessToken, err := s.tokens.IssueAccessToken(subject)
	if err != nil {
		return "", fmt.Errorf("%w: issue access token: %w", ErrInternal, err)
	}
	return accessToken, nil
}

// Logout has no durable effect: refresh tokens are stateless and stay valid.
// TODO: add a refresh-token denylist checked by RenewToken once revocation is required.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) {
	s.logger.WithField("token_present", refreshToken != "").Debug("Logout requested")
}

// GetInfo echoes the authenticated subject.
func (s *AuthService) GetInfo(subject string) string {
	return subject
}

func (s *AuthService) issuePair(userID string) (*TokenPair, error) {
	access, err := s.tokens.IssueAccessToken(userID)
	if err != nil {
		return nil, fmt.Errorf("%w: issue access token: %w", ErrInternal, err)
	}
	refresh, err := s.tokens.IssueRefreshToken(userID)
	if err != nil {
		return nil, fmt.Errorf("%w: issue refresh token: %w", ErrInternal, err)
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

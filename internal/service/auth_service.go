package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/notifyhub/waitlist/internal/auth"
	"github.com/notifyhub/waitlist/internal/domain"
	"github.com/notifyhub/waitlist/internal/repository"
)

// Session is returned on successful admin login.
type Session struct {
	Admin     *domain.Admin `json:"admin"`
	Token     string        `json:"token"`
	ExpiresAt time.Time     `json:"expires_at"`
}

// AuthService authenticates administrators.
type AuthService struct {
	admins repository.AdminRepository
	tokens *auth.TokenIssuer
	logger *zap.Logger
}

func NewAuthService(admins repository.AdminRepository, tokens *auth.TokenIssuer, logger *zap.Logger) *AuthService {
	return &AuthService{admins: admins, tokens: tokens, logger: logger}
}

// Login checks the credentials and issues a bearer token. Unknown emails
// and wrong passwords are indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, req domain.LoginRequest) (*Session, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := req.Validate(); err != nil {
		return nil, err
	}

	a, err := s.admins.GetByEmail(ctx, req.Email)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !auth.CheckPassword(a.PasswordHash, req.Password) {
		s.logger.Warn("admin login rejected", zap.String("email", req.Email))
		return nil, domain.ErrInvalidCredentials
	}
	if !a.Active {
		return nil, domain.ErrAdminInactive
	}

	token, exp, err := s.tokens.Issue(a.ID)
	if err != nil {
		return nil, err
	}
	s.logger.Info("admin logged in", zap.String("admin_id", a.ID))
	return &Session{Admin: a, Token: token, ExpiresAt: exp}, nil
}

// Authenticate resolves a bearer token to an active admin. Tokens revoked
// by Logout are rejected.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*domain.Admin, error) {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return nil, err
	}
	revoked, err := s.admins.IsTokenRevoked(ctx, claims.TokenID)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, fmt.Errorf("%w: token revoked", domain.ErrUnauthorized)
	}
	a, err := s.admins.GetByID(ctx, claims.AdminID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrUnauthorized
	}
	if err != nil {
		return nil, err
	}
	if !a.Active {
		return nil, domain.ErrAdminInactive
	}
	return a, nil
}

// Logout revokes token until it would have expired anyway.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return err
	}
	if err := s.admins.RevokeToken(ctx, claims.TokenID, claims.ExpiresAt); err != nil {
		return err
	}
	s.logger.Info("admin logged out", zap.String("admin_id", claims.AdminID))
	return nil
}

// EnsureSeedAdmin creates the bootstrap administrator when no admin with
// that email exists. It reports whether an account was created.
func (s *AuthService) EnsureSeedAdmin(ctx context.Context, email, password, name string) (bool, error) {
	req := domain.LoginRequest{Email: strings.ToLower(strings.TrimSpace(email)), Password: password}
	if err := req.Validate(); err != nil {
		return false, err
	}

	_, err := s.admins.GetByEmail(ctx, req.Email)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return false, err
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return false, err
	}
	a := &domain.Admin{
		ID:           uuid.New().String(),
		Name:         name,
		Email:        req.Email,
		PasswordHash: hash,
		Role:         "admin",
		Active:       true,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.admins.Create(ctx, a); err != nil {
		if errors.Is(err, domain.ErrDuplicateEmail) {
			return false, nil
		}
		return false, err
	}
	s.logger.Info("seed admin created", zap.String("email", a.Email))
	return true, nil
}

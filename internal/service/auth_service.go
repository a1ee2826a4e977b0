package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/mileage-service/internal/auth"
	"github.com/spec-kit/mileage-service/internal/config"
	"github.com/spec-kit/mileage-service/internal/repository"
	apperrors "github.com/spec-kit/mileage-service/pkg/util"
)

// AuthService handles login, tokens and password flows for members.
type AuthService struct {
	members    repository.MemberRepository
	resets     repository.PasswordResetRepository
	tokenMgr   *auth.TokenManager
	bcryptCost int
	resetTTL   time.Duration
}

// AuthDependencies encapsulates repo requirements for auth service.
type AuthDependencies struct {
	MemberRepo        repository.MemberRepository
	PasswordResetRepo repository.PasswordResetRepository
}

// NewAuthService builds the service.
func NewAuthService(cfg config.Config, deps AuthDependencies) *AuthService {
	return &AuthService{
		members:    deps.MemberRepo,
		resets:     deps.PasswordResetRepo,
		tokenMgr:   auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes),
		bcryptCost: cfg.Auth.BcryptCost,
		resetTTL:   time.Duration(cfg.Auth.PasswordResetTTLMinutes) * time.Minute,
	}
}

// Login authenticates an active member. Soft-deleted members cannot log in
// because the email lookup only sees active rows.
func (s *AuthService) Login(ctx context.Context, email, password string) (token string, expiresAt time.Time, err error) {
	member, err := s.members.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", time.Time{}, apperrors.NewUnauthorized("invalid credentials")
		}
		return "", time.Time{}, err
	}
	if err := auth.ComparePassword(member.PasswordHash, password); err != nil {
		return "", time.Time{}, apperrors.NewUnauthorized("invalid credentials")
	}
	return s.tokenMgr.GenerateToken(member.ID, member.Email)
}

// IssueToken signs a token for an already-verified member, used right after
// registration.
func (s *AuthService) IssueToken(memberID int64, email string) (string, time.Time, error) {
	return s.tokenMgr.GenerateToken(memberID, email)
}

// RequestPasswordReset persists a single-use reset token for the member email.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) (*repository.PasswordResetToken, error) {
	email = normalizeEmail(email)
	member, err := s.members.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("member", map[string]any{"email": email})
		}
		return nil, err
	}

	token := &repository.PasswordResetToken{
		MemberID:  member.ID,
		Token:     uuid.NewString(),
		ExpiresAt: time.Now().Add(s.resetTTL),
	}
	if err := s.resets.Create(ctx, token); err != nil {
		return nil, err
	}
	return token, nil
}

// ConfirmPasswordReset validates the reset token and updates the password.
func (s *AuthService) ConfirmPasswordReset(ctx context.Context, tokenStr, newPassword string) error {
	if n := len([]rune(newPassword)); n < 6 || n > 20 {
		return apperrors.NewValidationError("password must be 6-20 characters", nil)
	}

	token, err := s.resets.GetByToken(ctx, tokenStr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewUnauthorized("invalid reset token")
		}
		return err
	}
	if token.UsedAt != nil || time.Now().After(token.ExpiresAt) {
		return apperrors.NewUnauthorized("reset token expired or used")
	}

	hash, err := auth.HashPassword(newPassword, s.bcryptCost)
	if err != nil {
		return err
	}

	member, err := s.members.GetByID(ctx, token.MemberID)
	if err != nil {
		return err
	}
	member.PasswordHash = hash
	if err := s.members.Update(ctx, member); err != nil {
		return err
	}

	return s.resets.MarkUsed(ctx, token.ID)
}

// ChangePassword verifies the current password before updating to a new hash.
func (s *AuthService) ChangePassword(ctx context.Context, memberID int64, currentPassword, newPassword string) error {
	if n := len([]rune(newPassword)); n < 6 || n > 20 {
		return apperrors.NewValidationError("password must be 6-20 characters", nil)
	}

	member, err := s.members.GetByID(ctx, memberID)
	if err != nil {
		return err
	}
	if err := auth.ComparePassword(member.PasswordHash, currentPassword); err != nil {
		return apperrors.NewUnauthorized("invalid credentials")
	}

	hash, err := auth.HashPassword(newPassword, s.bcryptCost)
	if err != nil {
		return err
	}
	member.PasswordHash = hash
	return s.members.Update(ctx, member)
}

// TokenManager exposes the underlying token manager for middleware usage.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}

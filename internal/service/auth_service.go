package service

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/issue-tracker/internal/auth"
	"github.com/spec-kit/issue-tracker/internal/config"
	"github.com/spec-kit/issue-tracker/internal/domain"
	"github.com/spec-kit/issue-tracker/internal/notify"
	"github.com/spec-kit/issue-tracker/internal/policy"
	"github.com/spec-kit/issue-tracker/internal/repository"
	apperrors "github.com/spec-kit/issue-tracker/pkg/errorutil"
)

// AuthService coordinates registration, login and password reset flows.
type AuthService struct {
	users      repository.UserRepository
	resets     repository.PasswordResetRepository
	tokens     *auth.TokenManager
	notifier   notify.Notifier
	logger     *zap.Logger
	bcryptCost int
	appURL     string
}

// AuthDependencies encapsulates collaborators for the auth service.
type AuthDependencies struct {
	UserRepo          repository.UserRepository
	PasswordResetRepo repository.PasswordResetRepository
	Tokens            *auth.TokenManager
	Notifier          notify.Notifier
	Logger            *zap.Logger
}

// RegisterInput describes a new account. Role is only a request; the granted
// role depends on the caller.
type RegisterInput struct {
	Email    string
	Password string
	Name     string
	Role     domain.Role
}

// AuthResult carries an issued access token.
type AuthResult struct {
	User      *domain.User
	Token     string
	ExpiresAt time.Time
}

// NewAuthService builds the service.
func NewAuthService(cfg config.Config, deps AuthDependencies) *AuthService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = notify.NewLogNotifier(logger)
	}
	return &AuthService{
		users:      deps.UserRepo,
		resets:     deps.PasswordResetRepo,
		tokens:     deps.Tokens,
		notifier:   notifier,
		logger:     logger,
		bcryptCost: cfg.Auth.BcryptCost,
		appURL:     strings.TrimRight(cfg.Notification.AppURL, "/"),
	}
}

// Register creates an account. Only a caller already verified as admin can
// grant the admin role; every other request gets customer.
func (s *AuthService) Register(ctx context.Context, input RegisterInput, caller *domain.Principal) (*domain.User, error) {
	email := strings.TrimSpace(input.Email)
	if email == "" || input.Password == "" {
		return nil, apperrors.NewValidationError("email and password required", nil)
	}

	hash, err := auth.HashPassword(input.Password, s.bcryptCost)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	user := &domain.User{
		Name:         strings.TrimSpace(input.Name),
		Email:        email,
		PasswordHash: hash,
		Role:         policy.RegistrationRole(input.Role, caller),
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperrors.NewConflict("user already exists", map[string]any{"email": email})
		}
		return nil, apperrors.NewInternalError(err)
	}

	s.logger.Info("user registered", zap.String("user_id", user.ID), zap.String("role", string(user.Role)))
	return user, nil
}

// Login verifies the password and issues an access token.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewInvalidCredential("invalid credentials", nil)
		}
		return nil, apperrors.NewInternalError(err)
	}
	if err := auth.ComparePassword(user.PasswordHash, password); err != nil {
		return nil, apperrors.NewInvalidCredential("invalid credentials", nil)
	}
	return s.issue(user)
}

// Refresh issues a new token for the subject of a previously issued one. The
// signature must verify but expiry is ignored. The account is reloaded so the
// new token carries the current role.
func (s *AuthService) Refresh(ctx context.Context, token string) (*AuthResult, error) {
	if strings.TrimSpace(token) == "" {
		return nil, apperrors.NewUnauthenticated("no token provided")
	}
	claims, err := s.tokens.ParseTokenIgnoringExpiry(token)
	if err != nil {
		return nil, apperrors.NewInvalidCredential("invalid token", err)
	}

	user, err := s.users.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("user", map[string]any{"user_id": claims.Subject})
		}
		return nil, apperrors.NewInternalError(err)
	}
	return s.issue(user)
}

// ForgotPassword sends a reset link when the account exists. The result never
// reveals whether it does.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return apperrors.NewValidationError("email required", map[string]any{"field": "email"})
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return apperrors.NewInternalError(err)
	}

	token, _, err := s.tokens.GenerateResetToken(user.ID)
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	link := s.appURL + "/reset-password?token=" + url.QueryEscape(token)
	if err := s.notifier.SendPasswordReset(ctx, user.Email, link); err != nil {
		s.logger.Error("password reset delivery failed", zap.String("user_id", user.ID), zap.Error(err))
	}
	return nil
}

// ResetPassword consumes a reset token and stores the new password hash.
func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string) error {
	if token == "" || newPassword == "" {
		return apperrors.NewValidationError("token and newPassword required", nil)
	}

	claims, err := s.tokens.ParseResetToken(token)
	if err != nil {
		return apperrors.NewValidationError("invalid or expired token", nil)
	}

	user, err := s.users.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NewNotFound("user", map[string]any{"user_id": claims.Subject})
		}
		return apperrors.NewInternalError(err)
	}

	fresh, err := s.resets.MarkUsed(ctx, claims.ID, s.tokens.ResetTTL())
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	if !fresh {
		return apperrors.NewValidationError("invalid or expired token", nil)
	}

	hash, err := auth.HashPassword(newPassword, s.bcryptCost)
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	user.PasswordHash = hash
	if err := s.users.Update(ctx, user); err != nil {
		return apperrors.NewInternalError(err)
	}

	s.logger.Info("password reset", zap.String("user_id", user.ID))
	return nil
}

// TokenManager exposes the underlying token manager for middleware usage.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokens
}

func (s *AuthService) issue(user *domain.User) (*AuthResult, error) {
	token, exp, err := s.tokens.GenerateToken(domain.Principal{
		ID:    user.ID,
		Email: user.Email,
		Name:  user.Name,
		Role:  user.Role,
	})
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return &AuthResult{User: user, Token: token, ExpiresAt: exp}, nil
}

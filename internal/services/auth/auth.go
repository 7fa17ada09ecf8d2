// Package auth содержит логику регистрации, входа с привязкой устройства и проверки JWT.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/paywall/internal/lib/jwt"
	"github.com/magabrotheeeer/paywall/internal/lib/password"
	"github.com/magabrotheeeer/paywall/internal/models"
)

// AccountRepository описывает контракт для работы с учётными записями в хранилище.
type AccountRepository interface {
	// CreateAccount сохраняет новую учётную запись.
	CreateAccount(ctx context.Context, acc *models.Account) error

	// GetAccountByEmail возвращает учётную запись по почте или ErrAccountNotFound.
	GetAccountByEmail(ctx context.Context, email string) (*models.Account, error)
}

// DeviceGuard проверяет лимит устройств при входе.
type DeviceGuard interface {
	AuthorizeDevice(ctx context.Context, accountID, fingerprint, label string, isAdmin bool) error
}

// TokenMaker выпускает и проверяет JWT.
type TokenMaker interface {
	GenerateToken(accountID, email, role, deviceID string) (string, error)
	ParseToken(tokenStr string) (*jwt.CustomClaims, error)
}

// Service отвечает за регистрацию, авторизацию и валидацию JWT.
type Service struct {
	accounts    AccountRepository
	devices     DeviceGuard
	tokens      TokenMaker
	adminEmails map[string]struct{}
	log         *slog.Logger
}

// NewService создает новый экземпляр Service. Учётные записи с почтой из adminEmails
// регистрируются с ролью admin.
func NewService(accounts AccountRepository, devices DeviceGuard, tokens TokenMaker, adminEmails []string, log *slog.Logger) *Service {
	admins := make(map[string]struct{}, len(adminEmails))
	for _, e := range adminEmails {
		admins[normalizeEmail(e)] = struct{}{}
	}
	return &Service{
		accounts:    accounts,
		devices:     devices,
		tokens:      tokens,
		adminEmails: admins,
		log:         log,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register создает учётную запись с хэшированным паролем.
func (s *Service) Register(ctx context.Context, email, rawPassword string) (*models.Account, error) {
	const op = "services.auth.Register"

	hashed, err := password.GetHash(rawPassword)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	email = normalizeEmail(email)
	role := models.RoleUser
	if _, ok := s.adminEmails[email]; ok {
		role = models.RoleAdmin
	}

	acc := &models.Account{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hashed,
		Role:         role,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.accounts.CreateAccount(ctx, acc); err != nil {
		if errors.Is(err, models.ErrAccountExists) {
			return nil, err
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("account registered", slog.String("account_id", acc.ID), slog.String("role", role))
	return acc, nil
}

// Login проверяет пароль, привязывает устройство и выпускает JWT.
// Неизвестная почта и неверный пароль неотличимы: оба дают ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, email, rawPassword, deviceID, deviceName string) (string, *models.Account, error) {
	const op = "services.auth.Login"

	acc, err := s.accounts.GetAccountByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, models.ErrAccountNotFound) {
			return "", nil, models.ErrInvalidCredentials
		}
		return "", nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := password.CompareHash(acc.PasswordHash, rawPassword); err != nil {
		return "", nil, models.ErrInvalidCredentials
	}

	if err := s.devices.AuthorizeDevice(ctx, acc.ID, deviceID, deviceName, acc.IsAdmin()); err != nil {
		return "", nil, fmt.Errorf("%s: %w", op, err)
	}

	token, err := s.tokens.GenerateToken(acc.ID, acc.Email, acc.Role, deviceID)
	if err != nil {
		return "", nil, fmt.Errorf("%s: %w", op, err)
	}
	return token, acc, nil
}

// ValidateToken проверяет JWT и возвращает его claims.
func (s *Service) ValidateToken(_ context.Context, token string) (*jwt.CustomClaims, error) {
	const op = "services.auth.ValidateToken"

	claims, err := s.tokens.ParseToken(token)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return claims, nil
}

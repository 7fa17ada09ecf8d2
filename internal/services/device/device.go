// Package device ограничивает число устройств, привязанных к учётной записи.
package device

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/paywall/internal/metrics"
	"github.com/magabrotheeeer/paywall/internal/models"
	"github.com/magabrotheeeer/paywall/internal/storage"
)

// Service проверяет и ведёт привязки устройств.
type Service struct {
	store storage.Storage
	log   *slog.Logger
	now   func() time.Time
}

// NewService создает новый экземпляр Service.
func NewService(store storage.Storage, log *slog.Logger) *Service {
	return &Service{
		store: store,
		log:   log,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// WithClock подменяет источник текущего времени.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// AuthorizeDevice разрешает вход с устройства fingerprint.
//
// Известное устройство только обновляет время последнего входа. Новое устройство
// привязывается, если у учётной записи меньше MaxDevicesPerAccount привязок,
// иначе возвращается ErrDeviceLimitExceeded. На администратора лимит не действует.
// Проверка и вставка идут в одной транзакции под блокировкой учётной записи.
func (s *Service) AuthorizeDevice(ctx context.Context, accountID, fingerprint, label string, isAdmin bool) error {
	const op = "services.device.AuthorizeDevice"

	if fingerprint == "" {
		return fmt.Errorf("%s: empty device fingerprint", op)
	}

	now := s.now()
	err := s.store.WithTx(ctx, func(ctx context.Context, repo storage.Repository) error {
		if err := repo.LockAccount(ctx, accountID); err != nil {
			return err
		}

		devices, err := repo.ListDevices(ctx, accountID)
		if err != nil {
			return err
		}
		for _, d := range devices {
			if d.Fingerprint == fingerprint {
				return repo.TouchDevice(ctx, d.ID, now)
			}
		}

		if !isAdmin && len(devices) >= models.MaxDevicesPerAccount {
			return models.ErrDeviceLimitExceeded
		}

		_, err = repo.CreateDevice(ctx, &models.DeviceBinding{
			AccountID:   accountID,
			Fingerprint: fingerprint,
			Label:       label,
			LastUsedAt:  now,
			CreatedAt:   now,
		})
		return err
	})
	if err != nil {
		if errors.Is(err, models.ErrDeviceLimitExceeded) {
			metrics.DeviceRejections.Inc()
			s.log.Info("device limit exceeded", slog.String("account_id", accountID))
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ListDevices возвращает привязанные устройства учётной записи.
func (s *Service) ListDevices(ctx context.Context, accountID string) ([]*models.DeviceBinding, error) {
	const op = "services.device.ListDevices"

	devices, err := s.store.ListDevices(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return devices, nil
}

// RemoveDevice отвязывает устройство. Чужая или несуществующая привязка даёт ErrDeviceNotFound.
func (s *Service) RemoveDevice(ctx context.Context, accountID string, bindingID int64) error {
	const op = "services.device.RemoveDevice"

	deleted, err := s.store.DeleteDevice(ctx, accountID, bindingID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !deleted {
		return models.ErrDeviceNotFound
	}
	s.log.Info("device removed", slog.String("account_id", accountID), slog.Int64("device_id", bindingID))
	return nil
}

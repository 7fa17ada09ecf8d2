// Package subscription ведёт периоды доступа учётных записей: продление после оплаты,
// пробный период, отмену, периодический перевод истёкших строк в expired и
// кэшируемый статус для клиента.
package subscription

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/magabrotheeeer/paywall/internal/lib/sl"
	"github.com/magabrotheeeer/paywall/internal/metrics"
	"github.com/magabrotheeeer/paywall/internal/models"
	"github.com/magabrotheeeer/paywall/internal/storage"
)

// Cache описывает методы для кэширования статуса подписки.
type Cache interface {
	// Get пытается получить значение из кеша по ключу.
	Get(ctx context.Context, key string, result any) (bool, error)
	// Set сохраняет значение в кеш с временем жизни.
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
	// Invalidate удаляет значение из кеша по ключу.
	Invalidate(ctx context.Context, key string) error
}

// Service реализует бизнес-логику подписок.
type Service struct {
	store     storage.Storage
	cache     Cache
	statusTTL time.Duration
	log       *slog.Logger
	now       func() time.Time
}

// NewService создает новый экземпляр Service.
func NewService(store storage.Storage, cache Cache, statusTTL time.Duration, log *slog.Logger) *Service {
	return &Service{
		store:     store,
		cache:     cache,
		statusTTL: statusTTL,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock подменяет источник текущего времени.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Now текущее время по часам сервиса.
func (s *Service) Now() time.Time {
	return s.now()
}

func statusKey(accountID string) string {
	return "subscription:status:" + accountID
}

// NextEndDate дата окончания после продления на days дней:
// отсчёт идёт от более поздней из дат end и now.
func NextEndDate(end, now time.Time, days int) time.Time {
	from := end
	if now.After(end) {
		from = now
	}
	return from.AddDate(0, 0, days)
}

// GetActive возвращает текущую подписку или nil, если доступа нет.
func (s *Service) GetActive(ctx context.Context, accountID string) (*models.Subscription, error) {
	const op = "services.subscription.GetActive"

	sub, err := s.store.GetCurrentSubscription(ctx, accountID, s.now())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return sub, nil
}

// ExtendOrCreate продлевает текущую подписку на days дней или создаёт новую.
func (s *Service) ExtendOrCreate(ctx context.Context, accountID, planID string, days int) (*models.Subscription, error) {
	const op = "services.subscription.ExtendOrCreate"

	var sub *models.Subscription
	err := s.store.WithTx(ctx, func(ctx context.Context, repo storage.Repository) error {
		if err := repo.LockAccount(ctx, accountID); err != nil {
			return err
		}
		var err error
		sub, err = s.ExtendOrCreateTx(ctx, repo, accountID, planID, days, s.now())
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.Invalidate(ctx, accountID)
	return sub, nil
}

// ExtendOrCreateTx то же, что ExtendOrCreate, внутри уже открытой транзакции.
// Вызывающий отвечает за блокировку учётной записи и сброс кэша после коммита.
//
// Текущая строка (в том числе отменённая, но ещё действующая) становится active
// с планом покупки и датой окончания NextEndDate. Без текущей строки создаётся
// новая [now, now+days].
func (s *Service) ExtendOrCreateTx(ctx context.Context, repo storage.Repository, accountID, planID string, days int, now time.Time) (*models.Subscription, error) {
	const op = "services.subscription.ExtendOrCreateTx"

	if days <= 0 {
		return nil, fmt.Errorf("%s: non-positive duration %d", op, days)
	}

	current, err := repo.GetCurrentSubscription(ctx, accountID, now)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if current != nil {
		current.PlanID = planID
		current.Status = models.SubscriptionStatusActive
		current.EndDate = NextEndDate(current.EndDate, now, days)
		current.AutoRenew = true
		current.UpdatedAt = now
		if err := repo.UpdateSubscription(ctx, current); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return current, nil
	}

	sub := &models.Subscription{
		AccountID: accountID,
		PlanID:    planID,
		Status:    models.SubscriptionStatusActive,
		StartDate: now,
		EndDate:   NextEndDate(now, now, days),
		AutoRenew: true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	id, err := repo.CreateSubscription(ctx, sub)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	sub.ID = id
	return sub, nil
}

// StartTrial открывает пробный период. Флаг пробного периода расходуется
// атомарно, повторная попытка и попытка при действующей подписке дают ErrTrialUsed.
func (s *Service) StartTrial(ctx context.Context, accountID string) (*models.Subscription, error) {
	const op = "services.subscription.StartTrial"

	now := s.now()
	var sub *models.Subscription
	err := s.store.WithTx(ctx, func(ctx context.Context, repo storage.Repository) error {
		if err := repo.LockAccount(ctx, accountID); err != nil {
			return err
		}
		current, err := repo.GetCurrentSubscription(ctx, accountID, now)
		if err != nil {
			return err
		}
		if current != nil {
			return models.ErrTrialUsed
		}
		consumed, err := repo.ConsumeTrial(ctx, accountID)
		if err != nil {
			return err
		}
		if !consumed {
			return models.ErrTrialUsed
		}

		sub = &models.Subscription{
			AccountID: accountID,
			PlanID:    models.PlanTrial,
			Status:    models.SubscriptionStatusTrial,
			StartDate: now,
			EndDate:   now.AddDate(0, 0, models.TrialDurationDays),
			CreatedAt: now,
			UpdatedAt: now,
		}
		sub.ID, err = repo.CreateSubscription(ctx, sub)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.Invalidate(ctx, accountID)
	s.log.Info("trial started", sl.Account(accountID), slog.Time("end_date", sub.EndDate))
	return sub, nil
}

// Cancel отменяет автопродление. Дата окончания не меняется, доступ сохраняется до неё.
// Повторная отмена ничего не делает, отмена истёкшей подписки даёт ErrSubscriptionNotFound.
func (s *Service) Cancel(ctx context.Context, subscriptionID int64) (*models.Subscription, error) {
	const op = "services.subscription.Cancel"

	var sub *models.Subscription
	err := s.store.WithTx(ctx, func(ctx context.Context, repo storage.Repository) error {
		var err error
		sub, err = repo.GetSubscription(ctx, subscriptionID)
		if err != nil {
			return err
		}
		if err := repo.LockAccount(ctx, sub.AccountID); err != nil {
			return err
		}
		// строку перечитываем уже под блокировкой
		if sub, err = repo.GetSubscription(ctx, subscriptionID); err != nil {
			return err
		}
		return s.cancelTx(ctx, repo, sub)
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.Invalidate(ctx, sub.AccountID)
	return sub, nil
}

// CancelActive отменяет текущую подписку учётной записи.
func (s *Service) CancelActive(ctx context.Context, accountID string) (*models.Subscription, error) {
	const op = "services.subscription.CancelActive"

	var sub *models.Subscription
	err := s.store.WithTx(ctx, func(ctx context.Context, repo storage.Repository) error {
		if err := repo.LockAccount(ctx, accountID); err != nil {
			return err
		}
		var err error
		sub, err = repo.GetCurrentSubscription(ctx, accountID, s.now())
		if err != nil {
			return err
		}
		if sub == nil {
			return models.ErrSubscriptionNotFound
		}
		return s.cancelTx(ctx, repo, sub)
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.Invalidate(ctx, accountID)
	s.log.Info("subscription cancelled", sl.Account(accountID), slog.Int64("subscription_id", sub.ID))
	return sub, nil
}

func (s *Service) cancelTx(ctx context.Context, repo storage.Repository, sub *models.Subscription) error {
	switch sub.Status {
	case models.SubscriptionStatusCancelled:
		return nil
	case models.SubscriptionStatusExpired:
		return models.ErrSubscriptionNotFound
	}
	sub.Status = models.SubscriptionStatusCancelled
	sub.AutoRenew = false
	sub.UpdatedAt = s.now()
	return repo.UpdateSubscription(ctx, sub)
}

// SweepExpired переводит в expired строки active и trial с наступившей датой окончания.
// Доступ и без этого вычисляется при чтении, проход нужен для отчётности.
func (s *Service) SweepExpired(ctx context.Context) (int64, error) {
	const op = "services.subscription.SweepExpired"

	n, err := s.store.ExpireSubscriptions(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	metrics.SubscriptionsExpired.Add(float64(n))
	return n, nil
}

// Status возвращает статус подписки для клиента, используя кеш.
func (s *Service) Status(ctx context.Context, accountID string) (*models.SubscriptionStatus, error) {
	const op = "services.subscription.Status"

	key := statusKey(accountID)
	var cached models.SubscriptionStatus
	found, err := s.cache.Get(ctx, key, &cached)
	if err != nil {
		s.log.Warn("failed to read status from cache", slog.String("key", key), sl.Err(err))
	}
	if found {
		return &cached, nil
	}

	sub, err := s.GetActive(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	status := BuildStatus(sub, s.now())
	if err := s.cache.Set(ctx, key, status, s.statusTTL); err != nil {
		s.log.Warn("failed to cache status", slog.String("key", key), sl.Err(err))
	}
	return status, nil
}

// Invalidate сбрасывает кэшированный статус учётной записи.
func (s *Service) Invalidate(ctx context.Context, accountID string) {
	key := statusKey(accountID)
	if err := s.cache.Invalidate(ctx, key); err != nil {
		s.log.Warn("failed to invalidate status cache", slog.String("key", key), sl.Err(err))
	}
}

// BuildStatus строит ответ о статусе по текущей подписке (nil означает отсутствие доступа).
func BuildStatus(sub *models.Subscription, now time.Time) *models.SubscriptionStatus {
	if sub == nil {
		return &models.SubscriptionStatus{HasSubscription: false}
	}
	planName := sub.PlanID
	if plan, ok := models.LookupPlan(sub.PlanID); ok {
		planName = plan.Name
	}
	return &models.SubscriptionStatus{
		HasSubscription: true,
		Subscription: &models.SubscriptionView{
			PlanType:      sub.PlanID,
			PlanName:      planName,
			Status:        sub.Status,
			StartDate:     sub.StartDate,
			EndDate:       sub.EndDate,
			DaysRemaining: DaysRemaining(sub.EndDate, now),
			AutoRenew:     sub.AutoRenew,
		},
	}
}

// DaysRemaining число оставшихся дней с округлением вверх, не меньше нуля.
func DaysRemaining(end, now time.Time) int {
	left := end.Sub(now)
	if left <= 0 {
		return 0
	}
	return int(math.Ceil(left.Hours() / 24))
}

// Package scheduler периодические задачи: перевод истёкших подписок в expired,
// напоминания об окончании, сверка оплаченных заказов с подписками и учёт
// брошенных заказов.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/magabrotheeeer/paywall/internal/config"
	"github.com/magabrotheeeer/paywall/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/paywall/internal/lib/sl"
	"github.com/magabrotheeeer/paywall/internal/metrics"
	"github.com/magabrotheeeer/paywall/internal/models"
)

// Repository чтения, которые нужны планировщику.
type Repository interface {
	ListSubscriptionsExpiringBetween(ctx context.Context, from, to time.Time) ([]models.ExpiringSubscription, error)
	ListPaidOrdersSince(ctx context.Context, since time.Time) ([]*models.PaymentOrder, error)
	ListPendingOrdersBefore(ctx context.Context, before time.Time) ([]*models.PaymentOrder, error)
	GetLatestSubscription(ctx context.Context, accountID string) (*models.Subscription, error)
}

// Sweeper переводит истёкшие подписки в expired.
type Sweeper interface {
	SweepExpired(ctx context.Context) (int64, error)
}

// Replayer повторяет продление подписки для оплаченного заказа.
type Replayer interface {
	ExtendOrCreate(ctx context.Context, accountID, planID string, days int) (*models.Subscription, error)
}

// Publisher публикует событие в брокер.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, message any) error
}

// Service планировщик периодических задач.
type Service struct {
	repo      Repository
	sweeper   Sweeper
	publisher Publisher
	replayer  Replayer
	cfg       config.Scheduler
	orderTTL  time.Duration
	log       *slog.Logger
	now       func() time.Time
}

// NewService создает новый экземпляр Service.
func NewService(repo Repository, sweeper Sweeper, publisher Publisher, cfg config.Scheduler, orderTTL time.Duration, log *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		sweeper:   sweeper,
		publisher: publisher,
		cfg:       cfg,
		orderTTL:  orderTTL,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock подменяет источник текущего времени.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// WithReplay включает повторное продление при сверке.
func (s *Service) WithReplay(r Replayer) *Service {
	s.replayer = r
	return s
}

// Run запускает все задачи и блокируется до отмены ctx.
// Каждая задача выполняется сразу при старте, затем по своему интервалу.
func (s *Service) Run(ctx context.Context) {
	var wg sync.WaitGroup
	start := func(name string, interval time.Duration, task func(ctx context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.every(ctx, name, interval, task)
		}()
	}

	start("sweep_expired", s.cfg.SweepInterval, func(ctx context.Context) { _, _ = s.RunSweep(ctx) })
	start("expiring_reminders", s.cfg.ReminderInterval, func(ctx context.Context) { _, _ = s.RunReminders(ctx) })
	start("reconcile", s.cfg.ReconcileInterval, func(ctx context.Context) { _, _ = s.RunReconcile(ctx) })
	start("abandoned_orders", s.cfg.ReconcileInterval, func(ctx context.Context) { _, _ = s.RunAbandoned(ctx) })

	wg.Wait()
}

func (s *Service) every(ctx context.Context, name string, interval time.Duration, task func(ctx context.Context)) {
	if interval <= 0 {
		s.log.Warn("task disabled, non-positive interval", slog.String("task", name))
		return
	}
	task(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.log.Info("task stopped", slog.String("task", name))
			return
		case <-ticker.C:
			task(ctx)
		}
	}
}

// RunSweep один проход перевода истёкших подписок.
func (s *Service) RunSweep(ctx context.Context) (int64, error) {
	n, err := s.sweeper.SweepExpired(ctx)
	if err != nil {
		s.log.Error("failed to sweep expired subscriptions", sl.Err(err))
		return 0, err
	}
	if n > 0 {
		s.log.Info("subscriptions expired", slog.Int64("count", n))
	}
	return n, nil
}

// RunReminders публикует напоминания о подписках, которые закончатся через сутки.
// Окно [now+24h, now+24h+interval) сдвигается вместе с тиком, поэтому при
// регулярных запусках каждая подписка попадает ровно в одно окно.
func (s *Service) RunReminders(ctx context.Context) (int, error) {
	const op = "services.scheduler.RunReminders"

	from := s.now().Add(24 * time.Hour)
	to := from.Add(s.cfg.ReminderInterval)
	subs, err := s.repo.ListSubscriptionsExpiringBetween(ctx, from, to)
	if err != nil {
		s.log.Error("failed to find expiring subscriptions", sl.Err(err))
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	if len(subs) == 0 {
		s.log.Info("no expiring subscriptions found")
		return 0, nil
	}

	s.log.Info("found expiring subscriptions", slog.Int("count", len(subs)))
	sent := 0
	for _, sub := range subs {
		msg := models.ExpiringNotification{
			AccountID: sub.AccountID,
			Email:     sub.Email,
			PlanID:    sub.PlanID,
			EndDate:   sub.EndDate,
		}
		if err := s.publisher.Publish(ctx, rabbitmq.RoutingKeySubscriptionExpiring, msg); err != nil {
			s.log.Error("failed to publish reminder",
				slog.Int64("subscription_id", sub.SubscriptionID), sl.Err(err))
			continue
		}
		sent++
	}
	return sent, nil
}

// RunReconcile сверяет недавно оплаченные заказы с подписками. Заказ, для
// которого дата окончания подписки меньше paid_at + длительность плана,
// считается потерянным продлением: пишется ошибка в лог и растёт метрика.
// Если задан Replayer, продление выполняется повторно. После него дата окончания
// не меньше now + длительность, так что следующий проход заказ уже не отметит.
func (s *Service) RunReconcile(ctx context.Context) (int, error) {
	const op = "services.scheduler.RunReconcile"

	since := s.now().Add(-s.cfg.ReconcileLookback)
	orders, err := s.repo.ListPaidOrdersSince(ctx, since)
	if err != nil {
		s.log.Error("failed to list paid orders", sl.Err(err))
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	alerts := 0
	for _, o := range orders {
		plan, ok := models.LookupPlan(o.PlanID)
		if !ok || o.PaidAt == nil {
			continue
		}
		expected := o.PaidAt.AddDate(0, 0, plan.DurationDays)

		sub, err := s.repo.GetLatestSubscription(ctx, o.AccountID)
		if err != nil {
			s.log.Error("failed to load subscription", sl.Order(o.ID), sl.Err(err))
			continue
		}
		if sub != nil && !sub.EndDate.Before(expected) {
			continue
		}

		actual := "none"
		if sub != nil {
			actual = sub.EndDate.Format(time.RFC3339)
		}
		alerts++
		metrics.EntitlementAlerts.Inc()
		s.log.Error("paid order without entitlement",
			sl.Order(o.ID),
			sl.Account(o.AccountID),
			slog.String("expected_end", expected.Format(time.RFC3339)),
			slog.String("actual_end", actual))

		if s.replayer == nil {
			continue
		}
		restored, err := s.replayer.ExtendOrCreate(ctx, o.AccountID, o.PlanID, plan.DurationDays)
		if err != nil {
			s.log.Error("failed to replay subscription extension",
				sl.Order(o.ID),
				sl.Account(o.AccountID),
				sl.Err(err))
			continue
		}
		metrics.EntitlementReplays.Inc()
		s.log.Info("subscription extension replayed",
			sl.Order(o.ID),
			sl.Account(o.AccountID),
			slog.Time("end_date", restored.EndDate))
	}
	return alerts, nil
}

// RunAbandoned считает заказы, которые остались в pending дольше срока жизни заказа.
// Статус заказов не меняется: оплата по ним ещё может прийти.
func (s *Service) RunAbandoned(ctx context.Context) (int, error) {
	const op = "services.scheduler.RunAbandoned"

	orders, err := s.repo.ListPendingOrdersBefore(ctx, s.now().Add(-s.orderTTL))
	if err != nil {
		s.log.Error("failed to list pending orders", sl.Err(err))
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	metrics.AbandonedOrders.Set(float64(len(orders)))
	if len(orders) > 0 {
		s.log.Warn("abandoned pending orders", slog.Int("count", len(orders)))
	}
	return len(orders), nil
}

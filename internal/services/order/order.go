// Package order создаёт платёжные заказы, регистрирует их в шлюзе и переводит
// оплаченные заказы в paid вместе с продлением подписки.
package order

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/magabrotheeeer/paywall/internal/lib/sl"
	"github.com/magabrotheeeer/paywall/internal/metrics"
	"github.com/magabrotheeeer/paywall/internal/models"
	"github.com/magabrotheeeer/paywall/internal/storage"
)

// Gateway регистрирует заказ в платёжном шлюзе и возвращает адрес оплаты.
type Gateway interface {
	BuildPaymentRequest(ctx context.Context, order *models.PaymentOrder, plan models.Plan) (string, error)
}

// Ledger продлевает подписку внутри транзакции оплаты.
type Ledger interface {
	ExtendOrCreateTx(ctx context.Context, repo storage.Repository, accountID, planID string, days int, now time.Time) (*models.Subscription, error)
	Invalidate(ctx context.Context, accountID string)
	Now() time.Time
}

// Service управляет жизненным циклом платёжных заказов.
type Service struct {
	store   storage.Storage
	gateway Gateway
	ledger  Ledger
	prefix  string
	log     *slog.Logger
}

// NewService создает новый экземпляр Service. prefix добавляется к номеру заказа для шлюза.
func NewService(store storage.Storage, gateway Gateway, ledger Ledger, prefix string, log *slog.Logger) *Service {
	return &Service{
		store:   store,
		gateway: gateway,
		ledger:  ledger,
		prefix:  prefix,
		log:     log,
	}
}

// FormatTradeNo внешний номер заказа: префикс, id строки и время создания в миллисекундах.
// Уникальность обеспечивается id строки.
func FormatTradeNo(prefix string, id int64, at time.Time) string {
	return fmt.Sprintf("%s%d_%d", prefix, id, at.UnixMilli())
}

// ParseTradeNo извлекает id строки заказа из внешнего номера.
func ParseTradeNo(prefix, tradeNo string) (int64, error) {
	rest, ok := strings.CutPrefix(tradeNo, prefix)
	if !ok || rest == "" {
		return 0, fmt.Errorf("trade number %q: %w", tradeNo, models.ErrOrderNotFound)
	}
	idPart, _, _ := strings.Cut(rest, "_")
	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("trade number %q: %w", tradeNo, models.ErrOrderNotFound)
	}
	return id, nil
}

// CreateOrder создаёт заказ в статусе pending с зафиксированной ценой плана
// и присваивает ему внешний номер.
func (s *Service) CreateOrder(ctx context.Context, accountID, planID string) (*models.PaymentOrder, error) {
	const op = "services.order.CreateOrder"

	plan, err := models.LookupPurchasablePlan(planID)
	if err != nil {
		return nil, err
	}

	now := s.ledger.Now()
	order := &models.PaymentOrder{
		AccountID: accountID,
		PlanID:    plan.ID,
		Amount:    plan.Price,
		Status:    models.OrderStatusPending,
		CreatedAt: now,
	}

	err = s.store.WithTx(ctx, func(ctx context.Context, repo storage.Repository) error {
		id, err := repo.CreateOrder(ctx, order)
		if err != nil {
			return err
		}
		order.ID = id
		order.TradeNo = FormatTradeNo(s.prefix, id, now)
		return repo.SetOrderTradeNo(ctx, id, order.TradeNo)
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	metrics.OrdersCreated.WithLabelValues(plan.ID).Inc()
	s.log.Info("order created",
		sl.Order(order.ID),
		sl.Account(accountID),
		slog.String("plan", plan.ID),
		slog.String("trade_no", order.TradeNo))

	return order, nil
}

// CheckoutResult созданный заказ и адрес страницы оплаты.
type CheckoutResult struct {
	Order      *models.PaymentOrder
	Plan       models.Plan
	PaymentURL string
}

// Checkout создаёт заказ и регистрирует его в шлюзе. При недоступности шлюза
// делается ровно один повтор, отказ шлюза не повторяется. При ошибке заказ
// остаётся в pending.
func (s *Service) Checkout(ctx context.Context, accountID, planID string) (*CheckoutResult, error) {
	const op = "services.order.Checkout"

	order, err := s.CreateOrder(ctx, accountID, planID)
	if err != nil {
		return nil, err
	}
	plan, _ := models.LookupPlan(order.PlanID)

	paymentURL, err := s.gateway.BuildPaymentRequest(ctx, order, plan)
	if errors.Is(err, models.ErrGatewayUnavailable) {
		s.log.Warn("payment gateway unavailable, retrying once",
			sl.Order(order.ID), sl.Err(err))
		paymentURL, err = s.gateway.BuildPaymentRequest(ctx, order, plan)
	}
	if err != nil {
		s.log.Error("failed to register order in payment gateway",
			sl.Order(order.ID),
			sl.Account(accountID),
			sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &CheckoutResult{Order: order, Plan: plan, PaymentURL: paymentURL}, nil
}

// Settlement итог перевода заказа в paid.
type Settlement struct {
	Order        *models.PaymentOrder
	Subscription *models.Subscription
	// Applied false, если заказ уже был оплачен раньше и ничего не изменилось.
	Applied bool
}

// MarkPaid в одной транзакции переводит заказ pending → paid и продлевает подписку.
// Условное обновление гарантирует, что из нескольких одновременных вызовов
// продление выполнит ровно один, остальные вернут Applied == false.
func (s *Service) MarkPaid(ctx context.Context, orderID int64) (*Settlement, error) {
	const op = "services.order.MarkPaid"

	now := s.ledger.Now()
	res := &Settlement{}
	err := s.store.WithTx(ctx, func(ctx context.Context, repo storage.Repository) error {
		order, err := repo.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		res.Order = order
		if order.IsPaid() {
			return nil
		}

		plan, ok := models.LookupPlan(order.PlanID)
		if !ok {
			return fmt.Errorf("order %d: %w", orderID, models.ErrInvalidPlan)
		}

		changed, err := repo.MarkOrderPaid(ctx, orderID, now)
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}

		if err := repo.LockAccount(ctx, order.AccountID); err != nil {
			return err
		}
		sub, err := s.ledger.ExtendOrCreateTx(ctx, repo, order.AccountID, order.PlanID, plan.DurationDays, now)
		if err != nil {
			return err
		}

		order.Status = models.OrderStatusPaid
		order.PaidAt = &now
		res.Subscription = sub
		res.Applied = true
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if res.Applied {
		s.ledger.Invalidate(ctx, res.Order.AccountID)
	}
	return res, nil
}

// ProcessPendingOrder ручная сверка: переводит заказ в paid, если шлюз так и не
// прислал уведомление. Для уже оплаченного заказа ничего не делает.
func (s *Service) ProcessPendingOrder(ctx context.Context, orderID int64) (*models.PaymentOrder, error) {
	const op = "services.order.ProcessPendingOrder"

	res, err := s.MarkPaid(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if res.Applied {
		s.log.Info("order processed manually",
			sl.Order(orderID),
			sl.Account(res.Order.AccountID),
			slog.Time("end_date", res.Subscription.EndDate))
	} else {
		s.log.Info("order already paid, nothing to process", sl.Order(orderID))
	}
	return res.Order, nil
}

// ResolveTradeNo находит заказ по внешнему номеру. Номер должен совпадать с сохранённым.
func (s *Service) ResolveTradeNo(ctx context.Context, tradeNo string) (*models.PaymentOrder, error) {
	const op = "services.order.ResolveTradeNo"

	id, err := ParseTradeNo(s.prefix, tradeNo)
	if err != nil {
		return nil, err
	}
	order, err := s.store.GetOrder(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrOrderNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if order.TradeNo != tradeNo {
		return nil, fmt.Errorf("trade number %q does not match order %d: %w", tradeNo, id, models.ErrOrderNotFound)
	}
	return order, nil
}

// GetOrderForAccount возвращает заказ владельцу. Чужой заказ неотличим от отсутствующего.
func (s *Service) GetOrderForAccount(ctx context.Context, orderID int64, accountID string) (*models.PaymentOrder, error) {
	const op = "services.order.GetOrderForAccount"

	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, models.ErrOrderNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if order.AccountID != accountID {
		return nil, models.ErrOrderNotFound
	}
	return order, nil
}

// ListOrders история заказов учётной записи, новые первыми.
func (s *Service) ListOrders(ctx context.Context, accountID string) ([]*models.PaymentOrder, error) {
	const op = "services.order.ListOrders"

	orders, err := s.store.ListOrdersByAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return orders, nil
}

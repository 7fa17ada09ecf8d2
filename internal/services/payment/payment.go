// Package payment обрабатывает асинхронные уведомления платёжного шлюза.
//
// Ответ шлюзу всегда одна из строк "success" или "fail": шлюз повторяет доставку,
// пока не получит "success". Подробности ошибок наружу не уходят, только в лог.
package payment

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"github.com/magabrotheeeer/paywall/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/paywall/internal/lib/sign"
	"github.com/magabrotheeeer/paywall/internal/lib/sl"
	"github.com/magabrotheeeer/paywall/internal/metrics"
	"github.com/magabrotheeeer/paywall/internal/models"
	"github.com/magabrotheeeer/paywall/internal/paymentprovider"
	"github.com/magabrotheeeer/paywall/internal/services/order"
)

// Ответы шлюзу.
const (
	ReplySuccess = "success"
	ReplyFail    = "fail"
)

// Orders операции над заказами, нужные обработчику уведомлений.
type Orders interface {
	ResolveTradeNo(ctx context.Context, tradeNo string) (*models.PaymentOrder, error)
	MarkPaid(ctx context.Context, orderID int64) (*order.Settlement, error)
}

// Accounts чтение учётной записи для адреса в уведомлении.
type Accounts interface {
	GetAccountByID(ctx context.Context, id string) (*models.Account, error)
}

// Publisher публикует события в очередь уведомлений.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, message any) error
}

// Processor обрабатывает уведомления об оплате.
type Processor struct {
	orders    Orders
	accounts  Accounts
	publisher Publisher
	secret    string
	log       *slog.Logger
}

// NewProcessor создает обработчик. publisher может быть nil, тогда события не публикуются.
func NewProcessor(orders Orders, accounts Accounts, publisher Publisher, secret string, log *slog.Logger) *Processor {
	return &Processor{
		orders:    orders,
		accounts:  accounts,
		publisher: publisher,
		secret:    secret,
		log:       log,
	}
}

// HandleNotification проверяет подпись и статус уведомления и переводит заказ в paid
// вместе с продлением подписки. Повторное уведомление по оплаченному заказу
// ничего не меняет и получает "success".
func (p *Processor) HandleNotification(ctx context.Context, params map[string]string) string {
	const op = "services.payment.HandleNotification"

	tradeNo := params[paymentprovider.ParamTradeOrderID]
	log := p.log.With(slog.String("op", op), slog.String("trade_no", tradeNo))

	if !sign.Verify(params, params[sign.HashField], p.secret) {
		log.Warn("notification signature mismatch")
		return p.reply(metrics.CallbackBadSign, ReplyFail)
	}

	if status := params[paymentprovider.ParamStatus]; status != paymentprovider.TradeStatusPaid {
		log.Info("notification with non-paid status ignored", slog.String("status", status))
		return p.reply(metrics.CallbackNotPaid, ReplyFail)
	}

	ord, err := p.orders.ResolveTradeNo(ctx, tradeNo)
	if err != nil {
		if errors.Is(err, models.ErrOrderNotFound) {
			log.Warn("notification for unknown order", sl.Err(err))
			return p.reply(metrics.CallbackUnknown, ReplyFail)
		}
		log.Error("failed to load order", sl.Err(err))
		return p.reply(metrics.CallbackError, ReplyFail)
	}
	log = log.With(sl.Order(ord.ID), sl.Account(ord.AccountID))

	if ord.IsPaid() {
		log.Info("duplicate notification for paid order")
		return p.reply(metrics.CallbackDuplicate, ReplySuccess)
	}

	if fee, ok := params[paymentprovider.ParamTotalFee]; ok && fee != "" {
		amount, err := parseAmount(fee)
		if err != nil || amount != ord.Amount {
			log.Error("notification amount does not match order",
				slog.String("total_fee", fee),
				slog.Int64("expected", ord.Amount))
			return p.reply(metrics.CallbackError, ReplyFail)
		}
	}

	res, err := p.orders.MarkPaid(ctx, ord.ID)
	if err != nil {
		log.Error("failed to settle paid order, gateway will retry", sl.Err(err))
		return p.reply(metrics.CallbackError, ReplyFail)
	}
	if !res.Applied {
		log.Info("order settled by concurrent notification")
		return p.reply(metrics.CallbackDuplicate, ReplySuccess)
	}

	log.Info("order paid, subscription extended",
		slog.String("plan", res.Order.PlanID),
		slog.Time("end_date", res.Subscription.EndDate))

	p.publishPaid(ctx, log, res)
	return p.reply(metrics.CallbackPaid, ReplySuccess)
}

func (p *Processor) reply(result, body string) string {
	metrics.Callbacks.WithLabelValues(result).Inc()
	return body
}

// publishPaid отправляет событие об оплате. Ошибка публикации только логируется:
// оплата уже зафиксирована.
func (p *Processor) publishPaid(ctx context.Context, log *slog.Logger, res *order.Settlement) {
	if p.publisher == nil {
		return
	}

	msg := models.PaymentNotification{
		OrderID:   res.Order.ID,
		AccountID: res.Order.AccountID,
		PlanID:    res.Order.PlanID,
		Amount:    res.Order.Amount,
		EndDate:   res.Subscription.EndDate,
	}
	acc, err := p.accounts.GetAccountByID(ctx, res.Order.AccountID)
	if err != nil {
		log.Warn("failed to load account for notification", sl.Err(err))
		return
	}
	msg.Email = acc.Email

	if err := p.publisher.Publish(ctx, rabbitmq.RoutingKeyPaymentPaid, msg); err != nil {
		log.Warn("failed to publish payment notification", sl.Err(err))
	}
}

// parseAmount переводит сумму вида "29.00" или "29.5" в минимальные единицы.
func parseAmount(s string) (int64, error) {
	whole, frac, _ := strings.Cut(strings.TrimSpace(s), ".")
	if len(frac) > 2 {
		return 0, strconv.ErrSyntax
	}
	for len(frac) < 2 {
		frac += "0"
	}
	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, err
	}
	cents, err := strconv.ParseInt(frac, 10, 64)
	if err != nil || cents < 0 {
		return 0, strconv.ErrSyntax
	}
	return units*100 + cents, nil
}

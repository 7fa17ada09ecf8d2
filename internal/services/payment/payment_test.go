package payment

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/paywall/internal/cache"
	"github.com/magabrotheeeer/paywall/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/paywall/internal/lib/sign"
	"github.com/magabrotheeeer/paywall/internal/models"
	"github.com/magabrotheeeer/paywall/internal/paymentprovider"
	"github.com/magabrotheeeer/paywall/internal/services/order"
	"github.com/magabrotheeeer/paywall/internal/services/subscription"
	"github.com/magabrotheeeer/paywall/internal/storage/memory"
)

const testSecret = "gateway-secret"

type PublisherMock struct{ mock.Mock }

func (m *PublisherMock) Publish(ctx context.Context, routingKey string, message any) error {
	return m.Called(ctx, routingKey, message).Error(0)
}

type OrdersMock struct{ mock.Mock }

func (m *OrdersMock) ResolveTradeNo(ctx context.Context, tradeNo string) (*models.PaymentOrder, error) {
	args := m.Called(ctx, tradeNo)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PaymentOrder), args.Error(1)
}

func (m *OrdersMock) MarkPaid(ctx context.Context, orderID int64) (*order.Settlement, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Settlement), args.Error(1)
}

type noGateway struct{}

func (noGateway) BuildPaymentRequest(context.Context, *models.PaymentOrder, models.Plan) (string, error) {
	return "", models.ErrGatewayUnavailable
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

var base = time.Date(2025, 5, 20, 14, 0, 0, 0, time.UTC)

type fixture struct {
	store     *memory.Storage
	ledger    *subscription.Service
	orders    *order.Service
	publisher *PublisherMock
	proc      *Processor
	account   *models.Account
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{store: memory.New(), publisher: new(PublisherMock)}
	f.ledger = subscription.NewService(f.store, cache.Noop{}, time.Minute, newNoopLogger()).
		WithClock(func() time.Time { return base })
	f.orders = order.NewService(f.store, noGateway{}, f.ledger, "PW", newNoopLogger())
	f.proc = NewProcessor(f.orders, f.store, f.publisher, testSecret, newNoopLogger())

	f.account = &models.Account{
		ID: uuid.NewString(), Email: "buyer@example.com", Role: models.RoleUser, CreatedAt: base,
	}
	require.NoError(t, f.store.CreateAccount(context.Background(), f.account))
	return f
}

// paidNotification подписанное уведомление шлюза об оплате заказа.
func paidNotification(o *models.PaymentOrder) map[string]string {
	params := map[string]string{
		"appid":          "2019",
		"transaction_id": "4200001234",
		"open_order_id":  "20250520123",
		"order_title":    "Месячная подписка",
		"nonce_str":      "abcdef",
		"time":           strconv.FormatInt(base.Unix(), 10),
	}
	params[paymentprovider.ParamTradeOrderID] = o.TradeNo
	params[paymentprovider.ParamTotalFee] = models.FormatAmount(o.Amount)
	params[paymentprovider.ParamStatus] = paymentprovider.TradeStatusPaid
	params[sign.HashField] = sign.Sign(params, testSecret)
	return params
}

func (f *fixture) createOrder(t *testing.T, plan string) *models.PaymentOrder {
	t.Helper()
	o, err := f.orders.CreateOrder(context.Background(), f.account.ID, plan)
	require.NoError(t, err)
	return o
}

func (f *fixture) subscriptionsCount(t *testing.T) (*models.Subscription, int) {
	t.Helper()
	sub, err := f.ledger.GetActive(context.Background(), f.account.ID)
	require.NoError(t, err)
	orders, err := f.store.ListOrdersByAccount(context.Background(), f.account.ID)
	require.NoError(t, err)
	paid := 0
	for _, o := range orders {
		if o.IsPaid() {
			paid++
		}
	}
	return sub, paid
}

func TestProcessor_HandleNotification_Success(t *testing.T) {
	f := newFixture(t)
	o := f.createOrder(t, models.PlanMonthly)

	f.publisher.On("Publish", mock.Anything, rabbitmq.RoutingKeyPaymentPaid, mock.MatchedBy(func(n models.PaymentNotification) bool {
		return n.OrderID == o.ID && n.Email == "buyer@example.com" && n.Amount == 2900 &&
			n.EndDate.Equal(base.AddDate(0, 0, 31))
	})).Return(nil).Once()

	reply := f.proc.HandleNotification(context.Background(), paidNotification(o))
	assert.Equal(t, ReplySuccess, reply)

	sub, paid := f.subscriptionsCount(t)
	require.NotNil(t, sub)
	assert.Equal(t, 1, paid)
	assert.Equal(t, models.PlanMonthly, sub.PlanID)
	assert.True(t, sub.EndDate.Equal(base.AddDate(0, 0, 31)))
	f.publisher.AssertExpectations(t)
}

func TestProcessor_HandleNotification_Idempotent(t *testing.T) {
	f := newFixture(t)
	o := f.createOrder(t, models.PlanMonthly)
	f.publisher.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()

	params := paidNotification(o)
	assert.Equal(t, ReplySuccess, f.proc.HandleNotification(context.Background(), params))
	assert.Equal(t, ReplySuccess, f.proc.HandleNotification(context.Background(), params))
	assert.Equal(t, ReplySuccess, f.proc.HandleNotification(context.Background(), params))

	sub, paid := f.subscriptionsCount(t)
	require.NotNil(t, sub)
	assert.Equal(t, 1, paid)
	assert.True(t, sub.EndDate.Equal(base.AddDate(0, 0, 31)), "exactly one extension")
	f.publisher.AssertNumberOfCalls(t, "Publish", 1)
}

func TestProcessor_HandleNotification_ConcurrentDeliveries(t *testing.T) {
	f := newFixture(t)
	o := f.createOrder(t, models.PlanQuarterly)
	f.publisher.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	params := paidNotification(o)
	var wg sync.WaitGroup
	replies := make([]string, 8)
	for i := range replies {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			replies[i] = f.proc.HandleNotification(context.Background(), params)
		}(i)
	}
	wg.Wait()

	for _, r := range replies {
		assert.Equal(t, ReplySuccess, r)
	}
	sub, _ := f.subscriptionsCount(t)
	require.NotNil(t, sub)
	assert.True(t, sub.EndDate.Equal(base.AddDate(0, 0, 93)))
	f.publisher.AssertNumberOfCalls(t, "Publish", 1)
}

func TestProcessor_HandleNotification_TamperedParams(t *testing.T) {
	f := newFixture(t)
	o := f.createOrder(t, models.PlanMonthly)
	valid := paidNotification(o)

	for key := range valid {
		if key == sign.HashField {
			continue
		}
		t.Run(key, func(t *testing.T) {
			params := make(map[string]string, len(valid))
			for k, v := range valid {
				params[k] = v
			}
			params[key] += "x"

			assert.Equal(t, ReplyFail, f.proc.HandleNotification(context.Background(), params))

			sub, paid := f.subscriptionsCount(t)
			assert.Nil(t, sub)
			assert.Zero(t, paid)
		})
	}
	f.publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessor_HandleNotification_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		params func(o *models.PaymentOrder) map[string]string
	}{
		{
			name: "missing hash",
			params: func(o *models.PaymentOrder) map[string]string {
				p := paidNotification(o)
				delete(p, sign.HashField)
				return p
			},
		},
		{
			name: "signed with another secret",
			params: func(o *models.PaymentOrder) map[string]string {
				p := paidNotification(o)
				p[sign.HashField] = sign.Sign(p, "other-secret")
				return p
			},
		},
		{
			name:   "empty params",
			params: func(*models.PaymentOrder) map[string]string { return map[string]string{} },
		},
		{
			name: "status not paid",
			params: func(o *models.PaymentOrder) map[string]string {
				p := paidNotification(o)
				p[paymentprovider.ParamStatus] = "WP"
				p[sign.HashField] = sign.Sign(p, testSecret)
				return p
			},
		},
		{
			name: "unknown order",
			params: func(o *models.PaymentOrder) map[string]string {
				p := paidNotification(o)
				p[paymentprovider.ParamTradeOrderID] = "PW999_1"
				p[sign.HashField] = sign.Sign(p, testSecret)
				return p
			},
		},
		{
			name: "trade number of another time part",
			params: func(o *models.PaymentOrder) map[string]string {
				p := paidNotification(o)
				p[paymentprovider.ParamTradeOrderID] = order.FormatTradeNo("PW", o.ID, base.Add(time.Hour))
				p[sign.HashField] = sign.Sign(p, testSecret)
				return p
			},
		},
		{
			name: "amount mismatch",
			params: func(o *models.PaymentOrder) map[string]string {
				p := paidNotification(o)
				p[paymentprovider.ParamTotalFee] = "0.01"
				p[sign.HashField] = sign.Sign(p, testSecret)
				return p
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			o := f.createOrder(t, models.PlanMonthly)

			assert.Equal(t, ReplyFail, f.proc.HandleNotification(context.Background(), tt.params(o)))

			sub, paid := f.subscriptionsCount(t)
			assert.Nil(t, sub)
			assert.Zero(t, paid)
			f.publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestProcessor_HandleNotification_PublishFailureStillSucceeds(t *testing.T) {
	f := newFixture(t)
	o := f.createOrder(t, models.PlanMonthly)
	f.publisher.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("broker down")).Once()

	assert.Equal(t, ReplySuccess, f.proc.HandleNotification(context.Background(), paidNotification(o)))

	sub, paid := f.subscriptionsCount(t)
	require.NotNil(t, sub)
	assert.Equal(t, 1, paid)
}

func TestProcessor_HandleNotification_NilPublisher(t *testing.T) {
	f := newFixture(t)
	f.proc = NewProcessor(f.orders, f.store, nil, testSecret, newNoopLogger())
	o := f.createOrder(t, models.PlanMonthly)

	assert.Equal(t, ReplySuccess, f.proc.HandleNotification(context.Background(), paidNotification(o)))
}

func TestProcessor_HandleNotification_SettleFailure(t *testing.T) {
	orders := new(OrdersMock)
	publisher := new(PublisherMock)
	proc := NewProcessor(orders, memory.New(), publisher, testSecret, newNoopLogger())

	o := &models.PaymentOrder{ID: 5, AccountID: "acc", PlanID: models.PlanMonthly, Amount: 2900, Status: models.OrderStatusPending, TradeNo: "PW5_1"}
	orders.On("ResolveTradeNo", mock.Anything, "PW5_1").Return(o, nil).Once()
	orders.On("MarkPaid", mock.Anything, int64(5)).Return(nil, errors.New("deadlock detected")).Once()

	assert.Equal(t, ReplyFail, proc.HandleNotification(context.Background(), paidNotification(o)))
	orders.AssertExpectations(t)
	publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessor_HandleNotification_LookupFailure(t *testing.T) {
	orders := new(OrdersMock)
	proc := NewProcessor(orders, memory.New(), nil, testSecret, newNoopLogger())

	o := &models.PaymentOrder{ID: 5, Amount: 2900, TradeNo: "PW5_1"}
	orders.On("ResolveTradeNo", mock.Anything, "PW5_1").Return(nil, errors.New("connection reset")).Once()

	assert.Equal(t, ReplyFail, proc.HandleNotification(context.Background(), paidNotification(o)))
	orders.AssertNotCalled(t, "MarkPaid", mock.Anything, mock.Anything)
}

func TestEndToEnd_MonthlyPurchase(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.publisher.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	o := f.createOrder(t, models.PlanMonthly)
	assert.Equal(t, int64(2900), o.Amount)

	require.Equal(t, ReplySuccess, f.proc.HandleNotification(ctx, paidNotification(o)))

	status, err := f.ledger.Status(ctx, f.account.ID)
	require.NoError(t, err)
	require.True(t, status.HasSubscription)
	assert.Equal(t, models.PlanMonthly, status.Subscription.PlanType)
	assert.GreaterOrEqual(t, status.Subscription.DaysRemaining, 30)
	assert.LessOrEqual(t, status.Subscription.DaysRemaining, 31)

	stored, err := f.orders.GetOrderForAccount(ctx, o.ID, f.account.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsPaid())
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{in: "29.00", want: 2900},
		{in: "29", want: 2900},
		{in: "29.5", want: 2950},
		{in: "0.01", want: 1},
		{in: " 79.00 ", want: 7900},
		{in: "29.001", wantErr: true},
		{in: "abc", wantErr: true},
		{in: "", wantErr: true},
		{in: "29.-1", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseAmount(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

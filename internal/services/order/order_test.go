package order

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/paywall/internal/cache"
	"github.com/magabrotheeeer/paywall/internal/models"
	"github.com/magabrotheeeer/paywall/internal/services/subscription"
	"github.com/magabrotheeeer/paywall/internal/storage/memory"
)

type GatewayMock struct{ mock.Mock }

func (m *GatewayMock) BuildPaymentRequest(ctx context.Context, order *models.PaymentOrder, plan models.Plan) (string, error) {
	args := m.Called(ctx, order, plan)
	return args.String(0), args.Error(1)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

var base = time.Date(2025, 4, 1, 8, 30, 0, 0, time.UTC)

type fixture struct {
	store   *memory.Storage
	gateway *GatewayMock
	ledger  *subscription.Service
	svc     *Service
	account string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{store: memory.New(), gateway: new(GatewayMock)}
	f.ledger = subscription.NewService(f.store, cache.Noop{}, time.Minute, newNoopLogger()).
		WithClock(func() time.Time { return base })
	f.svc = NewService(f.store, f.gateway, f.ledger, "PW", newNoopLogger())

	f.account = uuid.NewString()
	require.NoError(t, f.store.CreateAccount(context.Background(), &models.Account{
		ID: f.account, Email: f.account + "@example.com", Role: models.RoleUser, CreatedAt: base,
	}))
	return f
}

func TestParseTradeNo(t *testing.T) {
	tests := []struct {
		name    string
		tradeNo string
		wantID  int64
		wantErr bool
	}{
		{name: "valid", tradeNo: "PW42_1700000000000", wantID: 42},
		{name: "without time part", tradeNo: "PW7", wantID: 7},
		{name: "wrong prefix", tradeNo: "XX42_1", wantErr: true},
		{name: "empty", tradeNo: "", wantErr: true},
		{name: "prefix only", tradeNo: "PW", wantErr: true},
		{name: "not a number", tradeNo: "PWabc_1", wantErr: true},
		{name: "zero id", tradeNo: "PW0_1", wantErr: true},
		{name: "negative id", tradeNo: "PW-3_1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := ParseTradeNo("PW", tt.tradeNo)
			if tt.wantErr {
				assert.ErrorIs(t, err, models.ErrOrderNotFound)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, id)
		})
	}
}

func TestFormatTradeNo_RoundTrip(t *testing.T) {
	tradeNo := FormatTradeNo("PW", 123, base)
	assert.Equal(t, "PW123_1743496200000", tradeNo)

	id, err := ParseTradeNo("PW", tradeNo)
	require.NoError(t, err)
	assert.Equal(t, int64(123), id)
}

func TestService_CreateOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	order, err := f.svc.CreateOrder(ctx, f.account, models.PlanMonthly)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.Equal(t, int64(2900), order.Amount)
	assert.Equal(t, FormatTradeNo("PW", order.ID, base), order.TradeNo)

	stored, err := f.store.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.TradeNo, stored.TradeNo)
	assert.Equal(t, order.Amount, stored.Amount)
}

func TestService_CreateOrder_InvalidPlan(t *testing.T) {
	f := newFixture(t)

	for _, plan := range []string{"", "weekly", models.PlanTrial} {
		_, err := f.svc.CreateOrder(context.Background(), f.account, plan)
		assert.ErrorIs(t, err, models.ErrInvalidPlan, "plan %q", plan)
	}

	orders, err := f.store.ListOrdersByAccount(context.Background(), f.account)
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestService_CreateOrder_UniqueTradeNumbers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		order, err := f.svc.CreateOrder(ctx, f.account, models.PlanMonthly)
		require.NoError(t, err)
		assert.False(t, seen[order.TradeNo], "duplicate trade number %s", order.TradeNo)
		seen[order.TradeNo] = true
	}
}

func TestService_Checkout(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(g *GatewayMock)
		wantURL   string
		wantErr   error
		wantCalls int
	}{
		{
			name: "success",
			setup: func(g *GatewayMock) {
				g.On("BuildPaymentRequest", mock.Anything, mock.Anything, mock.Anything).
					Return("https://pay.example.com/1", nil).Once()
			},
			wantURL:   "https://pay.example.com/1",
			wantCalls: 1,
		},
		{
			name: "unavailable then success",
			setup: func(g *GatewayMock) {
				g.On("BuildPaymentRequest", mock.Anything, mock.Anything, mock.Anything).
					Return("", models.ErrGatewayUnavailable).Once()
				g.On("BuildPaymentRequest", mock.Anything, mock.Anything, mock.Anything).
					Return("https://pay.example.com/2", nil).Once()
			},
			wantURL:   "https://pay.example.com/2",
			wantCalls: 2,
		},
		{
			name: "unavailable twice",
			setup: func(g *GatewayMock) {
				g.On("BuildPaymentRequest", mock.Anything, mock.Anything, mock.Anything).
					Return("", models.ErrGatewayUnavailable).Twice()
			},
			wantErr:   models.ErrGatewayUnavailable,
			wantCalls: 2,
		},
		{
			name: "rejected is not retried",
			setup: func(g *GatewayMock) {
				g.On("BuildPaymentRequest", mock.Anything, mock.Anything, mock.Anything).
					Return("", &models.GatewayRejectedError{Code: 1, Reason: "bad appid"}).Once()
			},
			wantErr:   models.ErrGatewayRejected,
			wantCalls: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.setup(f.gateway)

			res, err := f.svc.Checkout(context.Background(), f.account, models.PlanQuarterly)
			f.gateway.AssertNumberOfCalls(t, "BuildPaymentRequest", tt.wantCalls)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				orders, lerr := f.store.ListOrdersByAccount(context.Background(), f.account)
				require.NoError(t, lerr)
				require.Len(t, orders, 1, "failed checkout leaves the order pending")
				assert.Equal(t, models.OrderStatusPending, orders[0].Status)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantURL, res.PaymentURL)
			assert.Equal(t, models.PlanQuarterly, res.Plan.ID)
			assert.Equal(t, int64(7900), res.Order.Amount)
		})
	}
}

func TestService_Checkout_InvalidPlanSkipsGateway(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Checkout(context.Background(), f.account, "lifetime")
	assert.ErrorIs(t, err, models.ErrInvalidPlan)
	f.gateway.AssertNotCalled(t, "BuildPaymentRequest", mock.Anything, mock.Anything, mock.Anything)
}

func TestService_MarkPaid_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	order, err := f.svc.CreateOrder(ctx, f.account, models.PlanMonthly)
	require.NoError(t, err)

	first, err := f.svc.MarkPaid(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, first.Applied)
	require.NotNil(t, first.Subscription)
	assert.True(t, first.Subscription.EndDate.Equal(base.AddDate(0, 0, 31)))
	assert.True(t, first.Order.IsPaid())

	second, err := f.svc.MarkPaid(ctx, order.ID)
	require.NoError(t, err)
	assert.False(t, second.Applied)
	assert.Nil(t, second.Subscription)

	sub, err := f.ledger.GetActive(ctx, f.account)
	require.NoError(t, err)
	assert.True(t, sub.EndDate.Equal(base.AddDate(0, 0, 31)), "second call must not extend")
}

func TestService_MarkPaid_Concurrent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	order, err := f.svc.CreateOrder(ctx, f.account, models.PlanYearly)
	require.NoError(t, err)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.svc.MarkPaid(ctx, order.ID)
			if err == nil && res.Applied {
				mu.Lock()
				applied++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, applied)
	sub, err := f.ledger.GetActive(ctx, f.account)
	require.NoError(t, err)
	assert.True(t, sub.EndDate.Equal(base.AddDate(0, 0, 365)))
}

func TestService_MarkPaid_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.MarkPaid(context.Background(), 404)
	assert.ErrorIs(t, err, models.ErrOrderNotFound)
}

func TestService_ProcessPendingOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	order, err := f.svc.CreateOrder(ctx, f.account, models.PlanMonthly)
	require.NoError(t, err)

	processed, err := f.svc.ProcessPendingOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, processed.IsPaid())

	again, err := f.svc.ProcessPendingOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, again.IsPaid())

	sub, err := f.ledger.GetActive(ctx, f.account)
	require.NoError(t, err)
	assert.True(t, sub.EndDate.Equal(base.AddDate(0, 0, 31)))
}

func TestService_ResolveTradeNo(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	order, err := f.svc.CreateOrder(ctx, f.account, models.PlanMonthly)
	require.NoError(t, err)

	got, err := f.svc.ResolveTradeNo(ctx, order.TradeNo)
	require.NoError(t, err)
	assert.Equal(t, order.ID, got.ID)

	_, err = f.svc.ResolveTradeNo(ctx, FormatTradeNo("PW", order.ID, base.Add(time.Second)))
	assert.ErrorIs(t, err, models.ErrOrderNotFound, "row id alone is not enough")

	_, err = f.svc.ResolveTradeNo(ctx, "PW999_1")
	assert.ErrorIs(t, err, models.ErrOrderNotFound)
}

func TestService_GetOrderForAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	order, err := f.svc.CreateOrder(ctx, f.account, models.PlanMonthly)
	require.NoError(t, err)

	got, err := f.svc.GetOrderForAccount(ctx, order.ID, f.account)
	require.NoError(t, err)
	assert.Equal(t, order.TradeNo, got.TradeNo)

	_, err = f.svc.GetOrderForAccount(ctx, order.ID, uuid.NewString())
	assert.ErrorIs(t, err, models.ErrOrderNotFound)

	_, err = f.svc.GetOrderForAccount(ctx, order.ID+1, f.account)
	assert.ErrorIs(t, err, models.ErrOrderNotFound)

	list, err := f.svc.ListOrders(ctx, f.account)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

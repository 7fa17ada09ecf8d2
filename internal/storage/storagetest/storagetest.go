// Package storagetest содержит общий набор проверок для реализаций storage.Storage.
// Его запускают тесты пакетов memory и postgresql.
package storagetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/paywall/internal/models"
	"github.com/magabrotheeeer/paywall/internal/storage"
)

// Factory возвращает пустое хранилище для одного подтеста.
type Factory func(t *testing.T) storage.Storage

var base = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

// NewAccount создаёт учётную запись с уникальной почтой.
func NewAccount(t *testing.T, s storage.Repository, role string) *models.Account {
	t.Helper()
	id := uuid.NewString()
	acc := &models.Account{
		ID:           id,
		Email:        id[:8] + "@example.com",
		PasswordHash: "hash",
		Role:         role,
		CreatedAt:    base,
	}
	require.NoError(t, s.CreateAccount(context.Background(), acc))
	return acc
}

// Run прогоняет все проверки против хранилищ, которые создаёт newStore.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s storage.Storage)
	}{
		{"AccountDuplicateEmail", testAccountDuplicateEmail},
		{"AccountLookup", testAccountLookup},
		{"ConsumeTrialOnce", testConsumeTrialOnce},
		{"OrderLifecycle", testOrderLifecycle},
		{"MarkOrderPaidOnce", testMarkOrderPaidOnce},
		{"OrderListings", testOrderListings},
		{"CurrentSubscription", testCurrentSubscription},
		{"ExpireSubscriptions", testExpireSubscriptions},
		{"ExpiringBetween", testExpiringBetween},
		{"Devices", testDevices},
		{"TxCommit", testTxCommit},
		{"TxRollback", testTxRollback},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			tt.fn(t, s)
		})
	}
}

func testAccountDuplicateEmail(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	acc := NewAccount(t, s, models.RoleUser)

	dup := &models.Account{
		ID:           uuid.NewString(),
		Email:        "  " + acc.Email + " ",
		PasswordHash: "other",
		Role:         models.RoleUser,
		CreatedAt:    base,
	}
	err := s.CreateAccount(ctx, dup)
	assert.ErrorIs(t, err, models.ErrAccountExists)
}

func testAccountLookup(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	acc := NewAccount(t, s, models.RoleAdmin)

	byEmail, err := s.GetAccountByEmail(ctx, acc.Email)
	require.NoError(t, err)
	assert.Equal(t, acc.ID, byEmail.ID)
	assert.True(t, byEmail.IsAdmin())

	byID, err := s.GetAccountByID(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, acc.Email, byID.Email)

	_, err = s.GetAccountByEmail(ctx, "missing@example.com")
	assert.ErrorIs(t, err, models.ErrAccountNotFound)
	_, err = s.GetAccountByID(ctx, uuid.NewString())
	assert.ErrorIs(t, err, models.ErrAccountNotFound)
}

func testConsumeTrialOnce(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	acc := NewAccount(t, s, models.RoleUser)

	ok, err := s.ConsumeTrial(ctx, acc.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.ConsumeTrial(ctx, acc.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.ConsumeTrial(ctx, uuid.NewString())
	assert.ErrorIs(t, err, models.ErrAccountNotFound)
}

func testOrderLifecycle(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	acc := NewAccount(t, s, models.RoleUser)

	id, err := s.CreateOrder(ctx, &models.PaymentOrder{
		AccountID: acc.ID,
		PlanID:    models.PlanMonthly,
		Amount:    2900,
		CreatedAt: base,
	})
	require.NoError(t, err)
	require.NotZero(t, id)

	require.NoError(t, s.SetOrderTradeNo(ctx, id, "PW-test-1"))
	assert.Error(t, s.SetOrderTradeNo(ctx, id, "PW-test-2"))

	o, err := s.GetOrder(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, o.Status)
	assert.Equal(t, "PW-test-1", o.TradeNo)
	assert.Equal(t, int64(2900), o.Amount)
	assert.Nil(t, o.PaidAt)

	_, err = s.GetOrder(ctx, id+1000)
	assert.ErrorIs(t, err, models.ErrOrderNotFound)
}

func testMarkOrderPaidOnce(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	acc := NewAccount(t, s, models.RoleUser)
	id, err := s.CreateOrder(ctx, &models.PaymentOrder{AccountID: acc.ID, PlanID: models.PlanYearly, Amount: 29900, CreatedAt: base})
	require.NoError(t, err)

	paidAt := base.Add(time.Minute)
	changed, err := s.MarkOrderPaid(ctx, id, paidAt)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = s.MarkOrderPaid(ctx, id, paidAt.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, changed)

	o, err := s.GetOrder(ctx, id)
	require.NoError(t, err)
	assert.True(t, o.IsPaid())
	require.NotNil(t, o.PaidAt)
	assert.True(t, paidAt.Equal(*o.PaidAt))
}

func testOrderListings(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	acc := NewAccount(t, s, models.RoleUser)
	other := NewAccount(t, s, models.RoleUser)

	old, err := s.CreateOrder(ctx, &models.PaymentOrder{AccountID: acc.ID, PlanID: models.PlanMonthly, Amount: 2900, CreatedAt: base.Add(-48 * time.Hour)})
	require.NoError(t, err)
	fresh, err := s.CreateOrder(ctx, &models.PaymentOrder{AccountID: acc.ID, PlanID: models.PlanQuarterly, Amount: 7900, CreatedAt: base})
	require.NoError(t, err)
	_, err = s.CreateOrder(ctx, &models.PaymentOrder{AccountID: other.ID, PlanID: models.PlanMonthly, Amount: 2900, CreatedAt: base})
	require.NoError(t, err)

	_, err = s.MarkOrderPaid(ctx, fresh, base.Add(time.Minute))
	require.NoError(t, err)

	mine, err := s.ListOrdersByAccount(ctx, acc.ID)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, fresh, mine[0].ID, "newest order first")

	paid, err := s.ListPaidOrdersSince(ctx, base.Add(-time.Hour))
	require.NoError(t, err)
	paid = ofAccount(paid, acc.ID)
	require.Len(t, paid, 1)
	assert.Equal(t, fresh, paid[0].ID)

	stale, err := s.ListPendingOrdersBefore(ctx, base.Add(-24*time.Hour))
	require.NoError(t, err)
	stale = ofAccount(stale, acc.ID)
	require.Len(t, stale, 1)
	assert.Equal(t, old, stale[0].ID)
}

// ofAccount оставляет заказы одной учётной записи: хранилище может быть общим для подтестов.
func ofAccount(orders []*models.PaymentOrder, accountID string) []*models.PaymentOrder {
	res := make([]*models.PaymentOrder, 0, len(orders))
	for _, o := range orders {
		if o.AccountID == accountID {
			res = append(res, o)
		}
	}
	return res
}

func createSub(t *testing.T, s storage.Repository, accountID, status string, start, end time.Time) int64 {
	t.Helper()
	id, err := s.CreateSubscription(context.Background(), &models.Subscription{
		AccountID: accountID,
		PlanID:    models.PlanMonthly,
		Status:    status,
		StartDate: start,
		EndDate:   end,
		CreatedAt: start,
		UpdatedAt: start,
	})
	require.NoError(t, err)
	return id
}

func testCurrentSubscription(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	acc := NewAccount(t, s, models.RoleUser)

	cur, err := s.GetCurrentSubscription(ctx, acc.ID, base)
	require.NoError(t, err)
	assert.Nil(t, cur)

	createSub(t, s, acc.ID, models.SubscriptionStatusExpired, base.AddDate(0, -2, 0), base.AddDate(0, 1, 0))
	createSub(t, s, acc.ID, models.SubscriptionStatusActive, base.AddDate(0, -2, 0), base.AddDate(0, 0, -1))
	want := createSub(t, s, acc.ID, models.SubscriptionStatusCancelled, base.AddDate(0, 0, -5), base.AddDate(0, 0, 10))

	cur, err = s.GetCurrentSubscription(ctx, acc.ID, base)
	require.NoError(t, err)
	require.NotNil(t, cur)
	assert.Equal(t, want, cur.ID)

	latest, err := s.GetLatestSubscription(ctx, acc.ID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, models.SubscriptionStatusExpired, latest.Status, "latest ignores status")

	cur.EndDate = base.AddDate(0, 0, 40)
	cur.Status = models.SubscriptionStatusActive
	cur.UpdatedAt = base
	require.NoError(t, s.UpdateSubscription(ctx, cur))

	got, err := s.GetSubscription(ctx, want)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusActive, got.Status)
	assert.True(t, got.EndDate.Equal(base.AddDate(0, 0, 40)))

	_, err = s.GetSubscription(ctx, want+1000)
	assert.ErrorIs(t, err, models.ErrSubscriptionNotFound)
	assert.ErrorIs(t, s.UpdateSubscription(ctx, &models.Subscription{ID: want + 1000}), models.ErrSubscriptionNotFound)
}

func testExpireSubscriptions(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	acc := NewAccount(t, s, models.RoleUser)

	ended := createSub(t, s, acc.ID, models.SubscriptionStatusActive, base.AddDate(0, -1, 0), base.Add(-time.Second))
	trial := createSub(t, s, acc.ID, models.SubscriptionStatusTrial, base.AddDate(0, 0, -3), base)
	running := createSub(t, s, acc.ID, models.SubscriptionStatusActive, base, base.AddDate(0, 1, 0))
	cancelled := createSub(t, s, acc.ID, models.SubscriptionStatusCancelled, base.AddDate(0, -1, 0), base.Add(-time.Hour))

	n, err := s.ExpireSubscriptions(ctx, base)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, int64(2))

	for id, want := range map[int64]string{
		ended:     models.SubscriptionStatusExpired,
		trial:     models.SubscriptionStatusExpired,
		running:   models.SubscriptionStatusActive,
		cancelled: models.SubscriptionStatusCancelled,
	} {
		got, err := s.GetSubscription(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, got.Status, "subscription %d", id)
	}

	n, err = s.ExpireSubscriptions(ctx, base)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func testExpiringBetween(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	acc := NewAccount(t, s, models.RoleUser)

	soon := createSub(t, s, acc.ID, models.SubscriptionStatusActive, base.AddDate(0, -1, 0), base.Add(12*time.Hour))
	createSub(t, s, acc.ID, models.SubscriptionStatusCancelled, base.AddDate(0, -1, 0), base.Add(6*time.Hour))
	createSub(t, s, acc.ID, models.SubscriptionStatusActive, base, base.AddDate(0, 1, 0))

	all, err := s.ListSubscriptionsExpiringBetween(ctx, base, base.Add(24*time.Hour))
	require.NoError(t, err)
	var list []models.ExpiringSubscription
	for _, e := range all {
		if e.AccountID == acc.ID {
			list = append(list, e)
		}
	}
	require.Len(t, list, 1)
	assert.Equal(t, soon, list[0].SubscriptionID)
	assert.Equal(t, acc.Email, list[0].Email)
}

func testDevices(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	acc := NewAccount(t, s, models.RoleUser)
	other := NewAccount(t, s, models.RoleUser)

	id, err := s.CreateDevice(ctx, &models.DeviceBinding{
		AccountID: acc.ID, Fingerprint: "fp-1", Label: "phone", LastUsedAt: base, CreatedAt: base,
	})
	require.NoError(t, err)

	_, err = s.CreateDevice(ctx, &models.DeviceBinding{
		AccountID: acc.ID, Fingerprint: "fp-1", Label: "dup", LastUsedAt: base, CreatedAt: base,
	})
	assert.Error(t, err, "fingerprint is unique per account")

	_, err = s.CreateDevice(ctx, &models.DeviceBinding{
		AccountID: other.ID, Fingerprint: "fp-1", Label: "same fp, other account", LastUsedAt: base, CreatedAt: base,
	})
	require.NoError(t, err)

	require.NoError(t, s.TouchDevice(ctx, id, base.Add(time.Hour)))
	assert.ErrorIs(t, s.TouchDevice(ctx, id+1000, base), models.ErrDeviceNotFound)

	list, err := s.ListDevices(ctx, acc.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "phone", list[0].Label)
	assert.True(t, list[0].LastUsedAt.Equal(base.Add(time.Hour)))

	deleted, err := s.DeleteDevice(ctx, other.ID, id)
	require.NoError(t, err)
	assert.False(t, deleted, "foreign device must not be removed")

	deleted, err = s.DeleteDevice(ctx, acc.ID, id)
	require.NoError(t, err)
	assert.True(t, deleted)

	list, err = s.ListDevices(ctx, acc.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func testTxCommit(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	acc := NewAccount(t, s, models.RoleUser)

	var orderID int64
	err := s.WithTx(ctx, func(ctx context.Context, repo storage.Repository) error {
		if err := repo.LockAccount(ctx, acc.ID); err != nil {
			return err
		}
		id, err := repo.CreateOrder(ctx, &models.PaymentOrder{AccountID: acc.ID, PlanID: models.PlanMonthly, Amount: 2900, CreatedAt: base})
		orderID = id
		return err
	})
	require.NoError(t, err)

	_, err = s.GetOrder(ctx, orderID)
	require.NoError(t, err)
}

func testTxRollback(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	acc := NewAccount(t, s, models.RoleUser)
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(ctx context.Context, repo storage.Repository) error {
		if _, err := repo.CreateDevice(ctx, &models.DeviceBinding{
			AccountID: acc.ID, Fingerprint: "fp", LastUsedAt: base, CreatedAt: base,
		}); err != nil {
			return err
		}
		if _, err := repo.ConsumeTrial(ctx, acc.ID); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	list, err := s.ListDevices(ctx, acc.ID)
	require.NoError(t, err)
	assert.Empty(t, list)

	got, err := s.GetAccountByID(ctx, acc.ID)
	require.NoError(t, err)
	assert.False(t, got.TrialUsed)

	assert.Panics(t, func() {
		_ = s.WithTx(ctx, func(ctx context.Context, repo storage.Repository) error {
			_, _ = repo.ConsumeTrial(ctx, acc.ID)
			panic("boom")
		})
	})
	got, err = s.GetAccountByID(ctx, acc.ID)
	require.NoError(t, err)
	assert.False(t, got.TrialUsed)

	err = s.WithTx(ctx, func(ctx context.Context, repo storage.Repository) error {
		return repo.LockAccount(ctx, uuid.NewString())
	})
	assert.ErrorIs(t, err, models.ErrAccountNotFound)
}

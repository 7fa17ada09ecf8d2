// Package memory реализует storage.Storage в памяти процесса.
//
// Используется для локального запуска (storage.driver: memory) и в тестах сервисов.
// Все операции и транзакции целиком выполняются под одним мьютексом, поэтому
// условные обновления здесь атомарны так же, как в postgresql.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/magabrotheeeer/paywall/internal/models"
	"github.com/magabrotheeeer/paywall/internal/storage"
)

type state struct {
	accounts map[string]models.Account
	emails   map[string]string
	orders   map[int64]models.PaymentOrder
	tradeNos map[string]int64
	subs     map[int64]models.Subscription
	devices  map[int64]models.DeviceBinding

	nextOrderID  int64
	nextSubID    int64
	nextDeviceID int64
}

func newState() *state {
	return &state{
		accounts: map[string]models.Account{},
		emails:   map[string]string{},
		orders:   map[int64]models.PaymentOrder{},
		tradeNos: map[string]int64{},
		subs:     map[int64]models.Subscription{},
		devices:  map[int64]models.DeviceBinding{},
	}
}

func (s *state) clone() *state {
	c := &state{
		accounts:     make(map[string]models.Account, len(s.accounts)),
		emails:       make(map[string]string, len(s.emails)),
		orders:       make(map[int64]models.PaymentOrder, len(s.orders)),
		tradeNos:     make(map[string]int64, len(s.tradeNos)),
		subs:         make(map[int64]models.Subscription, len(s.subs)),
		devices:      make(map[int64]models.DeviceBinding, len(s.devices)),
		nextOrderID:  s.nextOrderID,
		nextSubID:    s.nextSubID,
		nextDeviceID: s.nextDeviceID,
	}
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	for k, v := range s.emails {
		c.emails[k] = v
	}
	for k, v := range s.orders {
		c.orders[k] = v
	}
	for k, v := range s.tradeNos {
		c.tradeNos[k] = v
	}
	for k, v := range s.subs {
		c.subs[k] = v
	}
	for k, v := range s.devices {
		c.devices[k] = v
	}
	return c
}

var _ storage.Storage = (*Storage)(nil)

// Storage хранилище в памяти.
type Storage struct {
	*repo
	mu sync.Mutex
}

// New создаёт пустое хранилище.
func New() *Storage {
	s := &Storage{}
	s.repo = &repo{st: newState(), mu: &s.mu}
	return s
}

// WithTx выполняет fn под мьютексом хранилища. При ошибке или панике
// состояние откатывается к снимку, сделанному перед fn.
func (s *Storage) WithTx(ctx context.Context, fn storage.TxFunc) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.repo.st.clone()
	defer func() {
		if p := recover(); p != nil {
			s.repo.st = snapshot
			panic(p)
		}
		if err != nil {
			s.repo.st = snapshot
		}
	}()

	return fn(ctx, &repo{st: s.repo.st})
}

// Close ничего не делает.
func (s *Storage) Close() error { return nil }

// repo реализует storage.Repository. Внутри транзакции mu == nil: мьютекс уже захвачен WithTx.
type repo struct {
	st *state
	mu *sync.Mutex
}

func (r *repo) lock() func() {
	if r.mu == nil {
		return func() {}
	}
	r.mu.Lock()
	return r.mu.Unlock
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (r *repo) CreateAccount(ctx context.Context, acc *models.Account) error {
	defer r.lock()()
	if err := ctx.Err(); err != nil {
		return err
	}
	email := normalizeEmail(acc.Email)
	if _, ok := r.st.emails[email]; ok {
		return models.ErrAccountExists
	}
	if _, ok := r.st.accounts[acc.ID]; ok {
		return models.ErrAccountExists
	}
	a := *acc
	a.Email = email
	r.st.accounts[a.ID] = a
	r.st.emails[email] = a.ID
	return nil
}

func (r *repo) GetAccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	defer r.lock()()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	id, ok := r.st.emails[normalizeEmail(email)]
	if !ok {
		return nil, models.ErrAccountNotFound
	}
	acc := r.st.accounts[id]
	return &acc, nil
}

func (r *repo) GetAccountByID(ctx context.Context, id string) (*models.Account, error) {
	defer r.lock()()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	acc, ok := r.st.accounts[id]
	if !ok {
		return nil, models.ErrAccountNotFound
	}
	return &acc, nil
}

func (r *repo) LockAccount(ctx context.Context, id string) error {
	defer r.lock()()
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := r.st.accounts[id]; !ok {
		return models.ErrAccountNotFound
	}
	return nil
}

func (r *repo) ConsumeTrial(ctx context.Context, id string) (bool, error) {
	defer r.lock()()
	if err := ctx.Err(); err != nil {
		return false, err
	}
	acc, ok := r.st.accounts[id]
	if !ok {
		return false, models.ErrAccountNotFound
	}
	if acc.TrialUsed {
		return false, nil
	}
	acc.TrialUsed = true
	r.st.accounts[id] = acc
	return true, nil
}

func (r *repo) CreateOrder(ctx context.Context, order *models.PaymentOrder) (int64, error) {
	defer r.lock()()
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if _, ok := r.st.accounts[order.AccountID]; !ok {
		return 0, models.ErrAccountNotFound
	}
	r.st.nextOrderID++
	o := *order
	o.ID = r.st.nextOrderID
	if o.Status == "" {
		o.Status = models.OrderStatusPending
	}
	r.st.orders[o.ID] = o
	if o.TradeNo != "" {
		r.st.tradeNos[o.TradeNo] = o.ID
	}
	return o.ID, nil
}

func (r *repo) SetOrderTradeNo(ctx context.Context, id int64, tradeNo string) error {
	defer r.lock()()
	if err := ctx.Err(); err != nil {
		return err
	}
	o, ok := r.st.orders[id]
	if !ok {
		return models.ErrOrderNotFound
	}
	if o.TradeNo != "" {
		return fmt.Errorf("memory.SetOrderTradeNo: order %d already has trade number", id)
	}
	if _, taken := r.st.tradeNos[tradeNo]; taken {
		return fmt.Errorf("memory.SetOrderTradeNo: trade number %s already used", tradeNo)
	}
	o.TradeNo = tradeNo
	r.st.orders[id] = o
	r.st.tradeNos[tradeNo] = id
	return nil
}

func (r *repo) GetOrder(ctx context.Context, id int64) (*models.PaymentOrder, error) {
	defer r.lock()()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	o, ok := r.st.orders[id]
	if !ok {
		return nil, models.ErrOrderNotFound
	}
	return &o, nil
}

func (r *repo) MarkOrderPaid(ctx context.Context, id int64, paidAt time.Time) (bool, error) {
	defer r.lock()()
	if err := ctx.Err(); err != nil {
		return false, err
	}
	o, ok := r.st.orders[id]
	if !ok || o.Status != models.OrderStatusPending {
		return false, nil
	}
	o.Status = models.OrderStatusPaid
	at := paidAt
	o.PaidAt = &at
	r.st.orders[id] = o
	return true, nil
}

func (r *repo) filterOrders(keep func(o models.PaymentOrder) bool) []*models.PaymentOrder {
	res := make([]*models.PaymentOrder, 0)
	for _, o := range r.st.orders {
		if keep(o) {
			o := o
			res = append(res, &o)
		}
	}
	return res
}

func (r *repo) ListOrdersByAccount(ctx context.Context, accountID string) ([]*models.PaymentOrder, error) {
	defer r.lock()()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res := r.filterOrders(func(o models.PaymentOrder) bool { return o.AccountID == accountID })
	sort.Slice(res, func(i, j int) bool { return res[i].ID > res[j].ID })
	return res, nil
}

func (r *repo) ListPaidOrdersSince(ctx context.Context, since time.Time) ([]*models.PaymentOrder, error) {
	defer r.lock()()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res := r.filterOrders(func(o models.PaymentOrder) bool {
		return o.Status == models.OrderStatusPaid && o.PaidAt != nil && !o.PaidAt.Before(since)
	})
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

func (r *repo) ListPendingOrdersBefore(ctx context.Context, before time.Time) ([]*models.PaymentOrder, error) {
	defer r.lock()()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res := r.filterOrders(func(o models.PaymentOrder) bool {
		return o.Status == models.OrderStatusPending && o.CreatedAt.Before(before)
	})
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

// latest возвращает строку с наибольшей датой окончания среди подходящих.
// При равенстве дат побеждает строка с большим id.
func (r *repo) latest(accountID string, keep func(s models.Subscription) bool) *models.Subscription {
	var best *models.Subscription
	for _, s := range r.st.subs {
		if s.AccountID != accountID || !keep(s) {
			continue
		}
		if best == nil || s.EndDate.After(best.EndDate) || (s.EndDate.Equal(best.EndDate) && s.ID > best.ID) {
			s := s
			best = &s
		}
	}
	return best
}

func (r *repo) GetCurrentSubscription(ctx context.Context, accountID string, now time.Time) (*models.Subscription, error) {
	defer r.lock()()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.latest(accountID, func(s models.Subscription) bool { return s.GrantsAccess(now) }), nil
}

func (r *repo) GetLatestSubscription(ctx context.Context, accountID string) (*models.Subscription, error) {
	defer r.lock()()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.latest(accountID, func(models.Subscription) bool { return true }), nil
}

func (r *repo) GetSubscription(ctx context.Context, id int64) (*models.Subscription, error) {
	defer r.lock()()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s, ok := r.st.subs[id]
	if !ok {
		return nil, models.ErrSubscriptionNotFound
	}
	return &s, nil
}

func (r *repo) CreateSubscription(ctx context.Context, sub *models.Subscription) (int64, error) {
	defer r.lock()()
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if _, ok := r.st.accounts[sub.AccountID]; !ok {
		return 0, models.ErrAccountNotFound
	}
	r.st.nextSubID++
	s := *sub
	s.ID = r.st.nextSubID
	r.st.subs[s.ID] = s
	return s.ID, nil
}

func (r *repo) UpdateSubscription(ctx context.Context, sub *models.Subscription) error {
	defer r.lock()()
	if err := ctx.Err(); err != nil {
		return err
	}
	s, ok := r.st.subs[sub.ID]
	if !ok {
		return models.ErrSubscriptionNotFound
	}
	s.PlanID = sub.PlanID
	s.Status = sub.Status
	s.EndDate = sub.EndDate
	s.AutoRenew = sub.AutoRenew
	s.UpdatedAt = sub.UpdatedAt
	r.st.subs[sub.ID] = s
	return nil
}

func (r *repo) ExpireSubscriptions(ctx context.Context, now time.Time) (int64, error) {
	defer r.lock()()
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var n int64
	for id, s := range r.st.subs {
		if (s.Status == models.SubscriptionStatusActive || s.Status == models.SubscriptionStatusTrial) && !s.EndDate.After(now) {
			s.Status = models.SubscriptionStatusExpired
			s.UpdatedAt = now
			r.st.subs[id] = s
			n++
		}
	}
	return n, nil
}

func (r *repo) ListSubscriptionsExpiringBetween(ctx context.Context, from, to time.Time) ([]models.ExpiringSubscription, error) {
	defer r.lock()()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res := make([]models.ExpiringSubscription, 0)
	for _, s := range r.st.subs {
		if s.Status != models.SubscriptionStatusActive && s.Status != models.SubscriptionStatusTrial {
			continue
		}
		if s.EndDate.Before(from) || !s.EndDate.Before(to) {
			continue
		}
		res = append(res, models.ExpiringSubscription{
			SubscriptionID: s.ID,
			AccountID:      s.AccountID,
			Email:          r.st.accounts[s.AccountID].Email,
			PlanID:         s.PlanID,
			EndDate:        s.EndDate,
		})
	}
	sort.Slice(res, func(i, j int) bool { return res[i].SubscriptionID < res[j].SubscriptionID })
	return res, nil
}

func (r *repo) ListDevices(ctx context.Context, accountID string) ([]*models.DeviceBinding, error) {
	defer r.lock()()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res := make([]*models.DeviceBinding, 0)
	for _, d := range r.st.devices {
		if d.AccountID == accountID {
			d := d
			res = append(res, &d)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

func (r *repo) CreateDevice(ctx context.Context, d *models.DeviceBinding) (int64, error) {
	defer r.lock()()
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if _, ok := r.st.accounts[d.AccountID]; !ok {
		return 0, models.ErrAccountNotFound
	}
	for _, existing := range r.st.devices {
		if existing.AccountID == d.AccountID && existing.Fingerprint == d.Fingerprint {
			return 0, fmt.Errorf("memory.CreateDevice: device %q already bound", d.Fingerprint)
		}
	}
	r.st.nextDeviceID++
	b := *d
	b.ID = r.st.nextDeviceID
	r.st.devices[b.ID] = b
	return b.ID, nil
}

func (r *repo) TouchDevice(ctx context.Context, id int64, at time.Time) error {
	defer r.lock()()
	if err := ctx.Err(); err != nil {
		return err
	}
	d, ok := r.st.devices[id]
	if !ok {
		return models.ErrDeviceNotFound
	}
	d.LastUsedAt = at
	r.st.devices[id] = d
	return nil
}

func (r *repo) DeleteDevice(ctx context.Context, accountID string, id int64) (bool, error) {
	defer r.lock()()
	if err := ctx.Err(); err != nil {
		return false, err
	}
	d, ok := r.st.devices[id]
	if !ok || d.AccountID != accountID {
		return false, nil
	}
	delete(r.st.devices, id)
	return true, nil
}

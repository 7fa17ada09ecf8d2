// Package storage описывает хранилище сервиса. Сервисы зависят только от
// интерфейса Storage, конкретная реализация (postgresql или memory) выбирается
// в конфиге параметром storage.driver.
package storage

import (
	"context"
	"time"

	"github.com/magabrotheeeer/paywall/internal/models"
)

// Repository набор операций над учётными записями, заказами, подписками и устройствами.
// Методы, которые ничего не нашли, возвращают sentinel-ошибки из models,
// кроме GetCurrentSubscription и GetLatestSubscription: для них отсутствие строки это nil, nil.
type Repository interface {
	CreateAccount(ctx context.Context, acc *models.Account) error
	GetAccountByEmail(ctx context.Context, email string) (*models.Account, error)
	GetAccountByID(ctx context.Context, id string) (*models.Account, error)
	// LockAccount блокирует строку учётной записи до конца транзакции.
	// Все изменения подписок и устройств одной учётной записи сериализуются через неё.
	LockAccount(ctx context.Context, id string) error
	// ConsumeTrial атомарно выставляет флаг пробного периода.
	// Возвращает false, если флаг уже был выставлен.
	ConsumeTrial(ctx context.Context, id string) (bool, error)

	CreateOrder(ctx context.Context, order *models.PaymentOrder) (int64, error)
	// SetOrderTradeNo присваивает номер только заказу, у которого его ещё нет.
	SetOrderTradeNo(ctx context.Context, id int64, tradeNo string) error
	GetOrder(ctx context.Context, id int64) (*models.PaymentOrder, error)
	// MarkOrderPaid переводит заказ pending -> paid условным обновлением.
	// false означает, что заказ уже оплачен (или не существует) и ничего не изменено.
	MarkOrderPaid(ctx context.Context, id int64, paidAt time.Time) (bool, error)
	ListOrdersByAccount(ctx context.Context, accountID string) ([]*models.PaymentOrder, error)
	ListPaidOrdersSince(ctx context.Context, since time.Time) ([]*models.PaymentOrder, error)
	ListPendingOrdersBefore(ctx context.Context, before time.Time) ([]*models.PaymentOrder, error)

	// GetCurrentSubscription строка с наибольшей датой окончания, которая позже now
	// и статус которой даёт доступ (active, trial, cancelled).
	GetCurrentSubscription(ctx context.Context, accountID string, now time.Time) (*models.Subscription, error)
	// GetLatestSubscription строка с наибольшей датой окончания в любом статусе.
	GetLatestSubscription(ctx context.Context, accountID string) (*models.Subscription, error)
	GetSubscription(ctx context.Context, id int64) (*models.Subscription, error)
	CreateSubscription(ctx context.Context, sub *models.Subscription) (int64, error)
	// UpdateSubscription сохраняет план, статус, дату окончания и auto_renew.
	UpdateSubscription(ctx context.Context, sub *models.Subscription) error
	// ExpireSubscriptions переводит active/trial с end_date <= now в expired.
	ExpireSubscriptions(ctx context.Context, now time.Time) (int64, error)
	ListSubscriptionsExpiringBetween(ctx context.Context, from, to time.Time) ([]models.ExpiringSubscription, error)

	ListDevices(ctx context.Context, accountID string) ([]*models.DeviceBinding, error)
	CreateDevice(ctx context.Context, d *models.DeviceBinding) (int64, error)
	TouchDevice(ctx context.Context, id int64, at time.Time) error
	// DeleteDevice удаляет привязку, только если она принадлежит accountID.
	DeleteDevice(ctx context.Context, accountID string, id int64) (bool, error)
}

// TxFunc тело транзакции. Внутри нужно работать только с переданным repo.
type TxFunc func(ctx context.Context, repo Repository) error

// Storage хранилище с поддержкой транзакций.
type Storage interface {
	Repository
	// WithTx выполняет fn в транзакции: коммит при nil, откат при ошибке или панике.
	WithTx(ctx context.Context, fn TxFunc) error
	Close() error
}

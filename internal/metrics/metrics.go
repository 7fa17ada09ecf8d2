// Package metrics объявляет метрики prometheus сервиса paywall.
// Метрики регистрируются в реестре по умолчанию и отдаются на /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "paywall"

// Результаты обработки уведомлений шлюза.
const (
	CallbackPaid      = "paid"
	CallbackDuplicate = "duplicate"
	CallbackBadSign   = "bad_signature"
	CallbackNotPaid   = "not_paid"
	CallbackUnknown   = "unknown_order"
	CallbackError     = "error"
)

var (
	OrdersCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "orders_created_total",
		Help:      "Созданные платёжные заказы по тарифу.",
	}, []string{"plan"})

	Callbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "gateway_callbacks_total",
		Help:      "Уведомления платёжного шлюза по результату обработки.",
	}, []string{"result"})

	GatewayErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "gateway_errors_total",
		Help:      "Ошибки запросов к платёжному шлюзу.",
	}, []string{"kind"})

	DeviceRejections = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "device_rejections_total",
		Help:      "Входы, отклонённые из-за лимита устройств.",
	})

	EntitlementAlerts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "entitlement_alerts_total",
		Help:      "Оплаченные заказы без соответствующего продления подписки.",
	})

	EntitlementReplays = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "entitlement_replays_total",
		Help:      "Продления подписки, повторённые сверкой.",
	})

	AbandonedOrders = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "abandoned_orders",
		Help:      "Неоплаченные заказы старше срока жизни заказа на момент последней проверки.",
	})

	SubscriptionsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "subscriptions_expired_total",
		Help:      "Подписки, переведённые в expired периодической задачей.",
	})
)

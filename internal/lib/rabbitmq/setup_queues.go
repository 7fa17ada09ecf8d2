// Package rabbitmq содержит подключение к брокеру, объявление обменника и очередей
// уведомлений, публикацию и потребление сообщений.
package rabbitmq

const (
	// Exchange direct-обменник для событий сервиса.
	Exchange = "notifications"

	// RoutingKeyPaymentPaid событие о зачисленной оплате.
	RoutingKeyPaymentPaid = "payment.paid"
	// RoutingKeySubscriptionExpiring напоминание об окончании подписки.
	RoutingKeySubscriptionExpiring = "subscription.expiring"

	QueuePaymentPaid          = "notifications.payment_paid"
	QueueSubscriptionExpiring = "notifications.subscription_expiring"
)

// QueueConfig очередь и ключ маршрутизации, с которым она привязана к Exchange.
type QueueConfig struct {
	QueueName  string
	RoutingKey string
}

// GetNotificationQueues возвращает очереди, которые читает воркер уведомлений.
func GetNotificationQueues() []QueueConfig {
	return []QueueConfig{
		{QueueName: QueuePaymentPaid, RoutingKey: RoutingKeyPaymentPaid},
		{QueueName: QueueSubscriptionExpiring, RoutingKey: RoutingKeySubscriptionExpiring},
	}
}

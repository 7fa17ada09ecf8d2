package models

import "time"

// PaymentNotification сообщение о зачисленной оплате, публикуется в RabbitMQ.
type PaymentNotification struct {
	OrderID   int64     `json:"order_id"`
	AccountID string    `json:"account_id"`
	Email     string    `json:"email"`
	PlanID    string    `json:"plan_id"`
	Amount    int64     `json:"amount"`
	EndDate   time.Time `json:"end_date"`
}

// ExpiringNotification напоминание о завтрашнем окончании подписки.
type ExpiringNotification struct {
	AccountID string    `json:"account_id"`
	Email     string    `json:"email"`
	PlanID    string    `json:"plan_id"`
	EndDate   time.Time `json:"end_date"`
}

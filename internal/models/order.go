package models

import "time"

const (
	// OrderStatusPending заказ создан и ждёт подтверждения оплаты от шлюза.
	OrderStatusPending = "pending"
	// OrderStatusPaid заказ оплачен, конечное состояние.
	OrderStatusPaid = "paid"
)

// PaymentOrder одна попытка покупки тарифа.
//
// Сумма хранится в минимальных единицах валюты (фэнь/копейки) и фиксируется
// на момент создания заказа, последующее изменение цены плана на неё не влияет.
type PaymentOrder struct {
	ID        int64      `json:"id"`
	AccountID string     `json:"accountId"`
	PlanID    string     `json:"planType"`
	Amount    int64      `json:"amount"`
	Status    string     `json:"status"`
	TradeNo   string     `json:"tradeNo"`
	CreatedAt time.Time  `json:"createdAt"`
	PaidAt    *time.Time `json:"paidAt,omitempty"`
}

// IsPaid сообщает, переведён ли заказ в статус paid.
func (o *PaymentOrder) IsPaid() bool {
	return o.Status == OrderStatusPaid
}

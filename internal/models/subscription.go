package models

import "time"

const (
	SubscriptionStatusTrial     = "trial"
	SubscriptionStatusActive    = "active"
	SubscriptionStatusExpired   = "expired"
	SubscriptionStatusCancelled = "cancelled"
)

// Subscription непрерывный период доступа учётной записи.
//
// У учётной записи может быть несколько исторических строк, текущей считается
// строка с наибольшей датой окончания, которая ещё не наступила.
type Subscription struct {
	ID        int64
	AccountID string
	PlanID    string
	Status    string
	StartDate time.Time
	EndDate   time.Time
	AutoRenew bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// GrantsAccess сообщает, даёт ли строка доступ в момент now.
// Отменённая подписка продолжает действовать до даты окончания.
func (s *Subscription) GrantsAccess(now time.Time) bool {
	switch s.Status {
	case SubscriptionStatusActive, SubscriptionStatusTrial, SubscriptionStatusCancelled:
		return s.EndDate.After(now)
	default:
		return false
	}
}

// SubscriptionView данные подписки для ответа клиенту.
type SubscriptionView struct {
	PlanType      string    `json:"planType"`
	PlanName      string    `json:"planName"`
	Status        string    `json:"status"`
	StartDate     time.Time `json:"startDate"`
	EndDate       time.Time `json:"endDate"`
	DaysRemaining int       `json:"daysRemaining"`
	AutoRenew     bool      `json:"autoRenew"`
}

// SubscriptionStatus ответ на запрос статуса подписки, кэшируется в redis.
type SubscriptionStatus struct {
	HasSubscription bool              `json:"hasSubscription"`
	Subscription    *SubscriptionView `json:"subscription"`
}

// ExpiringSubscription строка для напоминания об окончании подписки.
type ExpiringSubscription struct {
	SubscriptionID int64
	AccountID      string
	Email          string
	PlanID         string
	EndDate        time.Time
}

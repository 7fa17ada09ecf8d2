package models

import "fmt"

// Plan тарифный план: цена в минимальных единицах и длительность доступа в днях.
type Plan struct {
	ID           string
	Name         string
	Price        int64
	DurationDays int
	Purchasable  bool
}

const (
	PlanTrial     = "trial"
	PlanMonthly   = "monthly"
	PlanQuarterly = "quarterly"
	PlanYearly    = "yearly"
)

// TrialDurationDays длительность пробного периода.
const TrialDurationDays = 3

var plans = map[string]Plan{
	PlanTrial:     {ID: PlanTrial, Name: "Пробный период", Price: 0, DurationDays: TrialDurationDays},
	PlanMonthly:   {ID: PlanMonthly, Name: "Месячная подписка", Price: 2900, DurationDays: 31, Purchasable: true},
	PlanQuarterly: {ID: PlanQuarterly, Name: "Квартальная подписка", Price: 7900, DurationDays: 93, Purchasable: true},
	PlanYearly:    {ID: PlanYearly, Name: "Годовая подписка", Price: 29900, DurationDays: 365, Purchasable: true},
}

// LookupPlan возвращает план по идентификатору.
func LookupPlan(id string) (Plan, bool) {
	p, ok := plans[id]
	return p, ok
}

// LookupPurchasablePlan возвращает план, доступный для покупки, иначе ErrInvalidPlan.
func LookupPurchasablePlan(id string) (Plan, error) {
	p, ok := plans[id]
	if !ok || !p.Purchasable {
		return Plan{}, ErrInvalidPlan
	}
	return p, nil
}

// FormatAmount переводит сумму из минимальных единиц в строку вида "29.00".
func FormatAmount(amount int64) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	return fmt.Sprintf("%s%d.%02d", sign, amount/100, amount%100)
}

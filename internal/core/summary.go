package core

import "github.com/shopspring/decimal"

// MonthSummary is what a user spends in a month: the installments and
// immediate purchases billed in that month plus the monthly fixed cost.
type MonthSummary struct {
	MonthKey
	Purchases decimal.Decimal `json:"purchases"`
	FixedCost decimal.Decimal `json:"fixedCost"`
	Total     decimal.Decimal `json:"total"`
}

func NewMonthSummary(key MonthKey, purchases, fixedCost decimal.Decimal) MonthSummary {
	return MonthSummary{
		MonthKey:  key,
		Purchases: purchases,
		FixedCost: fixedCost,
		Total:     purchases.Add(fixedCost),
	}
}

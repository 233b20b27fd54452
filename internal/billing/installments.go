package billing

import (
	"iter"

	"github.com/shopspring/decimal"
)

// Installment is the share of a purchase billed in one period.
type Installment struct {
	Period
	Value decimal.Decimal
}

// Installments describes an equal split of a value over consecutive
// periods. It holds no iteration state, so every call to All yields the
// same sequence.
type Installments struct {
	value decimal.Decimal
	parts int
	start Period
}

// Split divides value into partsCount equal parts starting at start. The
// remainder of the division is not redistributed. A partsCount below one
// is treated as a single payment.
func Split(value decimal.Decimal, partsCount int, start Period) Installments {
	if partsCount < 1 {
		partsCount = 1
	}
	return Installments{value: value, parts: partsCount, start: start}
}

func (in Installments) Len() int {
	return in.parts
}

// PartValue is value / partsCount using decimal division.
func (in Installments) PartValue() decimal.Decimal {
	if in.parts == 1 {
		return in.value
	}
	return in.value.Div(decimal.NewFromInt(int64(in.parts)))
}

// All yields the installments in billing order.
func (in Installments) All() iter.Seq[Installment] {
	return func(yield func(Installment) bool) {
		part := in.PartValue()
		p := in.start
		for i := 0; i < in.parts; i++ {
			if !yield(Installment{Period: p, Value: part}) {
				return
			}
			p = p.Next()
		}
	}
}

func (in Installments) Slice() []Installment {
	out := make([]Installment, 0, in.parts)
	for inst := range in.All() {
		out = append(out, inst)
	}
	return out
}

// Total is the sum of all part values. It may differ from the split value
// by the rounding of the division.
func (in Installments) Total() decimal.Decimal {
	return in.PartValue().Mul(decimal.NewFromInt(int64(in.parts)))
}

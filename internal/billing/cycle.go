// Package billing maps purchases onto the calendar months in which they are
// billed.
package billing

import (
	"fmt"

	"monthly-spend/internal/core"
)

// Period is a billing month. Month is zero based (0 = January).
type Period struct {
	Month int
	Year  int
}

// PeriodOf returns the calendar month of d in UTC.
func PeriodOf(d core.Date) Period {
	t := d.UTC()
	return Period{Month: int(t.Month()) - 1, Year: t.Year()}
}

// ResolveFirstCycle returns the period in which the first installment (or
// the whole amount) of a card purchase is billed. Purchases made after the
// cutoff day move to the following month.
func ResolveFirstCycle(purchaseDate core.Date, cutoffDay int) Period {
	p := PeriodOf(purchaseDate)
	if purchaseDate.UTC().Day() > cutoffDay {
		return p.Next()
	}
	return p
}

// Advance returns the month after (month, year), wrapping December into
// January of the following year.
func Advance(month, year int) (int, int) {
	month++
	if month == 12 {
		month = 0
		year++
	}
	return month, year
}

func (p Period) Next() Period {
	m, y := Advance(p.Month, p.Year)
	return Period{Month: m, Year: y}
}

// Key scopes the period to a user.
func (p Period) Key(userID string) core.MonthKey {
	return core.MonthKey{UserID: userID, Month: p.Month, Year: p.Year}
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month+1)
}

package billing

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"monthly-spend/internal/core"
)

func TestResolveFirstCycle(t *testing.T) {
	tests := []struct {
		name   string
		date   core.Date
		cutoff int
		want   Period
	}{
		{"before cutoff stays", core.NewDate(2024, 3, 5), 10, Period{Month: 2, Year: 2024}},
		{"on cutoff stays", core.NewDate(2024, 3, 10), 10, Period{Month: 2, Year: 2024}},
		{"after cutoff moves", core.NewDate(2024, 3, 15), 10, Period{Month: 3, Year: 2024}},
		{"december rolls over", core.NewDate(2024, 12, 31), 30, Period{Month: 0, Year: 2025}},
		{"december low cutoff", core.NewDate(2024, 12, 31), 1, Period{Month: 0, Year: 2025}},
		{"cutoff beyond february", core.NewDate(2024, 2, 29), 31, Period{Month: 1, Year: 2024}},
		{"cutoff 31 never moves", core.NewDate(2024, 1, 31), 31, Period{Month: 0, Year: 2024}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveFirstCycle(tt.date, tt.cutoff))
		})
	}
}

func TestResolveFirstCycle_UsesUTCDay(t *testing.T) {
	// 2024-03-15 23:30 in UTC-3 is the 16th in UTC.
	d := core.Date{Time: mustParse(t, "2024-03-15T23:30:00-03:00")}
	assert.Equal(t, Period{Month: 3, Year: 2024}, ResolveFirstCycle(d, 15))
}

func TestAdvance(t *testing.T) {
	tests := []struct {
		month, year         int
		wantMonth, wantYear int
	}{
		{0, 2024, 1, 2024},
		{10, 2024, 11, 2024},
		{11, 2024, 0, 2025},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d_%d", tt.month, tt.year), func(t *testing.T) {
			m, y := Advance(tt.month, tt.year)
			assert.Equal(t, tt.wantMonth, m)
			assert.Equal(t, tt.wantYear, y)
		})
	}
}

func TestPeriodOf(t *testing.T) {
	assert.Equal(t, Period{Month: 2, Year: 2024}, PeriodOf(core.NewDate(2024, 3, 10)))
	assert.Equal(t, "2024-03", PeriodOf(core.NewDate(2024, 3, 10)).String())
	assert.Equal(t, core.MonthKey{UserID: "u", Month: 2, Year: 2024}, Period{Month: 2, Year: 2024}.Key("u"))
}

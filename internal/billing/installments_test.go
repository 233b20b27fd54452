package billing

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var tolerance = decimal.New(1, -12)

func TestSplit_EqualParts(t *testing.T) {
	in := Split(decimal.NewFromInt(300), 3, Period{Month: 3, Year: 2024})

	got := in.Slice()
	require.Len(t, got, 3)

	wantPeriods := []Period{{3, 2024}, {4, 2024}, {5, 2024}}
	for i, inst := range got {
		assert.Equal(t, wantPeriods[i], inst.Period)
		assert.True(t, inst.Value.Equal(decimal.NewFromInt(100)), "part %d = %s", i, inst.Value)
	}
}

func TestSplit_SumWithinTolerance(t *testing.T) {
	values := []string{"100", "0.01", "999.99", "1234.5678", "7"}
	for _, v := range values {
		for parts := 1; parts <= 24; parts++ {
			value := decimal.RequireFromString(v)
			in := Split(value, parts, Period{Month: 11, Year: 2024})

			sum := decimal.Zero
			n := 0
			for inst := range in.All() {
				sum = sum.Add(inst.Value)
				n++
			}

			assert.Equal(t, parts, n)
			assert.True(t, sum.Sub(value).Abs().LessThanOrEqual(tolerance),
				"value %s parts %d: sum %s", v, parts, sum)
		}
	}
}

func TestSplit_YearRollover(t *testing.T) {
	got := Split(decimal.NewFromInt(40), 4, Period{Month: 10, Year: 2024}).Slice()

	require.Len(t, got, 4)
	assert.Equal(t, Period{10, 2024}, got[0].Period)
	assert.Equal(t, Period{11, 2024}, got[1].Period)
	assert.Equal(t, Period{0, 2025}, got[2].Period)
	assert.Equal(t, Period{1, 2025}, got[3].Period)
}

func TestSplit_Restartable(t *testing.T) {
	in := Split(decimal.NewFromInt(100), 3, Period{Month: 0, Year: 2024})

	first := in.Slice()
	second := in.Slice()
	assert.Equal(t, first, second)

	// Stopping early leaves nothing behind for the next iteration.
	for range in.All() {
		break
	}
	assert.Equal(t, first, in.Slice())
}

func TestSplit_NonPositiveParts(t *testing.T) {
	for _, parts := range []int{0, -3} {
		in := Split(decimal.NewFromInt(50), parts, Period{Month: 5, Year: 2024})
		got := in.Slice()
		require.Len(t, got, 1)
		assert.True(t, got[0].Value.Equal(decimal.NewFromInt(50)))
		assert.Equal(t, 1, in.Len())
	}
}

func TestInstallmentsTotal(t *testing.T) {
	in := Split(decimal.NewFromInt(100), 3, Period{Month: 0, Year: 2024})
	assert.True(t, in.Total().Sub(decimal.NewFromInt(100)).Abs().LessThanOrEqual(tolerance))
}

func mustParse(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return ts
}

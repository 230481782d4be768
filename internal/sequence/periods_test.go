package sequence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPeriodForPinnedEpoch(t *testing.T) {
	cases := []struct {
		date      time.Time
		yearCode  string
		yearShort string
		monthCode string
	}{
		{time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC), "AA", "A", "A"},
		{time.Date(2020, time.December, 31, 0, 0, 0, 0, time.UTC), "AA", "A", "L"},
		{time.Date(2021, time.June, 15, 0, 0, 0, 0, time.UTC), "AB", "B", "F"},
		{time.Date(2026, time.August, 29, 0, 0, 0, 0, time.UTC), "AG", "G", "H"},
		{time.Date(2045, time.February, 1, 0, 0, 0, 0, time.UTC), "AZ", "Z", "B"},
		{time.Date(2046, time.February, 1, 0, 0, 0, 0, time.UTC), "BA", "A", "B"},
	}
	for _, tc := range cases {
		period, err := PeriodFor(tc.date)
		require.NoError(t, err)
		require.Equal(t, tc.yearCode, period.YearCode, "year code for %s", tc.date)
		require.Equal(t, tc.yearShort, period.YearShort, "year short for %s", tc.date)
		require.Equal(t, tc.monthCode, period.MonthCode, "month code for %s", tc.date)
	}
}

func TestPeriodForBeforeEpoch(t *testing.T) {
	_, err := PeriodFor(time.Date(2019, time.December, 31, 0, 0, 0, 0, time.UTC))
	require.Error(t, err)
}

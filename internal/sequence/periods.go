package sequence

import (
	"fmt"
	"time"
)

// EpochYear anchors the alphabetic year codes. It is baked into every
// issued barcode and must never change.
const EpochYear = 2020

// Period carries the alphabetic codes for one calendar month.
type Period struct {
	YearCode  string // two letters, finished-goods layout
	YearShort string // one letter, spare-part layout
	MonthCode string // A=January .. L=December
}

// PeriodFor derives the period codes for t.
func PeriodFor(t time.Time) (Period, error) {
	offset := t.Year() - EpochYear
	if offset < 0 || offset >= 26*26 {
		return Period{}, fmt.Errorf("sequence: year %d outside epoch range: %w", t.Year(), ErrValidation)
	}
	return Period{
		YearCode:  string(rune('A'+offset/26)) + string(rune('A'+offset%26)),
		YearShort: string(rune('A' + offset%26)),
		MonthCode: string(rune('A' + int(t.Month()) - 1)),
	}, nil
}

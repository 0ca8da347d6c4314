package recurring

import (
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// Schedule holds everything NextRunDate depends on.
type Schedule struct {
	Frequency   Frequency
	DayOfMonth  *int
	DayOfWeek   *int
	StartDate   time.Time
	LastRunDate *time.Time
}

// NextRunDate advances the last run date, or the start date before the first run, by one period.
func (s Schedule) NextRunDate() time.Time {
	from := s.StartDate
	if s.LastRunDate != nil {
		from = *s.LastRunDate
	}
	return Advance(s.Frequency, s.DayOfMonth, s.DayOfWeek, from)
}

// Due reports whether the next run falls on or before asOf.
func (s Schedule) Due(asOf time.Time) bool {
	return !s.NextRunDate().After(shared.Day(asOf))
}

// Advance moves from by one period of f:
//   - daily: the next day
//   - weekly: seven days, then forward to dayOfWeek (0 = Sunday) when set
//   - monthly and quarterly: one or three calendar months, on dayOfMonth when set, clamped to the
//     month's last day
//   - yearly: the same day next year, clamped for 29 February
func Advance(f Frequency, dayOfMonth, dayOfWeek *int, from time.Time) time.Time {
	from = shared.Day(from)
	switch f {
	case FrequencyDaily:
		return from.AddDate(0, 0, 1)
	case FrequencyWeekly:
		next := from.AddDate(0, 0, 7)
		if dayOfWeek != nil {
			shift := (*dayOfWeek - int(next.Weekday()) + 7) % 7
			next = next.AddDate(0, 0, shift)
		}
		return next
	case FrequencyMonthly:
		return addMonths(from, 1, dayOfMonth)
	case FrequencyQuarterly:
		return addMonths(from, 3, dayOfMonth)
	case FrequencyYearly:
		return addMonths(from, 12, nil)
	}
	return from
}

func addMonths(from time.Time, months int, dayOfMonth *int) time.Time {
	day := from.Day()
	if dayOfMonth != nil {
		day = *dayOfMonth
	}
	first := time.Date(from.Year(), from.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, months, 0)
	if last := daysIn(first); day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, time.UTC)
}

func daysIn(first time.Time) int {
	return first.AddDate(0, 1, -1).Day()
}

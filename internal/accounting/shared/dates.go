package shared

import "time"

// Day truncates t to a UTC calendar date, the precision of every ledger date column.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Within reports whether day lies in the inclusive range [start, end].
func Within(day, start, end time.Time) bool {
	day = Day(day)
	return !day.Before(Day(start)) && !day.After(Day(end))
}

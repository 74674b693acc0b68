package reports

import (
	"time"

	"github.com/platinummonkey/gymledger/pkg/catalog"
)

// expiringDays is how far before month end an expiry still counts as
// "expiring this month"
const expiringDays = 6

// MonthWindow returns the UTC month containing now as
// [first day 00:00:00.000, last day 23:59:59.999].
func MonthWindow(now time.Time) (start, end time.Time) {
	now = now.UTC()
	start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	end = start.AddDate(0, 1, 0).Add(-time.Millisecond)
	return start, end
}

// ExpiringWindow returns [monthEnd - 6 days, monthEnd]
func ExpiringWindow(monthEnd time.Time) (start, end time.Time) {
	return monthEnd.AddDate(0, 0, -expiringDays), monthEnd
}

// ExpiryDate projects a plan's duration onto a join date.
//
// Months are calendar months, clamped to the last day of the target month
// (Jan 31 + 1 month = Feb 29 in a leap year). Days are calendar days. Any
// other unit yields joinDate itself: the subscription counts as already
// expired.
func ExpiryDate(joinDate time.Time, unit catalog.DurationUnit, duration int) time.Time {
	switch unit {
	case catalog.DurationMonth:
		return addMonthsClamped(joinDate, duration)
	case catalog.DurationDay:
		return joinDate.AddDate(0, 0, duration)
	default:
		return joinDate
	}
}

func addMonthsClamped(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(months), 1, 0, 0, 0, 0, t.Location())
	if last := first.AddDate(0, 1, -1).Day(); d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func within(t, start, end time.Time) bool {
	return !t.Before(start) && !t.After(end)
}

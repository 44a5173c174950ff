// Package eligibility decides whether a donor may give blood again.  A donor
// becomes eligible three calendar months after their last donation.  Month
// arithmetic clamps to the end of the target month, the way MySQL's
// DATE_ADD/DATE_SUB with INTERVAL n MONTH does: 30 Nov + 3 months is 28 Feb,
// never 2 Mar.
package eligibility

import "time"

// Interval is the waiting period between two donations, in months.
const Interval = 3

// NextEligibleDate is the first day on which a donor who gave on last may
// donate again.  It returns nil when last is nil.
func NextEligibleDate(last *time.Time) *time.Time {
	if last == nil {
		return nil
	}
	next := addMonths(day(*last), Interval)
	return &next
}

// IsEligible reports whether a donor whose last donation was on last may
// donate on the day of now.  A donor who never donated is always eligible.
// Exactly three months is eligible.
func IsEligible(last *time.Time, now time.Time) bool {
	if last == nil {
		return true
	}
	return !day(now).Before(*NextEligibleDate(last))
}

// Cutoff returns the latest last-donation date that is still eligible on
// the day of now, so that IsEligible(last, now) == !last.After(Cutoff(now)).
// The SQL matcher compares against it.
func Cutoff(now time.Time) time.Time {
	today := day(now)
	back := addMonths(today, -Interval)
	if today.Day() == daysIn(today.Year(), today.Month()) {
		// every day of the month three back maps onto today or earlier
		return time.Date(back.Year(), back.Month(), daysIn(back.Year(), back.Month()), 0, 0, 0, 0, time.UTC)
	}
	return back
}

// addMonths moves d by n calendar months, clamping the day to the length
// of the target month.
func addMonths(d time.Time, n int) time.Time {
	first := time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, n, 0)
	dd := min(d.Day(), daysIn(first.Year(), first.Month()))
	return time.Date(first.Year(), first.Month(), dd, 0, 0, 0, 0, time.UTC)
}

func daysIn(y int, m time.Month) int {
	return time.Date(y, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// day truncates t to midnight UTC of its calendar date.
func day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

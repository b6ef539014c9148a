package scheduler

import (
	"time"

	"github.com/ErlanBelekov/homebase/internal/domain"
)

// NextOccurrence derives the next trigger instant of a recurring one-shot definition from the
// instant it was scheduled for (not the instant it actually fired). It has no side effects;
// the caller increments CurrentOccurrence on the definition it creates.
//
// Monthly and yearly steps are calendar steps anchored on rec.DayOfMonth (or last's day when
// unset) and clamped to the target month's length: Jan 31 -> Feb 28 -> Mar 31.
func NextOccurrence(last time.Time, rec domain.Recurrence) (time.Time, bool) {
	if rec.MaxOccurrences != nil && rec.CurrentOccurrence >= *rec.MaxOccurrences {
		return time.Time{}, false
	}

	var next time.Time
	switch rec.Interval {
	case domain.IntervalDaily:
		next = last.Add(24 * time.Hour)
	case domain.IntervalWeekly:
		next = last.Add(7 * 24 * time.Hour)
	case domain.IntervalMonthly:
		next = addMonthsClamped(last, 1, anchorDay(last, rec))
	case domain.IntervalYearly:
		next = addMonthsClamped(last, 12, anchorDay(last, rec))
	default:
		return time.Time{}, false
	}

	if rec.EndDate != nil && next.After(*rec.EndDate) {
		return time.Time{}, false
	}
	return next, true
}

func anchorDay(last time.Time, rec domain.Recurrence) int {
	if rec.DayOfMonth >= 1 && rec.DayOfMonth <= 31 {
		return rec.DayOfMonth
	}
	return last.Day()
}

func addMonthsClamped(t time.Time, months, day int) time.Time {
	y, m, _ := t.Date()
	// Normalise via the first of the month so the month arithmetic itself never overflows.
	first := time.Date(y, m+time.Month(months), 1, 0, 0, 0, 0, t.Location())
	day = min(day, daysIn(first.Year(), first.Month(), t.Location()))
	return time.Date(first.Year(), first.Month(), day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}

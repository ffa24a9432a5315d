package habits

import "time"

// Streak summarizes a habit's check-in history relative to a day.
type Streak struct {
	// Current counts consecutive checked-in days ending today, or ending
	// yesterday when today has no check-in yet.
	Current int64

	// Total counts every check-in, including days after today.
	Total int64

	// Last is the most recent check-in day on or before today; zero if none.
	Last time.Time

	// LastSevenDays counts check-ins in the seven days ending today.
	LastSevenDays int64
}

// Compute derives a Streak from check-in days. Days may be in any order and
// are compared by calendar date in UTC.
func Compute(days []time.Time, today time.Time) Streak {
	today = truncate(today)
	seen := make(map[time.Time]bool, len(days))
	s := Streak{Total: int64(len(days))}
	weekStart := today.AddDate(0, 0, -6)

	for _, d := range days {
		d = truncate(d)
		seen[d] = true
		if d.After(today) {
			continue
		}
		if d.After(s.Last) {
			s.Last = d
		}
		if !d.Before(weekStart) {
			s.LastSevenDays++
		}
	}

	cursor := today
	if !seen[cursor] {
		cursor = cursor.AddDate(0, 0, -1)
	}
	for seen[cursor] {
		s.Current++
		cursor = cursor.AddDate(0, 0, -1)
	}
	return s
}

func truncate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

package habits

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func days(ss ...string) []time.Time {
	out := make([]time.Time, len(ss))
	for i, s := range ss {
		out[i] = day(s)
	}
	return out
}

func TestCompute(t *testing.T) {
	today := day("2024-03-10")

	tests := []struct {
		name     string
		days     []time.Time
		current  int64
		total    int64
		last     string
		lastWeek int64
	}{
		{name: "no check-ins"},
		{
			name:    "ending today",
			days:    days("2024-03-10", "2024-03-09", "2024-03-08"),
			current: 3, total: 3, last: "2024-03-10", lastWeek: 3,
		},
		{
			name:    "ending yesterday still counts",
			days:    days("2024-03-09", "2024-03-08"),
			current: 2, total: 2, last: "2024-03-09", lastWeek: 2,
		},
		{
			name:    "gap two days ago breaks it",
			days:    days("2024-03-08", "2024-03-07"),
			current: 0, total: 2, last: "2024-03-08", lastWeek: 2,
		},
		{
			name:    "gap inside history",
			days:    days("2024-03-10", "2024-03-09", "2024-03-07", "2024-03-06"),
			current: 2, total: 4, last: "2024-03-10", lastWeek: 4,
		},
		{
			name:    "unordered input",
			days:    days("2024-03-08", "2024-03-10", "2024-03-09"),
			current: 3, total: 3, last: "2024-03-10", lastWeek: 3,
		},
		{
			name:    "future days count toward total only",
			days:    days("2024-03-12", "2024-03-10"),
			current: 1, total: 2, last: "2024-03-10", lastWeek: 1,
		},
		{
			name:    "week window is seven days",
			days:    days("2024-03-04", "2024-03-03"),
			current: 0, total: 2, last: "2024-03-04", lastWeek: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Compute(tt.days, today.Add(15*time.Hour))
			assert.Equal(t, tt.current, s.Current, "current")
			assert.Equal(t, tt.total, s.Total, "total")
			assert.Equal(t, tt.lastWeek, s.LastSevenDays, "last seven days")
			if tt.last == "" {
				assert.True(t, s.Last.IsZero())
			} else {
				assert.Equal(t, day(tt.last), s.Last)
			}
		})
	}
}

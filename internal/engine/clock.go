package engine

import "time"

// Clock supplies "today" for procedures whose inputs default to the current
// day. It is the same shape as store.Clock so one deterministic clock can
// drive both in tests.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time { return time.Now().UTC() }

// Today returns the clock's current calendar day at UTC midnight.
func Today(c Clock) time.Time {
	y, m, d := c.Now().UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
